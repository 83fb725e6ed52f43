package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains all configuration for the application
type Config struct {
	Server  ServerConfig       `yaml:"server"`
	Logging LoggingConfig      `yaml:"logging"`
	Cors    CORSRegistryConfig `yaml:"cors"`
	Metrics MetricsConfig      `yaml:"metrics"`
	Tracing TracingConfig      `yaml:"tracing"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Address        string `yaml:"address"`
	ReadTimeout    int    `yaml:"read_timeout"`
	WriteTimeout   int    `yaml:"write_timeout"`
	IdleTimeout    int    `yaml:"idle_timeout"`
	MaxHeaderBytes int    `yaml:"max_header_bytes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Provider    string  `yaml:"provider"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// LoadConfig loads configuration from a YAML file. A bare file name that
// does not exist in the working directory is looked up under configs/.
func LoadConfig(path string) (*Config, error) {
	configFile, err := os.Open(path)
	if err != nil && os.IsNotExist(err) && filepath.Base(path) == path {
		configFile, err = os.Open(filepath.Join("configs", path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer configFile.Close()

	data, err := io.ReadAll(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration after expanding ${VAR} placeholders
func ParseConfig(data []byte) (*Config, error) {
	data = replaceEnvVars(data)

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setConfigDefaults(config)

	return config, nil
}

// Default returns the configuration used when no file is supplied
func Default() *Config {
	config := newConfig()
	setConfigDefaults(config)
	return config
}

// newConfig presets the values yaml cannot tell apart from an absent key.
// yaml.v3 leaves fields untouched when their key is missing.
func newConfig() *Config {
	return &Config{
		Cors: CORSRegistryConfig{Enabled: true},
	}
}

// setConfigDefaults sets default values for the configuration
func setConfigDefaults(config *Config) {
	// Server defaults
	if config.Server.Address == "" {
		config.Server.Address = ":8081"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 30
	}
	if config.Server.IdleTimeout == 0 {
		config.Server.IdleTimeout = 120
	}
	if config.Server.MaxHeaderBytes == 0 {
		config.Server.MaxHeaderBytes = 1 << 20
	}

	// Logging defaults
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
	if config.Logging.Output == "" {
		config.Logging.Output = "stdout"
	}

	// CORS defaults
	if len(config.Cors.Mappings) == 0 {
		config.Cors.Mappings = []CORSConfig{JournalCORS()}
	}
	for i := range config.Cors.Mappings {
		setCORSDefaults(&config.Cors.Mappings[i])
	}

	// Metrics defaults
	if config.Metrics.Endpoint == "" {
		config.Metrics.Endpoint = "/metrics"
	}

	// Tracing defaults
	if config.Tracing.Provider == "" {
		config.Tracing.Provider = "jaeger"
	}
	if config.Tracing.ServiceName == "" {
		config.Tracing.ServiceName = "journal-api"
	}
	if config.Tracing.SampleRate == 0 {
		config.Tracing.SampleRate = 0.1
	}
}

// replaceEnvVars replaces environment variables in the format ${VAR_NAME} with their values
func replaceEnvVars(data []byte) []byte {
	content := string(data)
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 {
			continue
		}
		varName, varValue := pair[0], pair[1]
		placeholder := fmt.Sprintf("${%s}", varName)
		content = strings.ReplaceAll(content, placeholder, varValue)
	}
	return []byte(content)
}
