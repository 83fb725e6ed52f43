package config

// CORSRegistryConfig holds every CORS mapping. Mappings are consulted in
// order; the first whose path pattern matches a request applies.
type CORSRegistryConfig struct {
	Enabled  bool         `yaml:"enabled"`
	Mappings []CORSConfig `yaml:"mappings"`
}

// CORSConfig contains the CORS policy for one path pattern
type CORSConfig struct {
	Path             string   `yaml:"path"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	// MaxAge is in seconds. Zero selects the default; negative omits the header.
	MaxAge int `yaml:"max_age"`
}

// DefaultCORSMaxAge is the preflight cache lifetime in seconds
const DefaultCORSMaxAge = 1800

// JournalCORS returns the policy the journal frontends rely on: local
// development servers plus the hosted preview domains, with credentials.
func JournalCORS() CORSConfig {
	return CORSConfig{
		Path: "/**",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:8080",
			"https://*.lovableproject.com",
			"https://525a9c05-d0e1-420f-9624-357c09cdb8f9.lovableproject.com",
			"https://*.stackblitz.io",
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
}

func setCORSDefaults(c *CORSConfig) {
	if c.Path == "" {
		c.Path = "/**"
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"*"}
	}
	if c.MaxAge == 0 {
		c.MaxAge = DefaultCORSMaxAge
	}
}
