package cors

import "fmt"

// Reasons carried by a ConfigError.
const (
	ReasonMissing      = "missing"
	ReasonInvalid      = "invalid"
	ReasonProhibited   = "prohibited"
	ReasonCredentialed = "incompatible with credentialed access"
	ReasonPublicSuffix = "wildcard over a public suffix"
	ReasonForbidden    = "forbidden"
)

// A ConfigError describes one problem found while building a Policy.
// NewPolicy reports every problem it finds, joined with errors.Join.
type ConfigError struct {
	// Field is the configuration key at fault, e.g. "allowed_origins".
	Field string
	// Value is the offending value, if any.
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("cors: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("cors: %s %q: %s", e.Field, e.Value, e.Reason)
}
