package cors

import (
	"errors"
	"fmt"

	"journal-api/internal/config"
)

// Registry holds the policies of every configured mapping, in order.
type Registry struct {
	enabled  bool
	policies []*Policy
}

// NewRegistry builds one Policy per mapping. Mappings are validated even
// when CORS is disabled so a bad file fails at startup either way.
func NewRegistry(cfg config.CORSRegistryConfig) (*Registry, error) {
	r := &Registry{enabled: cfg.Enabled}

	var errs []error
	for i, mapping := range cfg.Mappings {
		policy, err := NewPolicy(mapping)
		if err != nil {
			errs = append(errs, fmt.Errorf("mapping %d (%s): %w", i, mapping.Path, err))
			continue
		}
		r.policies = append(r.policies, policy)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Enabled reports whether CORS handling is switched on.
func (r *Registry) Enabled() bool {
	return r.enabled
}

// Policies returns the policies in evaluation order.
func (r *Registry) Policies() []*Policy {
	return append([]*Policy(nil), r.policies...)
}

// Evaluate applies the first policy whose path pattern matches.
func (r *Registry) Evaluate(req Request) Decision {
	if !r.enabled {
		return Decision{Outcome: NoOp}
	}
	for _, p := range r.policies {
		if p.Applies(req.Path) {
			return p.Evaluate(req)
		}
	}
	return Decision{Outcome: NoOp}
}
