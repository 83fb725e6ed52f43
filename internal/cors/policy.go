package cors

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"journal-api/internal/config"
)

// AnyHeader is the allowed_headers entry that allows every request header.
const AnyHeader = "*"

// Request holds the request attributes a Policy looks at.
type Request struct {
	Origin string
	Method string
	Path   string
	// RequestMethod is the Access-Control-Request-Method value.
	RequestMethod string
	// RequestHeaders is the Access-Control-Request-Headers value.
	RequestHeaders string
}

// RequestFromHTTP extracts the CORS-relevant attributes of r.
func RequestFromHTTP(r *http.Request) Request {
	return Request{
		Origin:         r.Header.Get(HeaderOrigin),
		Method:         r.Method,
		Path:           r.URL.Path,
		RequestMethod:  r.Header.Get(HeaderAccessControlRequestMethod),
		RequestHeaders: strings.Join(r.Header.Values(HeaderAccessControlRequestHeaders), ","),
	}
}

// IsPreflight reports whether the request is a CORS preflight.
func (r Request) IsPreflight() bool {
	return r.Method == http.MethodOptions && r.RequestMethod != ""
}

// Policy is an immutable CORS policy for one path pattern. It is safe
// for concurrent use.
type Policy struct {
	path        PathPattern
	origins     []OriginPattern
	methods     map[string]struct{}
	anyHeader   bool
	headers     map[string]struct{} // lower-cased
	credentials bool

	allowMethods   string
	allowHeaders   string
	exposedHeaders string
	maxAge         string
}

// NewPolicy validates cfg and builds a Policy from it. Every problem
// found is reported; the returned error joins *ConfigError values.
func NewPolicy(cfg config.CORSConfig) (*Policy, error) {
	var errs []error

	p := &Policy{
		methods:     make(map[string]struct{}, len(cfg.AllowedMethods)),
		headers:     make(map[string]struct{}, len(cfg.AllowedHeaders)),
		credentials: cfg.AllowCredentials,
	}

	path, err := ParsePathPattern(cfg.Path)
	if err != nil {
		errs = append(errs, err)
	}
	p.path = path

	errs = p.setOrigins(errs, cfg.AllowedOrigins)
	errs = p.setMethods(errs, cfg.AllowedMethods)
	errs = p.setHeaders(errs, cfg.AllowedHeaders)
	errs = p.setExposedHeaders(errs, cfg.ExposedHeaders)

	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p, nil
}

func (p *Policy) setOrigins(errs []error, raw []string) []error {
	if len(raw) == 0 {
		return append(errs, &ConfigError{Field: "allowed_origins", Reason: ReasonMissing})
	}
	// Order and duplicates are kept: the first match wins.
	for _, s := range raw {
		pattern, err := ParseOriginPattern(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if pattern.IsWildcard() && p.credentials {
			errs = append(errs, &ConfigError{
				Field:  "allowed_origins",
				Value:  s,
				Reason: ReasonCredentialed,
			})
			continue
		}
		p.origins = append(p.origins, pattern)
	}
	return errs
}

func (p *Policy) setMethods(errs []error, names []string) []error {
	if len(names) == 0 {
		return append(errs, &ConfigError{Field: "allowed_methods", Reason: ReasonMissing})
	}
	ordered := make([]string, 0, len(names))
	for _, name := range names {
		if !httpguts.ValidHeaderFieldName(name) {
			errs = append(errs, &ConfigError{Field: "allowed_methods", Value: name, Reason: ReasonInvalid})
			continue
		}
		if isForbiddenMethod(name) {
			errs = append(errs, &ConfigError{Field: "allowed_methods", Value: name, Reason: ReasonForbidden})
			continue
		}
		if _, dup := p.methods[name]; dup {
			continue
		}
		p.methods[name] = struct{}{}
		ordered = append(ordered, name)
	}
	p.allowMethods = strings.Join(ordered, ", ")
	return errs
}

func isForbiddenMethod(name string) bool {
	switch strings.ToUpper(name) {
	case http.MethodConnect, http.MethodTrace, "TRACK":
		return true
	}
	return false
}

func (p *Policy) setHeaders(errs []error, names []string) []error {
	ordered := make([]string, 0, len(names))
	for _, name := range names {
		if name == AnyHeader {
			p.anyHeader = true
			continue
		}
		if !httpguts.ValidHeaderFieldName(name) {
			errs = append(errs, &ConfigError{Field: "allowed_headers", Value: name, Reason: ReasonInvalid})
			continue
		}
		key := strings.ToLower(name)
		if _, dup := p.headers[key]; dup {
			continue
		}
		p.headers[key] = struct{}{}
		ordered = append(ordered, name)
	}
	p.allowHeaders = strings.Join(ordered, ", ")
	return errs
}

func (p *Policy) setExposedHeaders(errs []error, names []string) []error {
	ordered := make([]string, 0, len(names))
	for _, name := range names {
		if name == AnyHeader && p.credentials {
			errs = append(errs, &ConfigError{Field: "exposed_headers", Value: name, Reason: ReasonCredentialed})
			continue
		}
		if name != AnyHeader && !httpguts.ValidHeaderFieldName(name) {
			errs = append(errs, &ConfigError{Field: "exposed_headers", Value: name, Reason: ReasonInvalid})
			continue
		}
		ordered = append(ordered, name)
	}
	p.exposedHeaders = strings.Join(ordered, ", ")
	return errs
}

// Path returns the path pattern the policy applies to.
func (p *Policy) Path() PathPattern {
	return p.path
}

// Origins returns the configured origin patterns in order.
func (p *Policy) Origins() []OriginPattern {
	return append([]OriginPattern(nil), p.origins...)
}

// AllowCredentials reports whether credentialed requests are allowed.
func (p *Policy) AllowCredentials() bool {
	return p.credentials
}

// Applies reports whether the policy covers the request path.
func (p *Policy) Applies(path string) bool {
	return p.path.Match(path)
}

// Evaluate decides whether req is an allowed cross-origin request and
// which headers the response must carry.
func (p *Policy) Evaluate(req Request) Decision {
	if !p.path.Match(req.Path) || req.Origin == "" {
		return Decision{Outcome: NoOp}
	}

	preflight := req.IsPreflight()
	d := Decision{
		Preflight: preflight,
		Header:    make(http.Header),
	}
	d.Header.Add(HeaderVary, HeaderOrigin)
	if preflight {
		d.Header.Add(HeaderVary, HeaderAccessControlRequestMethod)
		d.Header.Add(HeaderVary, HeaderAccessControlRequestHeaders)
	}

	pattern, ok := p.matchOrigin(req.Origin)
	if !ok {
		return d.deny(DeniedOrigin)
	}
	d.Pattern = pattern.String()

	method := req.Method
	if preflight {
		method = req.RequestMethod
	}
	if _, ok := p.methods[method]; !ok {
		return d.deny(DeniedMethod)
	}

	var requested []string
	if preflight {
		requested, ok = p.checkHeaders(req.RequestHeaders)
		if !ok {
			return d.deny(DeniedHeaders)
		}
	}

	d.Outcome = Allowed
	if pattern.IsWildcard() && !p.credentials {
		d.Header.Set(HeaderAccessControlAllowOrigin, AnyOrigin)
	} else {
		d.Header.Set(HeaderAccessControlAllowOrigin, req.Origin)
	}
	if p.credentials {
		d.Header.Set(HeaderAccessControlAllowCredentials, "true")
	}

	if !preflight {
		if p.exposedHeaders != "" {
			d.Header.Set(HeaderAccessControlExposeHeaders, p.exposedHeaders)
		}
		return d
	}

	d.Header.Set(HeaderAccessControlAllowMethods, p.allowMethods)
	switch {
	case len(requested) > 0:
		d.Header.Set(HeaderAccessControlAllowHeaders, strings.Join(requested, ", "))
	case !p.anyHeader && p.allowHeaders != "":
		d.Header.Set(HeaderAccessControlAllowHeaders, p.allowHeaders)
	}
	if p.maxAge != "" {
		d.Header.Set(HeaderAccessControlMaxAge, p.maxAge)
	}
	return d
}

func (d Decision) deny(reason string) Decision {
	d.Outcome = Denied
	d.Reason = reason
	return d
}

func (p *Policy) matchOrigin(origin string) (OriginPattern, bool) {
	for _, pattern := range p.origins {
		if pattern.Match(origin) {
			return pattern, true
		}
	}
	return OriginPattern{}, false
}

// checkHeaders parses an Access-Control-Request-Headers value and
// reports whether every listed header is allowed.
func (p *Policy) checkHeaders(value string) ([]string, bool) {
	var names []string
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, false
		}
		if !p.anyHeader {
			if _, ok := p.headers[strings.ToLower(name)]; !ok {
				return nil, false
			}
		}
		names = append(names, name)
	}
	return names, true
}
