package cors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journal-api/internal/config"
)

func journalPolicy(t *testing.T) *Policy {
	t.Helper()
	cfg := config.JournalCORS()
	cfg.MaxAge = config.DefaultCORSMaxAge
	p, err := NewPolicy(cfg)
	require.NoError(t, err)
	return p
}

func preflight(origin, path, method, headers string) Request {
	return Request{
		Origin:         origin,
		Method:         http.MethodOptions,
		Path:           path,
		RequestMethod:  method,
		RequestHeaders: headers,
	}
}

func TestNewPolicyJournalConfig(t *testing.T) {
	p := journalPolicy(t)

	assert.Equal(t, "/**", p.Path().String())
	assert.True(t, p.AllowCredentials())

	var raw []string
	for _, o := range p.Origins() {
		raw = append(raw, o.String())
	}
	// the specific lovableproject.com entry is kept next to its wildcard
	assert.Equal(t, config.JournalCORS().AllowedOrigins, raw)
}

func TestEvaluatePathNotCovered(t *testing.T) {
	cfg := config.JournalCORS()
	cfg.Path = "/api/**"
	p, err := NewPolicy(cfg)
	require.NoError(t, err)

	for _, origin := range []string{"http://localhost:3000", "https://evil.com", ""} {
		d := p.Evaluate(Request{Origin: origin, Method: http.MethodGet, Path: "/health"})
		assert.Equal(t, NoOp, d.Outcome, origin)
		assert.Empty(t, d.Header)
	}
}

func TestEvaluateAbsentOrigin(t *testing.T) {
	p := journalPolicy(t)

	d := p.Evaluate(Request{Method: http.MethodGet, Path: "/api/entries"})
	assert.Equal(t, NoOp, d.Outcome)
	assert.Empty(t, d.Header)
}

func TestEvaluateExactOriginsEchoed(t *testing.T) {
	p := journalPolicy(t)

	for _, origin := range []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"https://525a9c05-d0e1-420f-9624-357c09cdb8f9.lovableproject.com",
	} {
		d := p.Evaluate(Request{Origin: origin, Method: http.MethodGet, Path: "/api/entries"})
		require.Equal(t, Allowed, d.Outcome, origin)
		assert.Equal(t, origin, d.Header.Get(HeaderAccessControlAllowOrigin))
		assert.Equal(t, "true", d.Header.Get(HeaderAccessControlAllowCredentials))
	}
}

func TestEvaluateWildcardSubdomainEchoesOrigin(t *testing.T) {
	p := journalPolicy(t)

	d := p.Evaluate(Request{Origin: "https://foo.lovableproject.com", Method: http.MethodGet, Path: "/api/entries"})
	require.Equal(t, Allowed, d.Outcome)
	assert.Equal(t, "https://foo.lovableproject.com", d.Header.Get(HeaderAccessControlAllowOrigin))
	assert.Equal(t, "https://*.lovableproject.com", d.Pattern)
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	p := journalPolicy(t)

	d := p.Evaluate(Request{
		Origin: "https://525a9c05-d0e1-420f-9624-357c09cdb8f9.lovableproject.com",
		Method: http.MethodGet,
		Path:   "/",
	})
	require.Equal(t, Allowed, d.Outcome)
	assert.Equal(t, "https://*.lovableproject.com", d.Pattern)
}

func TestEvaluateUnknownOriginDenied(t *testing.T) {
	p := journalPolicy(t)

	for _, r := range []Request{
		{Origin: "https://evil.com", Method: http.MethodGet, Path: "/api/entries"},
		preflight("https://evil.com", "/api/entries", http.MethodGet, ""),
		{Origin: "http://localhost:3001", Method: http.MethodGet, Path: "/"},
		{Origin: "null", Method: http.MethodPost, Path: "/"},
		{Origin: "https://evil.com@x.stackblitz.io", Method: http.MethodGet, Path: "/api/entries"},
		{Origin: "https://a/b.lovableproject.com", Method: http.MethodGet, Path: "/api/entries"},
	} {
		d := p.Evaluate(r)
		assert.Equal(t, Denied, d.Outcome, r.Origin)
		assert.Equal(t, DeniedOrigin, d.Reason)
		assertNoCORSHeaders(t, d.Header)
		assert.Contains(t, d.Header.Values(HeaderVary), HeaderOrigin)
	}
}

func TestEvaluateDisallowedMethod(t *testing.T) {
	p := journalPolicy(t)

	d := p.Evaluate(preflight("http://localhost:3000", "/api/entries", http.MethodPatch, ""))
	assert.Equal(t, Denied, d.Outcome)
	assert.True(t, d.Preflight)
	assert.Equal(t, DeniedMethod, d.Reason)
	assertNoCORSHeaders(t, d.Header)

	d = p.Evaluate(Request{Origin: "http://localhost:3000", Method: http.MethodPatch, Path: "/api/entries"})
	assert.Equal(t, Denied, d.Outcome)
	assert.False(t, d.Preflight)
	assert.Equal(t, DeniedMethod, d.Reason)

	// method tokens are case-sensitive
	d = p.Evaluate(preflight("http://localhost:3000", "/api/entries", "get", ""))
	assert.Equal(t, Denied, d.Outcome)
}

func TestEvaluatePreflightAllowed(t *testing.T) {
	p := journalPolicy(t)

	d := p.Evaluate(preflight("http://localhost:3000", "/api/entries", http.MethodPut, "Content-Type, Authorization"))
	require.Equal(t, Allowed, d.Outcome)
	assert.True(t, d.Preflight)
	assert.Equal(t, "preflight", d.Kind())

	assert.Equal(t, "http://localhost:3000", d.Header.Get(HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", d.Header.Get(HeaderAccessControlAllowCredentials))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", d.Header.Get(HeaderAccessControlAllowMethods))
	assert.Equal(t, "Content-Type, Authorization", d.Header.Get(HeaderAccessControlAllowHeaders))
	assert.Equal(t, "1800", d.Header.Get(HeaderAccessControlMaxAge))
	assert.Equal(t, []string{
		HeaderOrigin,
		HeaderAccessControlRequestMethod,
		HeaderAccessControlRequestHeaders,
	}, d.Header.Values(HeaderVary))
}

func TestEvaluatePreflightWithoutRequestedHeaders(t *testing.T) {
	p := journalPolicy(t)

	d := p.Evaluate(preflight("https://random.stackblitz.io", "/", http.MethodDelete, ""))
	require.Equal(t, Allowed, d.Outcome)
	assert.Empty(t, d.Header.Get(HeaderAccessControlAllowHeaders))
}

func TestEvaluateActualRequestOmitsPreflightHeaders(t *testing.T) {
	cfg := config.JournalCORS()
	cfg.ExposedHeaders = []string{"X-Request-Id", "Location"}
	cfg.MaxAge = 600
	p, err := NewPolicy(cfg)
	require.NoError(t, err)

	d := p.Evaluate(Request{Origin: "https://random.stackblitz.io", Method: http.MethodGet, Path: "/api/entries"})
	require.Equal(t, Allowed, d.Outcome)
	assert.Equal(t, "actual", d.Kind())
	assert.Equal(t, "https://random.stackblitz.io", d.Header.Get(HeaderAccessControlAllowOrigin))
	assert.Equal(t, "X-Request-Id, Location", d.Header.Get(HeaderAccessControlExposeHeaders))
	assert.Empty(t, d.Header.Get(HeaderAccessControlAllowMethods))
	assert.Empty(t, d.Header.Get(HeaderAccessControlMaxAge))
	assert.Equal(t, []string{HeaderOrigin}, d.Header.Values(HeaderVary))
}

func TestEvaluateOptionsWithoutRequestMethodIsActual(t *testing.T) {
	p := journalPolicy(t)

	d := p.Evaluate(Request{Origin: "http://localhost:3000", Method: http.MethodOptions, Path: "/"})
	require.Equal(t, Allowed, d.Outcome)
	assert.False(t, d.Preflight)
}

func TestEvaluateExplicitHeaderList(t *testing.T) {
	cfg := config.JournalCORS()
	cfg.AllowedHeaders = []string{"Content-Type", "Authorization"}
	p, err := NewPolicy(cfg)
	require.NoError(t, err)

	d := p.Evaluate(preflight("http://localhost:3000", "/", http.MethodPost, "content-type,authorization"))
	require.Equal(t, Allowed, d.Outcome)
	assert.Equal(t, "content-type, authorization", d.Header.Get(HeaderAccessControlAllowHeaders))

	d = p.Evaluate(preflight("http://localhost:3000", "/", http.MethodPost, ""))
	require.Equal(t, Allowed, d.Outcome)
	assert.Equal(t, "Content-Type, Authorization", d.Header.Get(HeaderAccessControlAllowHeaders))

	d = p.Evaluate(preflight("http://localhost:3000", "/", http.MethodPost, "Content-Type, X-Debug"))
	assert.Equal(t, Denied, d.Outcome)
	assert.Equal(t, DeniedHeaders, d.Reason)
	assertNoCORSHeaders(t, d.Header)
}

func TestEvaluateMalformedRequestedHeaders(t *testing.T) {
	p := journalPolicy(t)

	d := p.Evaluate(preflight("http://localhost:3000", "/", http.MethodPost, "Content Type"))
	assert.Equal(t, Denied, d.Outcome)
	assert.Equal(t, DeniedHeaders, d.Reason)
}

func TestEvaluateAnyOriginWithoutCredentials(t *testing.T) {
	p, err := NewPolicy(config.CORSConfig{
		Path:           "/**",
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"*"},
	})
	require.NoError(t, err)

	d := p.Evaluate(Request{Origin: "https://anyone.example", Method: http.MethodGet, Path: "/"})
	require.Equal(t, Allowed, d.Outcome)
	assert.Equal(t, "*", d.Header.Get(HeaderAccessControlAllowOrigin))
	assert.Empty(t, d.Header.Get(HeaderAccessControlAllowCredentials))
}

func TestCredentialedDecisionNeverWildcard(t *testing.T) {
	p := journalPolicy(t)

	origins := []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"https://a.lovableproject.com",
		"https://x.y.stackblitz.io",
		"https://525a9c05-d0e1-420f-9624-357c09cdb8f9.lovableproject.com",
	}
	methods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}

	for _, origin := range origins {
		for _, method := range methods {
			for _, r := range []Request{
				{Origin: origin, Method: method, Path: "/api/entries"},
				preflight(origin, "/api/entries", method, "X-Anything"),
			} {
				d := p.Evaluate(r)
				require.Equal(t, Allowed, d.Outcome)
				assert.NotEqual(t, "*", d.Header.Get(HeaderAccessControlAllowOrigin))
				assert.Equal(t, origin, d.Header.Get(HeaderAccessControlAllowOrigin))
			}
		}
	}
}

func TestNewPolicyValidation(t *testing.T) {
	testCases := []struct {
		desc   string
		mutate func(*config.CORSConfig)
		want   []ConfigError
	}{
		{
			desc:   "wildcard origin with credentials",
			mutate: func(c *config.CORSConfig) { c.AllowedOrigins = append(c.AllowedOrigins, "*") },
			want:   []ConfigError{{Field: "allowed_origins", Value: "*", Reason: ReasonCredentialed}},
		},
		{
			desc:   "no origins",
			mutate: func(c *config.CORSConfig) { c.AllowedOrigins = nil },
			want:   []ConfigError{{Field: "allowed_origins", Reason: ReasonMissing}},
		},
		{
			desc:   "no methods",
			mutate: func(c *config.CORSConfig) { c.AllowedMethods = nil },
			want:   []ConfigError{{Field: "allowed_methods", Reason: ReasonMissing}},
		},
		{
			desc:   "missing path",
			mutate: func(c *config.CORSConfig) { c.Path = "" },
			want:   []ConfigError{{Field: "path", Reason: ReasonMissing}},
		},
		{
			desc: "several problems at once",
			mutate: func(c *config.CORSConfig) {
				c.AllowedOrigins = []string{"https://*.com", "localhost"}
				c.AllowedMethods = []string{"GET", "TRACE", "BAD METHOD"}
				c.AllowedHeaders = []string{"X-Ok", "Bad Header"}
				c.ExposedHeaders = []string{"*"}
			},
			want: []ConfigError{
				{Field: "allowed_origins", Value: "https://*.com", Reason: ReasonPublicSuffix},
				{Field: "allowed_origins", Value: "localhost", Reason: ReasonInvalid},
				{Field: "allowed_methods", Value: "TRACE", Reason: ReasonForbidden},
				{Field: "allowed_methods", Value: "BAD METHOD", Reason: ReasonInvalid},
				{Field: "allowed_headers", Value: "Bad Header", Reason: ReasonInvalid},
				{Field: "exposed_headers", Value: "*", Reason: ReasonCredentialed},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := config.JournalCORS()
			tc.mutate(&cfg)

			p, err := NewPolicy(cfg)
			require.Error(t, err)
			assert.Nil(t, p)

			joined, ok := err.(interface{ Unwrap() []error })
			require.True(t, ok)
			var got []ConfigError
			for _, e := range joined.Unwrap() {
				var cfgErr *ConfigError
				require.True(t, errors.As(e, &cfgErr))
				got = append(got, *cfgErr)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewPolicyDeduplicatesMethodsAndHeaders(t *testing.T) {
	cfg := config.JournalCORS()
	cfg.AllowedMethods = []string{"GET", "POST", "GET"}
	cfg.AllowedHeaders = []string{"Content-Type", "content-type"}
	p, err := NewPolicy(cfg)
	require.NoError(t, err)

	d := p.Evaluate(preflight("http://localhost:3000", "/", http.MethodGet, ""))
	require.Equal(t, Allowed, d.Outcome)
	assert.Equal(t, "GET, POST", d.Header.Get(HeaderAccessControlAllowMethods))
	assert.Equal(t, "Content-Type", d.Header.Get(HeaderAccessControlAllowHeaders))
}

func TestRequestFromHTTP(t *testing.T) {
	r := httptest.NewRequest(http.MethodOptions, "http://api.example.com/api/entries?limit=5", nil)
	r.Header.Set(HeaderOrigin, "http://localhost:3000")
	r.Header.Set(HeaderAccessControlRequestMethod, http.MethodPost)
	r.Header.Add(HeaderAccessControlRequestHeaders, "Content-Type")
	r.Header.Add(HeaderAccessControlRequestHeaders, "Authorization")

	req := RequestFromHTTP(r)
	assert.Equal(t, "http://localhost:3000", req.Origin)
	assert.Equal(t, http.MethodOptions, req.Method)
	assert.Equal(t, "/api/entries", req.Path)
	assert.Equal(t, http.MethodPost, req.RequestMethod)
	assert.Equal(t, "Content-Type,Authorization", req.RequestHeaders)
	assert.True(t, req.IsPreflight())
}

func TestDecisionApply(t *testing.T) {
	p := journalPolicy(t)
	d := p.Evaluate(preflight("http://localhost:3000", "/", http.MethodGet, ""))

	h := http.Header{}
	h.Set(HeaderVary, "Accept-Encoding, origin")
	h.Set("Content-Type", "application/json")
	d.Apply(h)

	assert.Equal(t, "http://localhost:3000", h.Get(HeaderAccessControlAllowOrigin))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, []string{
		"Accept-Encoding, origin",
		HeaderAccessControlRequestMethod,
		HeaderAccessControlRequestHeaders,
	}, h.Values(HeaderVary))

	// applying a no-op decision changes nothing
	before := h.Clone()
	Decision{}.Apply(h)
	assert.Equal(t, before, h)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "noop", NoOp.String())
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "denied", Denied.String())
}

func assertNoCORSHeaders(t *testing.T, h http.Header) {
	t.Helper()
	for _, name := range []string{
		HeaderAccessControlAllowOrigin,
		HeaderAccessControlAllowMethods,
		HeaderAccessControlAllowHeaders,
		HeaderAccessControlAllowCredentials,
		HeaderAccessControlExposeHeaders,
		HeaderAccessControlMaxAge,
	} {
		assert.Empty(t, h.Values(name), name)
	}
}
