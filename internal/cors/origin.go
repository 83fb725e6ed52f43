package cors

import (
	"errors"
	"net/netip"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

const (
	schemeHostSep = "://"
	hostPortSep   = ':'

	// AnyOrigin is the standalone origin pattern that matches every origin.
	AnyOrigin = "*"

	subdomainWildcard = "*."
	portWildcard      = "*"

	maxHostLen    = 253
	maxSchemeLen  = 64
	maxPortLen    = len("65535")
	maxPatternLen = maxSchemeLen + len(schemeHostSep) + maxHostLen + 1 + maxPortLen

	absentPort    = 0
	arbitraryPort = -1
)

type hostKind uint8

const (
	exactHost hostKind = iota
	arbitrarySubdomains
	anyHost
)

// An OriginPattern matches the value of an Origin request header.
//
// Supported forms:
//
//	*                          any origin
//	https://example.com        exactly that origin
//	https://*.example.com      any subdomain (one or more labels) of example.com
//	http://localhost:*         any port, including the implicit one
type OriginPattern struct {
	raw    string
	scheme string
	// host is the exact host, or the base domain for arbitrarySubdomains.
	host string
	port int
	// portStr caches the decimal form of port.
	portStr string
	kind    hostKind
}

var hostProfile = idna.New(
	idna.BidiRule(),
	idna.ValidateLabels(true),
	idna.StrictDomainName(true),
	idna.VerifyDNSLength(true),
)

// ParseOriginPattern parses and validates a configured origin pattern.
func ParseOriginPattern(str string) (OriginPattern, error) {
	if str == AnyOrigin {
		return OriginPattern{raw: str, kind: anyHost}, nil
	}
	if str == "" {
		return OriginPattern{}, originError(str, ReasonMissing)
	}
	if len(str) > maxPatternLen {
		return OriginPattern{}, originError(str, ReasonInvalid)
	}
	if str == "null" {
		return OriginPattern{}, originError(str, ReasonProhibited)
	}

	p := OriginPattern{raw: str}
	scheme, rest, ok := strings.Cut(str, schemeHostSep)
	if !ok || !isValidScheme(scheme) {
		return OriginPattern{}, originError(str, ReasonInvalid)
	}
	if scheme == "file" {
		return OriginPattern{}, originError(str, ReasonProhibited)
	}
	p.scheme = scheme

	// userinfo, path, query and fragment have no place in an origin
	if rest == "" || strings.ContainsAny(rest, "/?#@ ") {
		return OriginPattern{}, originError(str, ReasonInvalid)
	}

	hostPattern, portPattern, err := splitHostPort(rest)
	if err != nil {
		return OriginPattern{}, originError(str, ReasonInvalid)
	}

	if base, ok := strings.CutPrefix(hostPattern, subdomainWildcard); ok {
		if !isDomain(base) {
			return OriginPattern{}, originError(str, ReasonInvalid)
		}
		if suffix, icann := publicsuffix.PublicSuffix(base); icann && suffix == base {
			return OriginPattern{}, originError(str, ReasonPublicSuffix)
		}
		p.kind = arbitrarySubdomains
		p.host = base
	} else {
		if !isIPLiteral(hostPattern) && !isDomain(hostPattern) {
			return OriginPattern{}, originError(str, ReasonInvalid)
		}
		p.kind = exactHost
		p.host = hostPattern
	}

	switch {
	case portPattern == "":
		p.port = absentPort
	case portPattern == portWildcard:
		p.port = arbitraryPort
	default:
		port, ok := parsePort(portPattern)
		if !ok {
			return OriginPattern{}, originError(str, ReasonInvalid)
		}
		if isDefaultPortForScheme(p.scheme, port) {
			return OriginPattern{}, originError(str, ReasonProhibited)
		}
		p.port = port
		p.portStr = portPattern
	}

	return p, nil
}

func originError(value, reason string) error {
	return &ConfigError{Field: "allowed_origins", Value: value, Reason: reason}
}

// String returns the pattern as configured.
func (p OriginPattern) String() string {
	return p.raw
}

// IsWildcard reports whether p is the standalone "*" pattern.
func (p OriginPattern) IsWildcard() bool {
	return p.kind == anyHost
}

// Match reports whether origin, the raw value of an Origin header,
// is matched by p.
func (p OriginPattern) Match(origin string) bool {
	if p.kind == anyHost {
		return origin != ""
	}
	scheme, rest, ok := strings.Cut(origin, schemeHostSep)
	if !ok || scheme != p.scheme {
		return false
	}
	host, port, err := splitHostPort(rest)
	if err != nil {
		return false
	}

	switch p.port {
	case absentPort:
		if port != "" {
			return false
		}
	case arbitraryPort:
		if port != "" {
			if _, ok := parsePort(port); !ok {
				return false
			}
		}
	default:
		if port != p.portStr {
			return false
		}
	}

	if p.kind == arbitrarySubdomains {
		return matchSubdomains(host, p.host)
	}
	return host == p.host
}

// matchSubdomains reports whether host is base preceded by one or more
// well-formed labels. The labels come from the request, so they are checked
// here: "evil.com@x" or "a/b" must not pass as a subdomain.
func matchSubdomains(host, base string) bool {
	prefix, ok := strings.CutSuffix(host, "."+base)
	if !ok || prefix == "" {
		return false
	}
	for _, label := range strings.Split(prefix, ".") {
		if !isLDHLabel(label) {
			return false
		}
	}
	return true
}

// splitHostPort splits s into a host (brackets kept for IPv6) and an
// optional port, without validating either.
func splitHostPort(s string) (host, port string, err error) {
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end == -1 {
			return "", "", errMalformedHost
		}
		host, rest := s[:end+1], s[end+1:]
		if rest == "" {
			return host, "", nil
		}
		if rest[0] != hostPortSep || len(rest) == 1 {
			return "", "", errMalformedHost
		}
		return host, rest[1:], nil
	}
	i := strings.LastIndexByte(s, hostPortSep)
	if i == -1 {
		return s, "", nil
	}
	if i == 0 || i == len(s)-1 {
		return "", "", errMalformedHost
	}
	return s[:i], s[i+1:], nil
}

var errMalformedHost = errors.New("malformed host")

// isValidScheme reports whether s is a lower-case RFC 3986 scheme.
func isValidScheme(s string) bool {
	if s == "" || len(s) > maxSchemeLen || s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', '0' <= c && c <= '9', c == '+', c == '-', c == '.':
		default:
			return false
		}
	}
	return true
}

// isDomain reports whether s is a lower-case ASCII domain name. Labels
// in punycode form must also decode to valid IDNA labels.
func isDomain(s string) bool {
	if s == "" || len(s) > maxHostLen {
		return false
	}
	if _, err := netip.ParseAddr(s); err == nil {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if !isLDHLabel(label) {
			return false
		}
	}
	ascii, err := hostProfile.ToASCII(s)
	if err != nil {
		return false
	}
	return ascii == s
}

// isLDHLabel reports whether label is made of lower-case letters, digits
// and inner hyphens.
func isLDHLabel(label string) bool {
	const maxLabelLen = 63
	if label == "" || len(label) > maxLabelLen {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case 'a' <= c && c <= 'z', '0' <= c && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

// isIPLiteral reports whether s is an IPv4 address or a bracketed IPv6
// address, in canonical form.
func isIPLiteral(s string) bool {
	if inner, ok := strings.CutPrefix(s, "["); ok {
		inner, ok = strings.CutSuffix(inner, "]")
		if !ok {
			return false
		}
		addr, err := netip.ParseAddr(inner)
		return err == nil && addr.Is6() && addr.Zone() == "" && addr.String() == inner
	}
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4() && addr.String() == s
}

// parsePort parses a decimal port in 1..65535 without leading zeros.
func parsePort(s string) (int, bool) {
	if s == "" || len(s) > maxPortLen || s[0] == '0' {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	port, err := strconv.Atoi(s)
	if err != nil || port > 65535 {
		return 0, false
	}
	return port, true
}

func isDefaultPortForScheme(scheme string, port int) bool {
	return scheme == "http" && port == 80 || scheme == "https" && port == 443
}
