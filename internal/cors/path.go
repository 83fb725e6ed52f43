package cors

import (
	"path"
	"strings"
)

// anySegments matches zero or more path segments.
const anySegments = "**"

// A PathPattern is a segment-wise glob over request paths. A "**"
// segment matches any number of segments; any other segment is matched
// against exactly one segment with path.Match semantics.
type PathPattern struct {
	raw      string
	segments []string
}

// ParsePathPattern parses a path pattern such as "/**" or "/api/*/entries".
func ParsePathPattern(pattern string) (PathPattern, error) {
	if pattern == "" {
		return PathPattern{}, &ConfigError{Field: "path", Reason: ReasonMissing}
	}
	if pattern[0] != '/' {
		return PathPattern{}, &ConfigError{Field: "path", Value: pattern, Reason: ReasonInvalid}
	}
	segments := strings.Split(pattern[1:], "/")
	for _, seg := range segments {
		if seg == anySegments {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return PathPattern{}, &ConfigError{Field: "path", Value: pattern, Reason: ReasonInvalid}
		}
	}
	return PathPattern{raw: pattern, segments: segments}, nil
}

// String returns the pattern as configured.
func (p PathPattern) String() string {
	return p.raw
}

// Match reports whether the request path p is matched.
func (p PathPattern) Match(requestPath string) bool {
	if !strings.HasPrefix(requestPath, "/") {
		return false
	}
	return matchSegments(p.segments, strings.Split(requestPath[1:], "/"))
}

func matchSegments(pattern, segments []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == anySegments {
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(segments); i++ {
				if matchSegments(rest, segments[i:]) {
					return true
				}
			}
			return false
		}
		if len(segments) == 0 {
			return false
		}
		if ok, _ := path.Match(pattern[0], segments[0]); !ok {
			return false
		}
		pattern, segments = pattern[1:], segments[1:]
	}
	return len(segments) == 0
}
