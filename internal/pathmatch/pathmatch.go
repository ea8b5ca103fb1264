// Package pathmatch compiles a parametric path pattern such as
// "/api/items/:id" into a matcher that tests a pathname and, on
// success, produces the captured parameter map.
package pathmatch

import "strings"

// Matcher tests a pathname against a compiled pattern.
type Matcher struct {
	pattern  string
	segments []segment
}

type segment struct {
	literal string
	name    string // non-empty when this segment is a :name capture
}

// Compile parses a pattern string into a Matcher. Patterns are
// anchored: the whole pathname must match, segment for segment.
func Compile(pattern string) *Matcher {
	parts := strings.Split(strings.Trim(pattern, "/"), "/")
	segments := make([]segment, 0, len(parts))
	for _, p := range parts {
		if strings.HasPrefix(p, ":") && len(p) > 1 {
			segments = append(segments, segment{name: p[1:]})
		} else {
			segments = append(segments, segment{literal: p})
		}
	}
	return &Matcher{pattern: pattern, segments: segments}
}

// Pattern returns the original pattern string the matcher was compiled from.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Match tests a pathname against the compiled pattern. On success it
// returns the captured parameters and true. On a repeated parameter
// name within a single pattern, the last capture wins (spec.md §4.1).
func (m *Matcher) Match(path string) (params map[string]string, ok bool) {
	trimmed := strings.Trim(path, "/")
	var parts []string
	if trimmed == "" {
		parts = []string{""}
	} else {
		parts = strings.Split(trimmed, "/")
	}
	if len(parts) != len(m.segments) {
		return nil, false
	}
	params = make(map[string]string)
	for i, seg := range m.segments {
		val := parts[i]
		if seg.name != "" {
			if val == "" {
				return nil, false
			}
			params[seg.name] = val
			continue
		}
		if seg.literal != val {
			return nil, false
		}
	}
	return params, true
}
