// Package vehicle normalizes vehicle identifiers and matches them against
// object keys. Fleet data carries the same physical vehicle under several
// spellings (EL-052, EL052, el_052); everything downstream groups by the
// canonical form produced here.
package vehicle

import (
	"regexp"
	"strings"
)

// idPattern matches a vehicle identifier embedded in a path or key:
// an alpha prefix, an optional separator, and a numeric suffix.
var idPattern = regexp.MustCompile(`(?i)([a-z]+)[-_]?(\d+)`)

// Canonicalize returns the canonical form of a vehicle identifier:
// uppercase, with a single hyphen between the alpha prefix and the numeric
// suffix (el_052, EL052 -> EL-052). Identifiers that do not follow the
// prefix-digits shape are uppercased with underscores mapped to hyphens.
func Canonicalize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if m := idPattern.FindStringSubmatch(id); m != nil && len(m[0]) == len(id) {
		return strings.ToUpper(m[1]) + "-" + m[2]
	}
	return strings.ToUpper(strings.ReplaceAll(id, "_", "-"))
}

// InferFromKey extracts a canonical vehicle ID from an object key, or ""
// when no identifier-shaped token is present.
func InferFromKey(key string) string {
	m := idPattern.FindStringSubmatch(key)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1]) + "-" + m[2]
}

// Filter is a case-insensitive vehicle allowlist. The zero value and nil
// match everything.
type Filter struct {
	ids map[string]struct{}
}

// NewFilter builds a filter from raw identifiers, which may be comma or
// whitespace separated. Returns nil when no identifiers are given.
func NewFilter(raw string) *Filter {
	tokens := splitList(raw)
	if len(tokens) == 0 {
		return nil
	}
	f := &Filter{ids: make(map[string]struct{}, len(tokens))}
	for _, tok := range tokens {
		f.ids[Canonicalize(tok)] = struct{}{}
	}
	return f
}

// MatchKey reports whether the object key belongs to a vehicle in the
// filter. A nil filter matches every key.
func (f *Filter) MatchKey(key string) bool {
	if f == nil || len(f.ids) == 0 {
		return true
	}
	inferred := InferFromKey(key)
	if inferred != "" {
		if _, ok := f.ids[inferred]; ok {
			return true
		}
	}
	// Fall back to a substring check for identifiers that do not follow
	// the prefix-digits shape.
	lower := strings.ToLower(key)
	for id := range f.ids {
		if strings.Contains(lower, strings.ToLower(id)) {
			return true
		}
	}
	return false
}

// MatchID reports whether a vehicle ID (any spelling) is in the filter.
func (f *Filter) MatchID(id string) bool {
	if f == nil || len(f.ids) == 0 {
		return true
	}
	_, ok := f.ids[Canonicalize(id)]
	return ok
}

func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
