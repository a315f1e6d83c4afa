package cache

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// DefaultNamespace is the key prefix shared by every service in this module.
const DefaultNamespace = "column_mgmt"

// KeyBuilder produces stable, namespaced cache keys. All keys built by one
// KeyBuilder share a namespace prefix so that ClearAll and pattern deletion
// can be scoped to this module's entries without touching neighbours in a
// shared store.
type KeyBuilder struct {
	namespace string
}

// NewKeyBuilder creates a KeyBuilder for the given namespace. An empty
// namespace falls back to DefaultNamespace. The namespace is normalized to
// snake_case so it stays safe as a key prefix.
func NewKeyBuilder(namespace string) KeyBuilder {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return KeyBuilder{namespace: toSnake(namespace)}
}

// Namespace returns the normalized namespace prefix.
func (b KeyBuilder) Namespace() string {
	return b.namespace
}

// Build joins the namespace and segments with KeySeparator. Segments are used
// verbatim apart from stripping the separator itself, so identifiers such as
// email-style user names survive intact.
func (b KeyBuilder) Build(segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, b.namespace)
	for _, seg := range segments {
		parts = append(parts, strings.ReplaceAll(seg, KeySeparator, ":"))
	}
	return strings.Join(parts, KeySeparator)
}

// Pattern builds a glob pattern scoped to this namespace. Segments may contain
// glob metacharacters ("*", "?", character classes).
func (b KeyBuilder) Pattern(segments ...string) string {
	return b.Build(segments...)
}

// FlattenMap renders a map as a deterministic "k=v" list sorted by key. It is
// used to fold filter and option maps into cache key segments; two maps with
// the same contents always flatten identically regardless of insertion order.
func FlattenMap(m map[string]any) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return strings.Join(pairs, ",")
}

// toSnake converts the provided string to snake_case using ASCII-aware rules.
// We keep this implementation local so we can aggressively strip punctuation
// that can show up in configured namespaces; leaving those characters in the
// cache namespace would break prefix-based invalidation and produce keys
// Redis/Memcache reject.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastUnderscore {
					b.WriteByte('_')
					lastUnderscore = true
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r):
			b.WriteRune(r)
			lastUnderscore = false

		case unicode.IsDigit(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				if !unicode.IsDigit(prev) && prev != '_' && !lastUnderscore {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r)
			lastUnderscore = false

		case r == '_':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}

		case r == '-' || unicode.IsSpace(r):
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}

		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}
