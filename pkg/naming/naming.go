// Package naming maps between the snake_case names used for persisted
// records and the camelCase names used on the wire.
package naming

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ToCamel converts a snake_case name to lower camelCase.
// Names without underscores are returned unchanged.
func ToCamel(name string) string {
	if !strings.Contains(name, "_") {
		return name
	}

	parts := strings.Split(name, "_")

	var b strings.Builder

	b.Grow(len(name))

	first := true

	for _, part := range parts {
		if part == "" {
			continue
		}

		if first {
			b.WriteString(part)

			first = false

			continue
		}

		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}

	return b.String()
}

// ToSnake converts a camelCase (or already snake_case) name to snake_case.
// A word boundary is inserted before every uppercase run, so acronyms stay
// together: "externalRepoURL" becomes "external_repo_url".
func ToSnake(name string) string {
	runes := []rune(name)

	var b strings.Builder

	b.Grow(len(name) + 4) //nolint:mnd // room for a few separators

	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)

			continue
		}

		if i > 0 && runes[i-1] != '_' {
			prev := runes[i-1]
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			if unicode.IsLower(prev) || unicode.IsDigit(prev) ||
				(unicode.IsUpper(prev) && nextIsLower) {
				b.WriteByte('_')
			}
		}

		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// SnakeizeKeys returns a copy of a decoded JSON value with every object key
// converted by ToSnake. Values stored under any of the opaque keys (matched
// after conversion) are copied verbatim.
func SnakeizeKeys(v any, opaque ...string) any {
	return rewriteKeys(v, ToSnake, toSet(opaque), false)
}

// CamelizeKeys returns a copy of a decoded JSON value with every object key
// converted by ToCamel. Values stored under any of the opaque keys (matched
// before conversion) are copied verbatim.
func CamelizeKeys(v any, opaque ...string) any {
	return rewriteKeys(v, ToCamel, toSet(opaque), true)
}

// Collision is a group of keys in one JSON object that convert to the same
// name. Path is the converted location, e.g. "artifacts[0].size_bytes".
type Collision struct {
	Path string
	Keys []string
}

// SnakeCollisions lists, in path order, the keys SnakeizeKeys would merge
// into one. Values under the opaque keys are not inspected.
func SnakeCollisions(v any, opaque ...string) []Collision {
	var out []Collision

	findCollisions(v, "", ToSnake, toSet(opaque), &out)

	return out
}

func findCollisions(
	v any,
	path string,
	convert func(string) string,
	opaque map[string]struct{},
	out *[]Collision,
) {
	switch val := v.(type) {
	case map[string]any:
		groups := make(map[string][]string, len(val))
		for k := range val {
			converted := convert(k)
			groups[converted] = append(groups[converted], k)
		}

		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			keys := groups[name]
			child := name

			if path != "" {
				child = path + "." + name
			}

			if len(keys) > 1 {
				sort.Strings(keys)
				*out = append(*out, Collision{Path: child, Keys: keys})

				continue
			}

			if _, skip := opaque[name]; skip {
				continue
			}

			findCollisions(val[keys[0]], child, convert, opaque, out)
		}
	case []any:
		for i, child := range val {
			findCollisions(child, path+"["+strconv.Itoa(i)+"]", convert, opaque, out)
		}
	}
}

func rewriteKeys(
	v any,
	convert func(string) string,
	opaque map[string]struct{},
	matchBefore bool,
) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))

		for k, child := range val {
			converted := convert(k)

			match := converted
			if matchBefore {
				match = k
			}

			if _, skip := opaque[match]; skip {
				out[converted] = child

				continue
			}

			out[converted] = rewriteKeys(child, convert, opaque, matchBefore)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = rewriteKeys(child, convert, opaque, matchBefore)
		}

		return out
	default:
		return v
	}
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}

	return set
}
