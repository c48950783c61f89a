package parser

import (
	"strings"
)

// Per-field caps applied when extracting names.
const (
	MaxGenres   = 5
	MaxActors   = 5
	MaxKeywords = 10
)

// ExtractNames looks at the first max elements of list and returns the
// string "name" of each object among them. Non-objects and objects without
// a usable name are skipped but still count toward max. A non-positive max
// means no limit.
func ExtractNames(list []interface{}, max int) []string {
	names := []string{}
	if max > 0 && len(list) > max {
		list = list[:max]
	}
	for _, el := range list {
		obj, ok := el.(Object)
		if !ok {
			continue
		}
		if name, ok := obj["name"].(string); ok && strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	return names
}

// FindDirector returns the name of the first crew entry whose job is
// exactly "Director", or "".
func FindDirector(crew []Object) string {
	for _, member := range crew {
		if job, _ := member["job"].(string); job != "Director" {
			continue
		}
		if name, ok := member["name"].(string); ok {
			return name
		}
	}
	return ""
}

// ParseNames is ParseList followed by ExtractNames.
func ParseNames(raw string, max int) []string {
	return ExtractNames(ParseList(raw), max)
}

// CapNames returns at most max leading names. The result is never nil and
// applying it twice is the same as applying it once.
func CapNames(names []string, max int) []string {
	if names == nil {
		return []string{}
	}
	if max > 0 && len(names) > max {
		out := make([]string, max)
		copy(out, names[:max])
		return out
	}
	return names
}

// RenderNameList encodes names in the same single-quoted literal form the
// source exports use, e.g. [{'name': 'Animation'}].
func RenderNameList(names []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("{'name': '")
		b.WriteString(strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(n))
		b.WriteString("'}")
	}
	b.WriteByte(']')
	return b.String()
}
