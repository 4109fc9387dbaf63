// Package template substitutes {name} placeholders with user variable values.
package template

import "regexp"

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Render replaces every {name} placeholder in text with the corresponding
// value from vars. Unknown placeholders render as the bare name so a missing
// variable degrades to readable output instead of leaking braces. Rendering
// never fails.
func Render(text string, vars map[string]string) string {
	if text == "" {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		if val, ok := vars[name]; ok {
			return val
		}
		return name
	})
}

// Placeholders returns the distinct placeholder names referenced by text,
// in order of first appearance.
func Placeholders(text string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
