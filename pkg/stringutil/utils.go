// Package stringutil holds string helpers shared by the reply pipeline.
package stringutil

import (
	"regexp"
	"strings"
)

var (
	placeholderRE = regexp.MustCompile(`\{([a-z]+)\}`)
	tagRE         = regexp.MustCompile(`<[^<]+?>`)
)

// ExpandPlaceholders substitutes `{key}` markers in s with values from vars.
// Keys missing from vars expand to the empty string.
func ExpandPlaceholders(s string, vars map[string]string) string {
	return placeholderRE.ReplaceAllStringFunc(s, func(m string) string {
		key := m[1 : len(m)-1]
		return vars[key]
	})
}

// PlaceholderKeys returns the distinct `{key}` names referenced by s, in
// order of first appearance.
func PlaceholderKeys(s string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, m := range placeholderRE.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// StripTags removes every angle-bracketed run from s. It is deliberately
// blunt: literal < and > in the input are stripped along with real markup.
func StripTags(s string) string {
	return tagRE.ReplaceAllString(s, "")
}

// ContainsAny returns the first element of patterns that is a substring of s,
// or the empty string when none match. Matching is case sensitive.
func ContainsAny(s string, patterns []string) string {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return p
		}
	}
	return ""
}
