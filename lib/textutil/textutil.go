package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// CollapseSpace trims a string and collapses inner whitespace runs to a
// single space.
func CollapseSpace(s string) string {
	s = strings.TrimSpace(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// FlipName turns a "Last, First" roster name into "First Last". Names
// without a comma pass through unchanged.
func FlipName(name string) string {
	last, first, found := strings.Cut(name, ",")
	if !found {
		return CollapseSpace(name)
	}
	return CollapseSpace(first + " " + last)
}
