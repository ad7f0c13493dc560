package util

import (
	"regexp"
	"strings"
)

var whitespaceRunRe = regexp.MustCompile(`\s+`)

// SanitizeTaxonomyValue makes a category or tag name safe for a comma-joined
// list: commas become spaces, whitespace runs collapse, ends are trimmed.
//
//	"News, Updates" -> "News Updates"
func SanitizeTaxonomyValue(name string) string {
	name = strings.ReplaceAll(name, ",", " ")
	return strings.TrimSpace(whitespaceRunRe.ReplaceAllString(name, " "))
}

// JoinTaxonomy sanitizes values and joins the non-empty ones with commas.
// ok is false when nothing is left.
func JoinTaxonomy(values []string) (joined string, ok bool) {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if s := SanitizeTaxonomyValue(v); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, ","), true
}
