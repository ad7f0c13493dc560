package blocks

import (
	"regexp"
	"strings"
)

var (
	blankLine     = regexp.MustCompile(`\n[ \t]*\n`)
	blockTagStart = regexp.MustCompile(`(?i)^<(?:h[1-6]|ul|ol|li|pre|blockquote|figure|table|div|iframe|hr|section|dl|address|form)[\s>/]`)
)

// Autop wraps the blank-line separated chunks of a classic editor post in
// paragraphs, the way WordPress renders them. Bodies that already carry
// paragraph markup, preformatted text, or block editor comments are returned
// unchanged.
func Autop(src string) string {
	lower := strings.ToLower(src)
	if strings.Contains(lower, "<p") || strings.Contains(lower, "<pre") || strings.Contains(src, "<!-- wp:") {
		return src
	}
	src = strings.ReplaceAll(src, "\r\n", "\n")
	if !strings.Contains(src, "\n") {
		return src
	}

	chunks := blankLine.Split(src, -1)
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if blockTagStart.MatchString(chunk) {
			out = append(out, chunk)
			continue
		}
		out = append(out, "<p>"+strings.ReplaceAll(chunk, "\n", "<br>\n")+"</p>")
	}
	return strings.Join(out, "\n\n")
}
