package blocks

import (
	"cmp"
	"context"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// inlineText accumulates the text of inline HTML content together with the
// formatting spans found while walking it.
type inlineText struct {
	ctx  context.Context
	opts Options
	base *url.URL

	text        strings.Builder
	runes       int
	annotations []Annotation
}

func newInlineText(ctx context.Context, opts Options, base *url.URL) *inlineText {
	return &inlineText{ctx: ctx, opts: opts, base: base}
}

// write appends s with whitespace collapsed. A space is never written at the
// start or right after another space or line break.
func (t *inlineText) write(s string) {
	s = whitespaceRun.ReplaceAllString(s, " ")
	if s == "" {
		return
	}
	if strings.HasPrefix(s, " ") && t.endsWithSpace() {
		s = s[1:]
	}
	t.text.WriteString(s)
	t.runes += utf8.RuneCountInString(s)
}

func (t *inlineText) endsWithSpace() bool {
	cur := t.text.String()
	return cur == "" || strings.HasSuffix(cur, " ") || strings.HasSuffix(cur, "\n")
}

// blockLevel elements start on a line of their own when they occur inside
// inline content, such as a paragraph inside a list item.
var blockLevel = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "figcaption": true,
	"figure": true, "footer": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "li": true, "ol": true,
	"p": true, "pre": true, "section": true, "table": true, "tr": true, "ul": true,
}

// endLine starts a new line unless the text is empty or already ends one.
func (t *inlineText) endLine() {
	cur := t.text.String()
	if cur == "" || strings.HasSuffix(cur, "\n") {
		return
	}
	if strings.HasSuffix(cur, " ") {
		t.text.Reset()
		t.text.WriteString(strings.TrimRight(cur, " "))
		t.runes -= len(cur) - len(strings.TrimRight(cur, " "))
	}
	t.lineBreak()
}

func (t *inlineText) lineBreak() {
	t.text.WriteString("\n")
	t.runes++
}

func (t *inlineText) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		t.write(n.Data)
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.Data {
	case "br":
		t.lineBreak()
		return
	case "img", "iframe", "script", "style", "noscript", "svg":
		return
	}

	block := blockLevel[n.Data]
	if block {
		t.endLine()
	}
	start := t.runes
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		t.walk(c)
	}
	end := t.runes
	if block {
		t.endLine()
	} else if n.Data == "td" || n.Data == "th" {
		t.write(" ")
	}
	if end <= start {
		return
	}

	if typ := annotationFor(n.Data); typ != "" {
		t.annotations = append(t.annotations, Annotation{Type: typ, Starts: []int{start}, Ends: []int{end}})
	}
	if n.Data == "a" {
		if href := attr(n, "href"); href != "" {
			t.annotations = append(t.annotations, Annotation{
				Type:   AnnotationLink,
				Starts: []int{start},
				Ends:   []int{end},
				Link:   t.resolveLink(href),
			})
		}
	}
}

func annotationFor(tag string) string {
	switch tag {
	case "b", "strong":
		return AnnotationBold
	case "em", "i":
		return AnnotationItalic
	case "u":
		return AnnotationUnderline
	case "s", "del", "strike":
		return AnnotationStrike
	case "code", "kbd", "tt":
		return AnnotationCode
	}
	return ""
}

func (t *inlineText) resolveLink(href string) string {
	href = resolveURL(t.base, href)
	if t.opts.ResolveLink == nil {
		return href
	}
	resolved, err := t.opts.ResolveLink(t.ctx, href)
	if err != nil || resolved == "" {
		return href
	}
	return resolved
}

// result returns the trimmed text and its annotations, clamped to the text
// and ordered by start, end, then type.
func (t *inlineText) result() (string, []Annotation) {
	text := strings.TrimRight(t.text.String(), " \n")
	n := utf8.RuneCountInString(text)

	out := make([]Annotation, 0, len(t.annotations))
	for _, a := range t.annotations {
		start, end := min(a.Starts[0], n), min(a.Ends[0], n)
		if start >= end {
			continue
		}
		a.Starts, a.Ends = []int{start}, []int{end}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Annotation) int {
		if c := cmp.Compare(a.Starts[0], b.Starts[0]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Ends[0], b.Ends[0]); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
	return text, out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	return slices.Contains(strings.Fields(attr(n, "class")), class)
}

// find returns the first descendant element of n (depth first) matching fn.
func find(n *html.Node, fn func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && fn(c) {
			return c
		}
		if found := find(c, fn); found != nil {
			return found
		}
	}
	return nil
}

func isTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func resolveURL(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
