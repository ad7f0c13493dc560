package blocks

import (
	"fmt"
	"regexp"

	"golang.org/x/net/html"
)

// shortcodeNamespace is the namespace of elements made from shortcodes.
const shortcodeNamespace = "wp"

var (
	// shortcodeTag matches an opening, closing or self-closing caption
	// shortcode, and the escaped [[caption]] form.
	shortcodeTag = regexp.MustCompile(`(\[?)\[(/?)(caption|wp_caption)\b([^\]]*?)(/?)\](\]?)`)
	// shortcodeAttr matches key=value pairs with double, single or no quotes.
	shortcodeAttr = regexp.MustCompile(`(\w+)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"']+))`)
)

// expandShortcodes rewrites caption shortcodes in the text under parent into
// elements in the "wp" namespace that hold the enclosed nodes. Both ends of a
// shortcode must share a parent element, and captions do not nest.
func expandShortcodes(parent *html.Node) error {
	var open *html.Node
	for n := parent.FirstChild; n != nil; {
		next := n.NextSibling
		into := open

		switch n.Type {
		case html.TextNode:
			var err error
			if open, next, err = splitShortcode(n, open); err != nil {
				return err
			}
		case html.ElementNode:
			if err := expandShortcodes(n); err != nil {
				return err
			}
		}

		if into != nil {
			parent.RemoveChild(n)
			into.AppendChild(n)
		}
		n = next
	}
	if open != nil {
		return fmt.Errorf("shortcode [%s] is not closed", open.Data)
	}
	return nil
}

// splitShortcode cuts the first shortcode out of the text node n. An opening
// tag becomes a new element after n; the text that follows moves to a new
// node, returned as the next node to visit.
func splitShortcode(n *html.Node, open *html.Node) (*html.Node, *html.Node, error) {
	offset := 0
	for {
		m := shortcodeTag.FindStringSubmatchIndex(n.Data[offset:])
		if m == nil {
			return open, n.NextSibling, nil
		}
		start, end := offset+m[0], offset+m[1]
		sub := func(group int) string {
			if m[2*group] < 0 {
				return ""
			}
			return n.Data[offset+m[2*group] : offset+m[2*group+1]]
		}

		// [[caption]] is the literal text [caption].
		if sub(1) == "[" && sub(6) == "]" {
			literal := n.Data[start+1 : end-1]
			n.Data = n.Data[:start] + literal + n.Data[end:]
			offset = start + len(literal)
			continue
		}
		if sub(1) == "[" {
			start++
		}
		if sub(6) == "]" {
			end--
		}

		name := sub(3)
		closing := sub(2) == "/"
		selfClosing := sub(5) == "/"
		switch {
		case closing && open == nil:
			return nil, nil, fmt.Errorf("shortcode [/%s] closes nothing", name)
		case closing && open.Data != name:
			return nil, nil, fmt.Errorf("shortcode [/%s] closes [%s]", name, open.Data)
		case !closing && open != nil:
			return nil, nil, fmt.Errorf("shortcode [%s] opened inside [%s]", name, open.Data)
		}

		rest := &html.Node{Type: html.TextNode, Data: n.Data[end:]}
		n.Data = n.Data[:start]
		n.Parent.InsertBefore(rest, n.NextSibling)

		if closing {
			return nil, rest, nil
		}
		el := &html.Node{
			Type:      html.ElementNode,
			Data:      name,
			Namespace: shortcodeNamespace,
			Attr:      shortcodeAttrs(sub(4)),
		}
		n.Parent.InsertBefore(el, rest)
		if selfClosing {
			return nil, rest, nil
		}
		return el, rest, nil
	}
}

func shortcodeAttrs(s string) []html.Attribute {
	var attrs []html.Attribute
	for _, m := range shortcodeAttr.FindAllStringSubmatch(s, -1) {
		attrs = append(attrs, html.Attribute{Key: m[1], Val: m[2] + m[3] + m[4]})
	}
	return attrs
}

// dropEmptyText removes the empty text nodes left by splitting.
func dropEmptyText(parent *html.Node) {
	for n := parent.FirstChild; n != nil; {
		next := n.NextSibling
		switch {
		case n.Type == html.TextNode && n.Data == "":
			parent.RemoveChild(n)
		case n.Type == html.ElementNode:
			dropEmptyText(n)
		}
		n = next
	}
}

func isShortcode(n *html.Node) bool {
	return n.Namespace == shortcodeNamespace
}
