package blocks

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/strikethrough"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/seedhypermedia/wxr-importer/internal/id"
)

// formattedHeadingLevel is the level given to paragraphs that only hold bold
// or italic text. It nests them under real h1-h3 headings.
const formattedHeadingLevel = 4

// markdownConverter renders elements without a block equivalent. Tables keep
// their rows and columns as a GitHub-flavored Markdown table; a table without
// header cells uses its first row as the header.
var markdownConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		strikethrough.NewStrikethroughPlugin(),
		table.NewTablePlugin(table.WithHeaderPromotion(true)),
	),
)

// HTMLConverter is the default Converter. It parses the post body as an HTML
// fragment and maps each top-level element to a block. Content following a
// heading nests under it.
type HTMLConverter struct {
	logger *slog.Logger
}

var _ Converter = (*HTMLConverter)(nil)

// NewHTMLConverter creates a converter.
func NewHTMLConverter(logger *slog.Logger) *HTMLConverter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTMLConverter{logger: logger}
}

// element is one converted top-level element before the heading hierarchy is built.
type element struct {
	heading bool
	level   int
	node    *Node
}

type conversion struct {
	ctx    context.Context
	opts   Options
	base   *url.URL
	src    string
	logger *slog.Logger

	elements []element
	pending  []*html.Node // inline nodes waiting to become a paragraph
}

// Convert implements Converter.
func (c *HTMLConverter) Convert(ctx context.Context, src string, opts Options) ([]*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(src) == "" {
		return []*Node{}, nil
	}

	src = Autop(src)

	nodes, err := c.parse(src)
	if err != nil {
		return nil, err
	}

	var base *url.URL
	if opts.BaseURL != "" {
		if u, err := url.Parse(opts.BaseURL); err == nil {
			base = u
		}
	}

	conv := &conversion{ctx: ctx, opts: opts, base: base, src: src, logger: c.logger}
	conv.process(nodes)
	conv.flush()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return buildHierarchy(conv.elements), nil
}

// parse reads src as a fragment of a body element and expands its caption
// shortcodes. Shortcodes that do not balance are left as text.
func (c *HTMLConverter) parse(src string) ([]*html.Node, error) {
	body, err := parseBody(src)
	if err != nil {
		return nil, err
	}
	if !shortcodeTag.MatchString(src) {
		return children(body), nil
	}
	if err := expandShortcodes(body); err != nil {
		c.logger.Debug("keeping shortcodes as text", "error", err)
		if body, err = parseBody(src); err != nil {
			return nil, err
		}
		return children(body), nil
	}
	dropEmptyText(body)
	return children(body), nil
}

func parseBody(src string) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return body, nil
}

func (c *conversion) add(node *Node) {
	if node != nil {
		c.elements = append(c.elements, element{node: node})
	}
}

func (c *conversion) addHeading(level int, node *Node) {
	if node != nil {
		c.elements = append(c.elements, element{heading: true, level: level, node: node})
	}
}

// flush turns the pending inline run into a paragraph.
func (c *conversion) flush() {
	if len(c.pending) == 0 {
		return
	}
	t := newInlineText(c.ctx, c.opts, c.base)
	for _, n := range c.pending {
		t.walk(n)
	}
	c.pending = c.pending[:0]
	c.add(paragraph(t))
}

var inlineTags = map[string]bool{
	"a": true, "abbr": true, "b": true, "br": true, "cite": true, "code": true,
	"del": true, "em": true, "i": true, "kbd": true, "mark": true, "q": true,
	"s": true, "small": true, "span": true, "strike": true, "strong": true,
	"sub": true, "sup": true, "time": true, "tt": true, "u": true,
}

var containerTags = map[string]bool{
	"article": true, "aside": true, "center": true, "div": true, "footer": true,
	"header": true, "main": true, "section": true,
}

func (c *conversion) process(nodes []*html.Node) {
	for _, n := range nodes {
		if c.ctx.Err() != nil {
			return
		}
		switch n.Type {
		case html.TextNode:
			c.pending = append(c.pending, n)
			continue
		case html.ElementNode:
		default:
			continue
		}

		if inlineTags[n.Data] {
			c.pending = append(c.pending, n)
			continue
		}
		c.flush()

		if level := headingLevel(n.Data); level > 0 {
			c.addHeading(level, heading(c.inline(n)))
			continue
		}

		switch {
		case isShortcode(n):
			c.caption(n)
		case n.Data == "p":
			c.paragraph(n)
		case n.Data == "figure":
			c.figure(n)
		case n.Data == "img":
			c.add(c.image(n, nil))
		case n.Data == "iframe" || n.Data == "embed" || n.Data == "video":
			c.add(embed(attr(n, "src")))
		case n.Data == "pre":
			c.add(codeBlock(n))
		case n.Data == "blockquote":
			c.blockquote(n)
		case n.Data == "ul" || n.Data == "ol":
			c.add(c.list(n))
		case containerTags[n.Data]:
			c.process(children(n))
			c.flush()
		case n.Data == "hr", n.Data == "script", n.Data == "style", n.Data == "noscript":
		default:
			c.add(c.markdown(n))
		}
	}
}

func (c *conversion) inline(n *html.Node) *inlineText {
	t := newInlineText(c.ctx, c.opts, c.base)
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		t.walk(ch)
	}
	return t
}

func (c *conversion) paragraph(n *html.Node) {
	if iframe := find(n, isTag("iframe")); iframe != nil {
		c.add(embed(attr(iframe, "src")))
		return
	}
	if find(n, isShortcode) != nil {
		c.process(children(n))
		c.flush()
		return
	}
	if imgs := onlyImages(n); len(imgs) > 0 {
		for _, img := range imgs {
			c.add(c.image(img, nil))
		}
		return
	}
	if treatAsHeading(n, len(c.elements) > 0 && strings.Contains(c.src, "\n\n<p")) {
		c.addHeading(formattedHeadingLevel, heading(c.inline(n)))
		return
	}
	c.add(paragraph(c.inline(n)))
}

func (c *conversion) figure(n *html.Node) {
	if img := find(n, isTag("img")); img != nil {
		c.add(c.image(img, find(n, isTag("figcaption"))))
		return
	}
	if iframe := find(n, isTag("iframe")); iframe != nil {
		c.add(embed(attr(iframe, "src")))
		return
	}
	if wrapper := find(n, func(x *html.Node) bool { return hasClass(x, "wp-block-embed__wrapper") }); wrapper != nil {
		c.add(embed(strings.TrimSpace(textContent(wrapper))))
		return
	}
	c.process(children(n))
	c.flush()
}

// caption converts a [caption] shortcode into an Image block captioned by
// the text around the image, or by its caption attribute.
func (c *conversion) caption(n *html.Node) {
	img := find(n, isTag("img"))
	if img == nil {
		c.process(children(n))
		c.flush()
		return
	}
	node := c.image(img, n)
	if node == nil {
		return
	}
	if node.Block.Text == "" {
		if text := attr(n, "caption"); text != "" {
			node.Block.Text = text
			delete(node.Block.Attributes, "alt")
		}
	}
	if attr(img, "width") == "" {
		if w, err := strconv.Atoi(attr(n, "width")); err == nil && w > 0 {
			node.Block.Attributes["width"] = strconv.Itoa(w)
		}
	}
	c.add(node)
}

// image builds an Image block. The source goes through UploadImage when set;
// without a content id the absolute source URL is kept.
func (c *conversion) image(img, caption *html.Node) *Node {
	src := attr(img, "src")
	if src == "" {
		src = attr(img, "data-src")
	}
	if src == "" {
		return nil
	}
	src = resolveURL(c.base, src)

	link := src
	width := 0
	if c.opts.UploadImage != nil {
		uploaded, err := c.opts.UploadImage(c.ctx, src)
		switch {
		case err != nil:
			c.logger.Debug("image upload failed, keeping source url", "src", src, "error", err)
		case uploaded.CID != "":
			link = "ipfs://" + uploaded.CID
			width = uploaded.Width
		}
	}
	// The width set in the editor wins over the file's own width.
	if w, err := strconv.Atoi(attr(img, "width")); err == nil && w > 0 {
		width = w
	}

	block := newBlock(TypeImage)
	block.Link = link
	if width > 0 {
		block.Attributes["width"] = strconv.Itoa(width)
	}
	if caption != nil {
		block.Text, block.Annotations = c.inline(caption).result()
	}
	if block.Text == "" {
		if alt := attr(img, "alt"); alt != "" {
			block.Attributes["alt"] = alt
		}
	}
	return &Node{Block: block}
}

func (c *conversion) blockquote(n *html.Node) {
	switch {
	case hasClass(n, "twitter-tweet"):
		var link string
		find(n, func(a *html.Node) bool {
			if a.Data == "a" && tweetStatus.MatchString(attr(a, "href")) {
				link = attr(a, "href")
			}
			return false
		})
		if link != "" {
			c.add(webEmbed(canonicalURL(link)))
			return
		}
	case hasClass(n, "instagram-media"):
		link := attr(n, "data-instgrm-permalink")
		if link == "" {
			if a := find(n, func(x *html.Node) bool { return x.Data == "a" && attr(x, "href") != "" }); a != nil {
				link = attr(a, "href")
			}
		}
		if link != "" {
			c.add(webEmbed(link))
			return
		}
	}

	inner := &conversion{ctx: c.ctx, opts: c.opts, base: c.base, src: c.src, logger: c.logger}
	inner.process(children(n))
	inner.flush()
	if len(inner.elements) == 0 {
		return
	}

	quote := newBlock(TypeParagraph)
	quote.Attributes["childrenType"] = ChildrenBlockquote
	node := &Node{Block: quote}
	for _, el := range inner.elements {
		node.Children = append(node.Children, el.node)
	}
	c.add(node)
}

// list converts ul/ol into a parent block whose children are the items.
func (c *conversion) list(n *html.Node) *Node {
	parent := &Node{Block: newBlock(TypeParagraph)}
	c.fillList(parent, n)
	if len(parent.Children) == 0 {
		return nil
	}
	return parent
}

func (c *conversion) fillList(parent *Node, list *html.Node) {
	childrenType := ChildrenUnordered
	if list.Data == "ol" {
		childrenType = ChildrenOrdered
	}
	parent.Block.Attributes["childrenType"] = childrenType

	for li := list.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}

		t := newInlineText(c.ctx, c.opts, c.base)
		var nested []*html.Node
		for ch := li.FirstChild; ch != nil; ch = ch.NextSibling {
			if ch.Type == html.ElementNode && (ch.Data == "ul" || ch.Data == "ol") {
				nested = append(nested, ch)
				continue
			}
			t.walk(ch)
		}

		item := &Node{Block: newBlock(TypeParagraph)}
		item.Block.Text, item.Block.Annotations = t.result()
		for _, sub := range nested {
			c.fillList(item, sub)
		}
		if item.Block.Text == "" && len(item.Children) == 0 {
			continue
		}
		parent.Children = append(parent.Children, item)
	}
}

// markdown stores elements without a block equivalent (tables, definition
// lists, forms) as a paragraph of Markdown.
func (c *conversion) markdown(n *html.Node) *Node {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return nil
	}
	md, err := markdownConverter.ConvertString(buf.String())
	if err != nil {
		c.logger.Debug("markdown conversion failed", "tag", n.Data, "error", err)
		md = whitespaceRun.ReplaceAllString(textContent(n), " ")
	}
	md = strings.TrimSpace(md)
	if md == "" {
		return nil
	}
	block := newBlock(TypeParagraph)
	block.Text = md
	return &Node{Block: block}
}

func newBlock(typ string) Block {
	return Block{
		ID:          id.NewBlockID(),
		Type:        typ,
		Revision:    id.NewBlockID(),
		Attributes:  map[string]string{},
		Annotations: []Annotation{},
	}
}

func paragraph(t *inlineText) *Node {
	text, annotations := t.result()
	if text == "" {
		return nil
	}
	block := newBlock(TypeParagraph)
	block.Text, block.Annotations = text, annotations
	return &Node{Block: block}
}

// heading drops formatting: the heading style replaces it.
func heading(t *inlineText) *Node {
	text, _ := t.result()
	if text == "" {
		return nil
	}
	block := newBlock(TypeHeading)
	block.Text = text
	return &Node{Block: block}
}

func codeBlock(n *html.Node) *Node {
	text := strings.TrimRight(textContent(n), "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	block := newBlock(TypeCode)
	block.Text = text
	if lang := codeLanguage(n); lang != "" {
		block.Attributes["language"] = lang
	}
	return &Node{Block: block}
}

var languageClass = regexp.MustCompile(`(?:^|\s)(?:language-|lang-|lang:)([\w+#-]+)`)

func codeLanguage(pre *html.Node) string {
	candidates := []string{attr(pre, "class")}
	if code := find(pre, isTag("code")); code != nil {
		candidates = append(candidates, attr(code, "class"))
	}
	for _, class := range candidates {
		if m := languageClass.FindStringSubmatch(class); m != nil {
			return strings.ToLower(m[1])
		}
	}
	return ""
}

var tweetStatus = regexp.MustCompile(`(?:twitter|x)\.com/[^/]+/status/`)

// embed maps an embedded player URL to a Video block for YouTube and Vimeo,
// and to a WebEmbed block otherwise.
func embed(src string) *Node {
	if src == "" {
		return nil
	}
	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return webEmbed(src)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case (host == "youtube.com" || host == "youtube-nocookie.com") && strings.HasPrefix(u.Path, "/embed/"),
		host == "youtu.be",
		host == "player.vimeo.com":
		block := newBlock(TypeVideo)
		block.Link = canonicalURL(src)
		return &Node{Block: block}
	}
	return webEmbed(src)
}

func webEmbed(link string) *Node {
	block := newBlock(TypeWebEmbed)
	block.Link = link
	return &Node{Block: block}
}

// canonicalURL drops the query and fragment.
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host + u.Path
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// onlyImages returns the images of a paragraph that holds nothing but images
// (optionally wrapped in links) and whitespace.
func onlyImages(p *html.Node) []*html.Node {
	var imgs []*html.Node
	ok := true
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil && ok; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				if strings.TrimSpace(c.Data) != "" {
					ok = false
				}
			case c.Type == html.ElementNode && c.Data == "img":
				imgs = append(imgs, c)
			case c.Type == html.ElementNode && (c.Data == "a" || c.Data == "span" || c.Data == "br"):
				walk(c)
			case c.Type == html.ElementNode:
				ok = false
			}
		}
	}
	walk(p)
	if !ok {
		return nil
	}
	return imgs
}

// treatAsHeading reports whether a paragraph made only of bold or emphasized
// runs reads as a heading: either whitespace sits between the runs, or it is
// a single run standing on its own.
func treatAsHeading(p *html.Node, standalone bool) bool {
	formatting := 0
	whitespace := false
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return false
			}
			if c.Data != "" {
				whitespace = true
			}
		case html.ElementNode:
			switch c.Data {
			case "strong", "b", "em":
				formatting++
			default:
				return false
			}
		}
	}
	return formatting > 0 && (whitespace || (formatting == 1 && standalone))
}

// buildHierarchy nests content under the closest preceding heading, and
// headings under the closest preceding heading of a lower level.
func buildHierarchy(elements []element) []*Node {
	type open struct {
		level int
		node  *Node
	}
	roots := []*Node{}
	var stack []open

	attach := func(n *Node) {
		if len(stack) == 0 {
			roots = append(roots, n)
			return
		}
		parent := stack[len(stack)-1].node
		parent.Children = append(parent.Children, n)
	}

	for _, el := range elements {
		if !el.heading {
			attach(el.node)
			continue
		}
		for len(stack) > 0 && stack[len(stack)-1].level >= el.level {
			stack = stack[:len(stack)-1]
		}
		attach(el.node)
		stack = append(stack, open{level: el.level, node: el.node})
	}
	return roots
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}
