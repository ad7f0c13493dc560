package wxr

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// ErrNoChannel is returned for well-formed XML that has no RSS channel.
var ErrNoChannel = errors.New("wxr: document has no <channel> element")

// node is a minimal element tree. WXR files are small enough to hold in memory
// and the tree lets lookups ignore namespace prefixes.
type node struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*node
	text     strings.Builder // own character data only
}

func (n *node) attr(local string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// plain reports whether n is an un-namespaced element called local.
// RSS core fields (title, link, item, category) are matched this way so
// atom:link and friends do not shadow them.
func (n *node) plain(local string) bool {
	return n.name.Local == local && n.name.Space == ""
}

// child returns the first child whose local name matches, regardless of namespace.
func (n *node) child(local string) *node {
	for _, c := range n.children {
		if c.name.Local == local {
			return c
		}
	}
	return nil
}

func (n *node) plainChild(local string) *node {
	for _, c := range n.children {
		if c.plain(local) {
			return c
		}
	}
	return nil
}

// value returns the trimmed text of the first child matching local.
func (n *node) value(local string) string {
	return textOf(n.child(local))
}

// textOf returns the trimmed text of n followed by the text of its descendants.
func textOf(n *node) string {
	if n == nil {
		return ""
	}
	if len(n.children) == 0 {
		return stripCDATA(n.text.String())
	}
	var b strings.Builder
	n.writeText(&b)
	return stripCDATA(b.String())
}

func (n *node) writeText(b *strings.Builder) {
	b.WriteString(n.text.String())
	for _, c := range n.children {
		c.writeText(b)
	}
}

// stripCDATA removes literal CDATA markers left behind by double-wrapped exports.
func stripCDATA(s string) string {
	if strings.Contains(s, "<![CDATA[") || strings.Contains(s, "]]>") {
		s = strings.ReplaceAll(s, "<![CDATA[", "")
		s = strings.ReplaceAll(s, "]]>", "")
	}
	return strings.TrimSpace(s)
}

// ParseString parses an export held in memory.
func ParseString(doc string) (*ParseResult, error) {
	return Parse(strings.NewReader(doc))
}

// Parse reads a WXR export. Malformed XML fails the whole parse; there is no
// partial result.
func Parse(r io.Reader) (*ParseResult, error) {
	root, err := buildTree(r)
	if err != nil {
		return nil, err
	}

	channel := findChannel(root)
	if channel == nil {
		return nil, ErrNoChannel
	}

	result := &ParseResult{
		SiteTitle: textOf(channel.plainChild("title")),
		SiteURL:   textOf(channel.plainChild("link")),
	}

	for _, c := range channel.children {
		switch {
		case c.name.Local == "author":
			if author, ok := parseAuthor(c); ok {
				result.Authors = append(result.Authors, author)
			}
		case c.plain("item"):
			parseItem(c, result)
		}
	}

	return result, nil
}

func buildTree(r io.Reader) (*node, error) {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	d.Entity = xml.HTMLEntity

	root := &node{}
	stack := []*node{root}

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wxr: parse xml: %w", err)
		}

		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name, attrs: t.Attr}
			top.children = append(top.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			top.text.Write(t)
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("wxr: parse xml: %w", io.ErrUnexpectedEOF)
	}
	return root, nil
}

func findChannel(n *node) *node {
	for _, c := range n.children {
		if c.plain("channel") {
			return c
		}
		if found := findChannel(c); found != nil {
			return found
		}
	}
	return nil
}

func parseAuthor(n *node) (Author, bool) {
	login := NormalizeAuthorLogin(n.value("author_login"))
	if login == "" {
		return Author{}, false
	}
	displayName := n.value("author_display_name")
	if displayName == "" {
		displayName = login
	}
	return Author{
		Login:       login,
		Email:       n.value("author_email"),
		DisplayName: displayName,
		FirstName:   n.value("author_first_name"),
		LastName:    n.value("author_last_name"),
	}, true
}

func parseItem(item *node, result *ParseResult) {
	postType := item.value("post_type")
	if postType == "" {
		postType = TypePost
	}
	id := leadingInt(item.value("post_id"))
	title := textOf(item.plainChild("title"))
	parentID := leadingInt(item.value("post_parent"))
	attachmentURL := item.value("attachment_url")

	if postType == TypeAttachment {
		result.Attachments = append(result.Attachments, Media{
			ID:       id,
			URL:      attachmentURL,
			Title:    title,
			MimeType: item.value("post_mime_type"),
			ParentID: parentID,
		})
		return
	}

	if postType != TypePost && postType != TypePage {
		return
	}

	content, excerpt := encodedFields(item)

	status := item.value("status")
	if status == "" {
		status = StatusPublish
	}

	post := Post{
		ID:            id,
		Title:         title,
		Slug:          item.value("post_name"),
		Link:          textOf(item.plainChild("link")),
		Content:       content,
		Excerpt:       excerpt,
		Status:        status,
		Type:          postType,
		AuthorLogin:   NormalizeAuthorLogin(item.value("creator")),
		PubDate:       textOf(item.plainChild("pubDate")),
		PostDate:      item.value("post_date"),
		PostDateGMT:   item.value("post_date_gmt"),
		ParentID:      parentID,
		MenuOrder:     leadingInt(item.value("menu_order")),
		AttachmentURL: attachmentURL,
		Categories:    []string{},
		Tags:          []string{},
	}

	for _, c := range item.children {
		if !c.plain("category") {
			continue
		}
		// WordPress writes a nicename on every real term; bare categories are RSS noise.
		if _, ok := c.attr("nicename"); !ok {
			continue
		}
		domain, _ := c.attr("domain")
		switch domain {
		case "category":
			post.Categories = append(post.Categories, textOf(c))
		case "post_tag":
			post.Tags = append(post.Tags, textOf(c))
		}
	}

	if postType == TypePage {
		result.Pages = append(result.Pages, post)
	} else {
		result.Posts = append(result.Posts, post)
	}
}

// encodedFields splits content:encoded from excerpt:encoded. Both share the
// local name "encoded"; the excerpt lives in a namespace containing "excerpt".
func encodedFields(item *node) (content, excerpt string) {
	var haveContent, haveExcerpt bool
	for _, c := range item.children {
		if c.name.Local != "encoded" {
			continue
		}
		if strings.Contains(c.name.Space, "excerpt") {
			if !haveExcerpt {
				excerpt, haveExcerpt = textOf(c), true
			}
			continue
		}
		if !haveContent {
			content, haveContent = textOf(c), true
		}
	}
	return content, excerpt
}

// leadingInt parses the leading decimal digits of s, returning 0 when there are none.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		return -n
	}
	return n
}
