// Package wxr parses WordPress eXtended RSS exports into a flat model of
// authors, posts, pages and attachments, and holds the normalization rules
// used to turn that model into import paths and key names.
package wxr

// Item types understood by the importer.
const (
	TypePost       = "post"
	TypePage       = "page"
	TypeAttachment = "attachment"
)

// StatusPublish is the only status that gets imported.
const StatusPublish = "publish"

// Author is a declared wp:author entry.
type Author struct {
	Login       string // normalized, unique within one export
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
}

// Post is a post, page or other non-attachment item.
// Zero values mean "absent" for the optional fields.
type Post struct {
	ID            int
	Title         string
	Slug          string // wp:post_name
	Link          string
	Content       string // HTML
	Excerpt       string
	Status        string
	Type          string
	AuthorLogin   string // normalized
	PubDate       string
	PostDate      string
	PostDateGMT   string
	ParentID      int
	MenuOrder     int
	AttachmentURL string
	Categories    []string
	Tags          []string
}

// IsPublished reports whether the item should be imported.
func (p *Post) IsPublished() bool {
	return p.Status == StatusPublish
}

// Media is an attachment item.
type Media struct {
	ID       int
	URL      string
	Title    string
	MimeType string
	ParentID int
}

// ParseResult is everything extracted from one export.
// Attachments never appear in Posts or Pages.
type ParseResult struct {
	SiteTitle   string
	SiteURL     string
	Authors     []Author
	Posts       []Post
	Pages       []Post
	Attachments []Media
}

// Items returns posts followed by pages, the order imports are planned in.
func (r *ParseResult) Items() []Post {
	out := make([]Post, 0, len(r.Posts)+len(r.Pages))
	out = append(out, r.Posts...)
	return append(out, r.Pages...)
}

// AuthorMap indexes declared authors by login.
func (r *ParseResult) AuthorMap() map[string]Author {
	m := make(map[string]Author, len(r.Authors))
	for _, a := range r.Authors {
		m[a.Login] = a
	}
	return m
}

// UniqueAuthorLogins returns the distinct non-empty author logins of posts and
// pages in first-seen order.
func (r *ParseResult) UniqueAuthorLogins() []string {
	seen := make(map[string]bool)
	var logins []string
	for _, p := range r.Items() {
		if p.AuthorLogin == "" || seen[p.AuthorLogin] {
			continue
		}
		seen[p.AuthorLogin] = true
		logins = append(logins, p.AuthorLogin)
	}
	return logins
}
