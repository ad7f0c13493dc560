package wxr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Slash, query and fragment markers, whitespace and control characters.
	slugSeparatorRe = regexp.MustCompile(`[/?#\s\x00-\x1f\x7f]+`)
	emailRe         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	keyNameInvalid  = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

const (
	maxKeyNameSlug  = 32
	keyDigestLength = 8
)

// NormalizeAuthorLogin canonicalizes a login so the same author matches across
// wp:author entries and dc:creator fields. "  <![CDATA[Alice]]> " -> "alice".
func NormalizeAuthorLogin(login string) string {
	login = strings.ReplaceAll(login, "<![CDATA[", "")
	login = strings.ReplaceAll(login, "]]>", "")
	login = strings.NewReplacer("<", "", ">", "").Replace(login)
	return strings.ToLower(strings.TrimSpace(login))
}

// FallbackAuthorLogin is the synthetic login given to posts without an author.
func FallbackAuthorLogin(postID int) string {
	return fmt.Sprintf("unknown-author-%d", postID)
}

// AuthorDisplayName returns the declared display name, or the login when empty.
func AuthorDisplayName(login, displayName string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	return login
}

// IsEmailUsableForAuthored reports whether an author may get their own
// signing key: the email must look like local@domain.tld.
func IsEmailUsableForAuthored(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

// NormalizeSlug turns a raw slug or link segment into one path segment.
//
//	NormalizeSlug("", 42)             -> "post-42"
//	NormalizeSlug("/foo/bar?baz", 5)  -> "foo-bar-baz"
//	NormalizeSlug("caf%C3%A9", 1)     -> "café"
func NormalizeSlug(raw string, postID int) string {
	s := strings.TrimSpace(raw)
	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}
	s = strings.Trim(strings.TrimSpace(s), "/")
	s = slugSeparatorRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return fmt.Sprintf("post-%d", postID)
	}
	return s
}

// ExtractSlugFromLink returns the last non-empty path segment of a permalink,
// still percent-encoded, or "" when the link has none.
//
//	"https://x.com/2020/01/01/hello-world/" -> "hello-world"
//	"https://x.com/?p=12"                   -> ""
func ExtractSlugFromLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	segments := strings.Split(u.EscapedPath(), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}

// CreateAuthorKeyName derives the signing key name for an author. The same
// (scope, login) always yields the same name and a different scope yields a
// different suffix, so registration can be repeated safely across resumes.
//
//	CreateAuthorKeyName("z6Mk:https://blog.example", "Alice") -> "alice-" + 8 hex chars
func CreateAuthorKeyName(scope, login string) string {
	normalized := NormalizeAuthorLogin(login)

	slug := keyNameSlug(normalized)
	if slug == "" {
		slug = "author"
	}

	sum := sha256.Sum256([]byte(scope + ":" + normalized))
	return slug + "-" + hex.EncodeToString(sum[:])[:keyDigestLength]
}

func keyNameSlug(s string) string {
	s = norm.NFKD.String(s)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
	s = keyNameInvalid.ReplaceAllString(s, "-")
	s = multipleHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxKeyNameSlug {
		s = strings.TrimRight(s[:maxKeyNameSlug], "-")
	}
	return s
}
