package wxr

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAuthorLogin(t *testing.T) {
	tests := map[string]string{
		"Alice":             "alice",
		"  Bob  ":           "bob",
		"<![CDATA[Carol]]>": "carol",
		"<dave>":            "dave",
		"":                  "",
		"  <![CDATA[ ]]>  ": "",
		"Jean-Luc.Picard":   "jean-luc.picard",
		"ÉMILE":             "émile",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeAuthorLogin(in), "NormalizeAuthorLogin(%q)", in)
	}
}

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		raw  string
		id   int
		want string
	}{
		{"", 42, "post-42"},
		{"/foo/bar?baz", 5, "foo-bar-baz"},
		{"hello-world", 1, "hello-world"},
		{"/hello-world/", 1, "hello-world"},
		{"caf%C3%A9", 1, "café"},
		{"a%2Fb", 1, "a-b"},
		{"with  spaces\tand\nlines", 1, "with-spaces-and-lines"},
		{"frag#ment", 1, "frag-ment"},
		{"///", 9, "post-9"},
		{"100%", 1, "100%"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSlug(tt.raw, tt.id))
		})
	}
}

func TestExtractSlugFromLink(t *testing.T) {
	tests := map[string]string{
		"https://x.com/2020/01/01/hello-world/": "hello-world",
		"https://x.com/about/team":              "team",
		"https://x.com/caf%C3%A9/":              "caf%C3%A9",
		"https://x.com/?p=12":                   "",
		"https://x.com":                         "",
		"":                                      "",
		"::not a url":                           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractSlugFromLink(in), "ExtractSlugFromLink(%q)", in)
	}
}

func TestLinkSlugWinsOverPostName(t *testing.T) {
	link := ExtractSlugFromLink("https://x.com/2020/01/01/hello-world/")
	assert.Equal(t, "hello-world", NormalizeSlug(link, 1))
}

func TestIsEmailUsableForAuthored(t *testing.T) {
	valid := []string{"a@b.co", "first.last@example.com", " padded@example.org "}
	invalid := []string{"", "bob-at-nowhere", "a@b", "@b.co", "a b@c.io", "a@b c.io"}

	for _, e := range valid {
		assert.True(t, IsEmailUsableForAuthored(e), e)
	}
	for _, e := range invalid {
		assert.False(t, IsEmailUsableForAuthored(e), e)
	}
}

func TestAuthorDisplayName(t *testing.T) {
	assert.Equal(t, "Alice L.", AuthorDisplayName("alice", " Alice L. "))
	assert.Equal(t, "alice", AuthorDisplayName("alice", ""))
	assert.Equal(t, "alice", AuthorDisplayName("alice", "   "))
}

func TestFallbackAuthorLogin(t *testing.T) {
	assert.Equal(t, "unknown-author-17", FallbackAuthorLogin(17))
}

var keyNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}-[0-9a-f]{8}$`)

func TestCreateAuthorKeyName_Deterministic(t *testing.T) {
	a := CreateAuthorKeyName("uid:https://blog.example", "Alice")
	b := CreateAuthorKeyName("uid:https://blog.example", "  alice ")

	assert.Equal(t, a, b, "login normalization makes names stable")
	assert.Regexp(t, keyNameRe, a)
	assert.Contains(t, a, "alice-")
}

func TestCreateAuthorKeyName_ScopeChangesSuffix(t *testing.T) {
	a := CreateAuthorKeyName("uid1:https://one.example", "admin")
	b := CreateAuthorKeyName("uid2:https://two.example", "admin")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a[:len("admin")], b[:len("admin")])
}

func TestCreateAuthorKeyName_Slug(t *testing.T) {
	tests := []struct {
		login      string
		wantPrefix string
	}{
		{"José García", "jose-garcia-"},
		{"日本語", "author-"},
		{"", "author-"},
		{"a.b@c", "a-b-c-"},
		{"under_score", "under_score-"},
	}
	for _, tt := range tests {
		t.Run(tt.login, func(t *testing.T) {
			name := CreateAuthorKeyName("scope", tt.login)
			assert.Regexp(t, keyNameRe, name)
			assert.Equal(t, tt.wantPrefix, name[:len(tt.wantPrefix)])
		})
	}
}

func TestCreateAuthorKeyName_LongLoginCapped(t *testing.T) {
	name := CreateAuthorKeyName("scope", "an-extremely-long-login-name-that-goes-on-and-on")
	assert.Regexp(t, keyNameRe, name)
	assert.LessOrEqual(t, len(name), 32+1+8)
}

func TestCreateAuthorKeyName_NoCollisions(t *testing.T) {
	seen := make(map[string]string)
	for s := range 20 {
		scope := fmt.Sprintf("uid-%d:https://site-%d.example", s, s)
		for l := range 100 {
			login := fmt.Sprintf("user%d", l)
			name := CreateAuthorKeyName(scope, login)
			key := scope + "|" + login
			if prev, ok := seen[name]; ok {
				t.Fatalf("collision: %q and %q both map to %q", prev, key, name)
			}
			seen[name] = key
		}
	}
	assert.Len(t, seen, 2000)
}
