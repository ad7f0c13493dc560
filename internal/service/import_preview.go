package service

import (
	"cmp"
	"context"
	"io"
	"slices"

	domainerrors "github.com/seedhypermedia/wxr-importer/internal/errors"
	"github.com/seedhypermedia/wxr-importer/internal/wxr"
)

// PreviewAuthor is one author as an import would see them.
type PreviewAuthor struct {
	Login       string `json:"login"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	// Eligible authors can sign their own posts in authored mode.
	Eligible bool `json:"eligible"`
	Posts    int  `json:"posts"`
}

// ImportPreview summarizes an export without importing it.
type ImportPreview struct {
	SiteTitle   string          `json:"siteTitle"`
	SiteURL     string          `json:"siteUrl"`
	Posts       int             `json:"posts"`
	Pages       int             `json:"pages"`
	Attachments int             `json:"attachments"`
	Publishable int             `json:"publishable"`
	Authors     []PreviewAuthor `json:"authors"`
}

// Preview parses an export and reports what an import of it would contain.
func (s *ImportService) Preview(_ context.Context, r io.Reader) (*ImportPreview, error) {
	return BuildPreview(r)
}

// BuildPreview summarizes an export without a running service. Used by the
// preview CLI.
func BuildPreview(r io.Reader) (*ImportPreview, error) {
	parsed, err := wxr.Parse(r)
	if err != nil {
		return nil, domainerrors.Validation("could not parse WordPress export").WithCause(err)
	}

	preview := &ImportPreview{
		SiteTitle:   parsed.SiteTitle,
		SiteURL:     parsed.SiteURL,
		Posts:       len(parsed.Posts),
		Pages:       len(parsed.Pages),
		Attachments: len(parsed.Attachments),
		Authors:     []PreviewAuthor{},
	}

	byLogin := make(map[string]*PreviewAuthor)
	for _, a := range parsed.Authors {
		login := wxr.NormalizeAuthorLogin(a.Login)
		if login == "" {
			continue
		}
		byLogin[login] = &PreviewAuthor{
			Login:       login,
			DisplayName: wxr.AuthorDisplayName(login, a.DisplayName),
			Email:       a.Email,
			Eligible:    wxr.IsEmailUsableForAuthored(a.Email),
		}
	}

	for _, p := range parsed.Items() {
		if !p.IsPublished() {
			continue
		}
		preview.Publishable++

		login := wxr.NormalizeAuthorLogin(p.AuthorLogin)
		if login == "" {
			continue
		}
		author, ok := byLogin[login]
		if !ok {
			author = &PreviewAuthor{Login: login, DisplayName: login}
			byLogin[login] = author
		}
		author.Posts++
	}

	for _, a := range byLogin {
		preview.Authors = append(preview.Authors, *a)
	}
	slices.SortFunc(preview.Authors, func(a, b PreviewAuthor) int {
		return cmp.Compare(a.Login, b.Login)
	})
	return preview, nil
}
