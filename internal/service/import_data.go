package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seedhypermedia/wxr-importer/internal/domain"
	"github.com/seedhypermedia/wxr-importer/internal/util"
	"github.com/seedhypermedia/wxr-importer/internal/wxr"
)

// createImportData plans a session: the authors table and one work item per
// published post or page, each with its destination path.
func (s *ImportService) createImportData(ctx context.Context, parsed *wxr.ParseResult, mode domain.ImportMode) (*domain.SeedImportData, error) {
	authors := make(map[string]*domain.ImportAuthor, len(parsed.Authors))
	for _, a := range parsed.Authors {
		login := wxr.NormalizeAuthorLogin(a.Login)
		if login == "" {
			continue
		}

		email := strings.TrimSpace(a.Email)
		author := &domain.ImportAuthor{
			DisplayName: wxr.AuthorDisplayName(login, a.DisplayName),
			Email:       email,
		}
		// Only authors who can sign in authored mode get a mnemonic.
		if mode == domain.ModeAuthored && wxr.IsEmailUsableForAuthored(email) {
			mnemonic, err := s.keys.GenMnemonic(ctx)
			if err != nil {
				return nil, fmt.Errorf("generate mnemonic for %s: %w", login, err)
			}
			author.Mnemonic = mnemonic
		}
		authors[login] = author
	}

	items := parsed.Items()
	pages := make(map[int]*wxr.Post)
	for i := range items {
		if items[i].Type == wxr.TypePage && items[i].ID > 0 {
			pages[items[i].ID] = &items[i]
		}
	}
	pagePaths := util.NewPathResolver(
		func(id int) string { return wxr.NormalizeSlug(pages[id].Slug, id) },
		func(id int) (int, bool) {
			parent := pages[id].ParentID
			if parent <= 0 {
				return 0, false
			}
			_, ok := pages[parent]
			return parent, ok
		},
	)

	posts := make([]domain.ImportPostRef, 0, len(items))
	wxrPosts := make(map[int]*domain.ImportPost, len(items))
	for i := range items {
		post := &items[i]
		if !post.IsPublished() {
			continue
		}

		login := wxr.NormalizeAuthorLogin(post.AuthorLogin)
		if login == "" {
			login = wxr.FallbackAuthorLogin(post.ID)
		}
		if _, ok := authors[login]; !ok {
			authors[login] = &domain.ImportAuthor{DisplayName: wxr.AuthorDisplayName(login, "")}
		}

		// Posts are addressed by their permalink slug, which WordPress may
		// serve differently from post_name.
		raw := post.Slug
		if post.Type == wxr.TypePost {
			if linkSlug := wxr.ExtractSlugFromLink(post.Link); linkSlug != "" {
				raw = linkSlug
			}
		}
		slug := wxr.NormalizeSlug(raw, post.ID)

		var path []string
		switch post.Type {
		case wxr.TypePost:
			path = []string{"posts", slug}
		case wxr.TypePage:
			path = pagePaths.Resolve(post.ID)
		default:
			path = []string{slug}
		}

		posts = append(posts, domain.ImportPostRef{
			ID:          post.ID,
			Path:        path,
			AuthorLogin: login,
		})
		wxrPosts[post.ID] = &domain.ImportPost{
			ID:          post.ID,
			Title:       post.Title,
			Slug:        slug,
			Content:     post.Content,
			PostDateGMT: post.PostDateGMT,
			Categories:  nonNil(post.Categories),
			Tags:        nonNil(post.Tags),
		}
	}

	return &domain.SeedImportData{
		Source: domain.ImportSource{
			Type:       domain.SourceTypeWXR,
			SiteTitle:  parsed.SiteTitle,
			SiteURL:    parsed.SiteURL,
			ExportDate: s.now().UTC().Format(time.RFC3339),
		},
		Authors:    authors,
		ImageCache: map[string]string{},
		Progress: domain.ImportProgress{
			TotalPosts: len(posts),
			Phase:      domain.PhasePending,
		},
		Posts:    posts,
		WXRPosts: wxrPosts,
	}, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
