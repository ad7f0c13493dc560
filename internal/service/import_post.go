package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"github.com/seedhypermedia/wxr-importer/internal/blocks"
	"github.com/seedhypermedia/wxr-importer/internal/daemon"
	"github.com/seedhypermedia/wxr-importer/internal/domain"
	"github.com/seedhypermedia/wxr-importer/internal/util"
)

// Metadata keys written on imported documents.
const (
	MetaName               = "name"
	MetaDisplayPublishTime = "displayPublishTime"
	MetaDisplayAuthor      = "displayAuthor"
	MetaImportCategories   = "importCategories"
	MetaImportTags         = "importTags"
)

// publishTimeLayout renders a date like "Wed Jan 01 2020".
const publishTimeLayout = "Mon Jan 02 2006"

type postOutcome string

const (
	outcomeImported postOutcome = "imported"
	outcomeSkipped  postOutcome = "skipped"
)

// postTarget is where and how one post is written.
type postTarget struct {
	Account        string
	Path           []string
	SigningKeyName string
	// DisplayAuthor is set for ghostwritten posts.
	DisplayAuthor string
	Overwrite     bool
	Convert       blocks.Options
}

// importPost writes one post as a document. An existing document is skipped
// unless overwriting, in which case the change is based on its version.
func (s *ImportService) importPost(ctx context.Context, post *domain.ImportPost, t postTarget) (postOutcome, error) {
	path := daemon.PathQuery(t.Path)

	var baseVersion string
	existing, err := s.documents.GetDocument(ctx, t.Account, path)
	switch {
	case err == nil && !t.Overwrite:
		s.logger.Debug("document exists, skipping", "path", path)
		return outcomeSkipped, nil
	case err == nil:
		baseVersion = existing.Version
		s.logger.Debug("document exists, overwriting", "path", path, "base_version", baseVersion)
	case !errors.Is(err, daemon.ErrNotFound):
		// Lookup failures are treated like a missing document.
		s.logger.Debug("document lookup failed, creating", "path", path, "error", err)
	}

	nodes, err := s.converter.Convert(ctx, post.Content, t.Convert)
	if err != nil {
		return "", fmt.Errorf("convert content: %w", err)
	}

	changes := postMetadata(post, t.DisplayAuthor)
	changes = append(changes, blocksToChanges(nodes, "")...)

	err = s.documents.CreateDocumentChange(ctx, daemon.CreateDocumentChangeRequest{
		SigningKeyName: t.SigningKeyName,
		Account:        t.Account,
		Path:           path,
		Changes:        changes,
		BaseVersion:    baseVersion,
	})
	if err != nil {
		return "", err
	}
	return outcomeImported, nil
}

func postMetadata(post *domain.ImportPost, displayAuthor string) []daemon.DocumentChange {
	changes := []daemon.DocumentChange{setMetadata(MetaName, post.Title)}

	if published, ok := formatPublishTime(post.PostDateGMT); ok {
		changes = append(changes, setMetadata(MetaDisplayPublishTime, published))
	}
	if displayAuthor != "" {
		changes = append(changes, setMetadata(MetaDisplayAuthor, displayAuthor))
	}
	if categories, ok := util.JoinTaxonomy(post.Categories); ok {
		changes = append(changes, setMetadata(MetaImportCategories, categories))
	}
	if tags, ok := util.JoinTaxonomy(post.Tags); ok {
		changes = append(changes, setMetadata(MetaImportTags, tags))
	}
	return changes
}

func setMetadata(key, value string) daemon.DocumentChange {
	return daemon.DocumentChange{SetMetadata: &daemon.SetMetadata{Key: key, Value: value}}
}

// formatPublishTime renders a WordPress GMT date. Unset dates
// ("0000-00-00 00:00:00") and unparseable ones yield false.
func formatPublishTime(gmt string) (string, bool) {
	if gmt == "" {
		return "", false
	}
	t, err := dateparse.ParseIn(gmt, time.UTC)
	if err != nil || t.Year() < 1 {
		return "", false
	}
	return t.Format(publishTimeLayout), true
}

// blocksToChanges emits, for every block in document order, a move that
// places it after its previous sibling under parent and a replace with its
// content. Children follow their parent.
func blocksToChanges(nodes []*blocks.Node, parent string) []daemon.DocumentChange {
	var changes []daemon.DocumentChange
	leftSibling := ""

	for _, node := range nodes {
		block := node.Block
		changes = append(changes,
			daemon.DocumentChange{MoveBlock: &daemon.MoveBlock{
				BlockID:     block.ID,
				Parent:      parent,
				LeftSibling: leftSibling,
			}},
			daemon.DocumentChange{ReplaceBlock: &block},
		)
		leftSibling = block.ID

		if len(node.Children) > 0 {
			changes = append(changes, blocksToChanges(node.Children, block.ID)...)
		}
	}
	return changes
}
