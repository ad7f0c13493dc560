package service

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/seedhypermedia/wxr-importer/internal/blocks"
	"github.com/seedhypermedia/wxr-importer/internal/daemon"
	"github.com/seedhypermedia/wxr-importer/internal/domain"
	"github.com/seedhypermedia/wxr-importer/internal/importfile"
	"github.com/seedhypermedia/wxr-importer/internal/sse"
	"github.com/seedhypermedia/wxr-importer/internal/store"
	"github.com/seedhypermedia/wxr-importer/internal/wxr"
)

// executeImport drives a session from its current phase to completion.
// A failure outside a single post moves the session to the error phase.
// A canceled run returns ctx.Err() and leaves the stored phase alone.
func (s *ImportService) executeImport(ctx context.Context, state *domain.ImportState, data *domain.SeedImportData, onProgress ProgressFunc) error {
	progress := func(p sse.ProgressEventData) {
		p.ImportID = state.ImportID
		s.report(onProgress, p)
	}

	err := s.runPhases(ctx, state, data, progress)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	msg := err.Error()
	if markErr := s.store.MarkImportError(context.WithoutCancel(ctx), state.ImportID, msg); markErr != nil {
		s.logger.Error("failed to record import error", "import_id", state.ImportID, "error", markErr)
	}
	state.Phase = domain.PhaseError
	state.Error = msg
	progress(sse.ProgressEventData{
		Phase:     domain.PhaseError,
		Total:     state.TotalPosts,
		Completed: state.ImportedPosts,
		Error:     msg,
	})
	return err
}

func (s *ImportService) runPhases(ctx context.Context, state *domain.ImportState, data *domain.SeedImportData, progress func(sse.ProgressEventData)) error {
	scope := state.DestinationUID + ":" + data.Source.SiteURL

	// Keys are checked on every run so a resume repairs a half-finished
	// registration.
	if state.IsAuthored {
		if err := s.registerAuthors(ctx, state, data, scope, progress); err != nil {
			return err
		}
	}

	results, err := s.importPosts(ctx, state, data, scope, progress)
	if err != nil {
		return err
	}

	if err := s.store.MarkImportComplete(ctx, state.ImportID, results); err != nil {
		return err
	}
	state.Phase = domain.PhaseComplete
	state.Results = results

	s.logger.Info("import complete",
		"import_id", state.ImportID,
		"imported", results.Imported,
		"skipped", len(results.Skipped),
		"failed", len(results.Failed),
	)
	progress(sse.ProgressEventData{
		Phase:     domain.PhaseComplete,
		Total:     len(data.Posts),
		Completed: len(data.Posts),
		Results:   results.Clone(),
	})
	return nil
}

// registerAuthors makes sure every eligible author has a registered key and
// knows its public key.
func (s *ImportService) registerAuthors(ctx context.Context, state *domain.ImportState, data *domain.SeedImportData, scope string, progress func(sse.ProgressEventData)) error {
	if err := s.setPhase(ctx, state, domain.PhaseAuthors); err != nil {
		return err
	}

	var eligible []string
	for _, login := range slices.Sorted(maps.Keys(data.Authors)) {
		if wxr.IsEmailUsableForAuthored(data.Authors[login].Email) {
			eligible = append(eligible, login)
		}
	}
	progress(sse.ProgressEventData{Phase: domain.PhaseAuthors, Total: len(eligible)})

	keys, err := s.keys.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	existing := make(map[string]daemon.Key, len(keys))
	for _, k := range keys {
		existing[k.Name] = k
	}

	for i, login := range eligible {
		if err := ctx.Err(); err != nil {
			return err
		}

		author := data.Authors[login]
		keyName := wxr.CreateAuthorKeyName(scope, login)
		key, exists := existing[keyName]

		switch {
		case len(author.Mnemonic) > 0 && !exists:
			registered, err := s.keys.RegisterKey(ctx, author.Mnemonic, keyName)
			if err != nil {
				return fmt.Errorf("register key for author %s: %w", login, err)
			}
			author.PublicKey = registered.PublicKey
			s.logger.Debug("registered author key", "import_id", state.ImportID, "author", login, "key", keyName)

			if err := s.saveImportFile(ctx, state, data); err != nil {
				return err
			}
		case exists && author.PublicKey == "":
			author.PublicKey = key.PublicKey
		}

		progress(sse.ProgressEventData{
			Phase:       domain.PhaseAuthors,
			Total:       len(eligible),
			Completed:   i + 1,
			CurrentItem: author.DisplayName,
		})
	}
	return nil
}

// importPosts processes every post not yet marked imported. A post that fails
// is recorded and the batch continues.
func (s *ImportService) importPosts(ctx context.Context, state *domain.ImportState, data *domain.SeedImportData, scope string, progress func(sse.ProgressEventData)) (*domain.ImportResults, error) {
	if err := s.setPhase(ctx, state, domain.PhasePosts); err != nil {
		return nil, err
	}
	if err := s.saveImportFile(ctx, state, data); err != nil {
		return nil, err
	}

	results := state.Results.Clone()
	if results == nil {
		results = domain.NewImportResults()
	}

	progress(sse.ProgressEventData{
		Phase:     domain.PhasePosts,
		Total:     len(data.Posts),
		Completed: state.ImportedPosts,
	})

	if data.ImageCache == nil {
		data.ImageCache = map[string]string{}
	}
	convert := blocks.Options{BaseURL: data.Source.SiteURL}
	if s.images != nil {
		convert.UploadImage = s.images.Uploader(data.ImageCache)
	}

	// path -> delegates already holding WRITER, filled lazily per run
	writers := make(map[string]map[string]bool)

	for _, i := range data.Remaining() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ref := &data.Posts[i]
		post, ok := data.WXRPosts[ref.ID]
		if !ok {
			s.logger.Warn("post data missing, skipping", "import_id", state.ImportID, "post_id", ref.ID)
			continue
		}

		postPath := slices.Concat(state.DestinationPath, ref.Path)
		title := post.Title
		if title == "" {
			title = fmt.Sprintf("Post %d", ref.ID)
		}
		progress(sse.ProgressEventData{
			Phase:       domain.PhasePosts,
			Total:       len(data.Posts),
			Completed:   state.ImportedPosts,
			CurrentItem: title,
		})

		login := wxr.NormalizeAuthorLogin(ref.AuthorLogin)
		if login == "" {
			login = wxr.FallbackAuthorLogin(ref.ID)
		}
		author := data.Authors[login]
		displayName := login
		if author != nil {
			displayName = wxr.AuthorDisplayName(login, author.DisplayName)
		}
		authored := state.IsAuthored && author != nil &&
			wxr.IsEmailUsableForAuthored(author.Email) && author.PublicKey != ""

		target := postTarget{
			Account:        state.DestinationUID,
			Path:           postPath,
			SigningKeyName: state.PublisherKeyName,
			DisplayAuthor:  displayName,
			Overwrite:      state.OverwriteExisting,
			Convert:        convert,
		}
		if authored {
			target.SigningKeyName = wxr.CreateAuthorKeyName(scope, login)
			target.DisplayAuthor = ""

			if err := s.ensureWriter(ctx, state, writers, daemon.PathQuery(postPath), author.PublicKey); err != nil {
				return nil, err
			}
		}

		outcome, err := s.importPost(ctx, post, target)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			s.logger.Warn("post import failed",
				"import_id", state.ImportID,
				"post_id", ref.ID,
				"path", daemon.PathQuery(postPath),
				"error", err,
			)
			results.Failed = append(results.Failed, domain.ImportFailure{
				Path:  postPath,
				Title: title,
				Error: fmt.Sprintf("[author=%s][signing=%s] %v", login, target.SigningKeyName, err),
			})
		case outcome == outcomeSkipped:
			results.Skipped = append(results.Skipped, domain.ImportResultItem{Path: postPath, Title: title})
		default:
			results.Imported++
		}

		ref.Imported = true
		state.ImportedPosts++
		state.LastImportedPost = &ref.ID
		state.Results = results

		if err := s.store.RecordPostOutcome(ctx, state.ImportID, store.PostOutcome{
			PostID:        ref.ID,
			ImportedPosts: state.ImportedPosts,
			Results:       results,
		}); err != nil {
			return nil, err
		}
		if err := s.saveImportFile(ctx, state, data); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// ensureWriter grants the author's key WRITER on path unless it already holds it.
func (s *ImportService) ensureWriter(ctx context.Context, state *domain.ImportState, writers map[string]map[string]bool, path, delegate string) error {
	delegates, ok := writers[path]
	if !ok {
		caps, err := s.access.ListCapabilities(ctx, state.DestinationUID, path)
		if err != nil {
			return fmt.Errorf("list capabilities on %s: %w", path, err)
		}
		delegates = make(map[string]bool)
		for _, c := range caps {
			if c.Role == daemon.RoleWriter {
				delegates[c.Delegate] = true
			}
		}
		writers[path] = delegates
	}

	if delegates[delegate] {
		return nil
	}
	err := s.access.CreateCapability(ctx, daemon.CreateCapabilityRequest{
		Account:        state.DestinationUID,
		Delegate:       delegate,
		Role:           daemon.RoleWriter,
		Path:           path,
		SigningKeyName: state.PublisherKeyName,
	})
	if err != nil {
		return fmt.Errorf("grant writer on %s: %w", path, err)
	}
	delegates[delegate] = true
	return nil
}

func (s *ImportService) setPhase(ctx context.Context, state *domain.ImportState, phase domain.ImportPhase) error {
	if _, err := s.store.SetImportPhase(ctx, state.ImportID, phase); err != nil {
		return err
	}
	state.Phase = phase
	state.Error = ""
	return nil
}

// saveImportFile rewrites the stored import file from data. Encrypted files
// are left as written at start; their progress lives in the state record.
func (s *ImportService) saveImportFile(ctx context.Context, state *domain.ImportState, data *domain.SeedImportData) error {
	if state.Encrypted {
		return nil
	}
	data.Progress = domain.ImportProgress{
		TotalPosts:     len(data.Posts),
		ImportedPosts:  state.ImportedPosts,
		LastImportedID: state.LastImportedPost,
		Phase:          state.Phase,
	}
	file, err := importfile.Create(data, "")
	if err != nil {
		return err
	}
	if err := s.store.SetImportFile(ctx, state.ImportID, file); err != nil {
		return fmt.Errorf("save import file: %w", err)
	}
	return nil
}
