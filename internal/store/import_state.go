package store

import (
	"cmp"
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/seedhypermedia/wxr-importer/internal/domain"
	"github.com/seedhypermedia/wxr-importer/internal/sse"
)

const (
	importStatePrefix = "import:state:"
	importFilePrefix  = "import:file:"
	importActiveKey   = "import:active"
)

var (
	// ErrImportNotFound is returned when no state record exists for an import id.
	ErrImportNotFound = errors.New("import not found")
	// ErrImportFileNotFound is returned when the import file record is missing.
	ErrImportFileNotFound = errors.New("import file not found")
	// ErrNoActiveImport is returned when no session is marked active.
	ErrNoActiveImport = errors.New("no active import")
)

func importStateKey(id string) []byte { return []byte(importStatePrefix + id) }
func importFileKey(id string) []byte  { return []byte(importFilePrefix + id) }

// CreateImport persists a new session's state and file and makes it the active
// session, all in one transaction. Any previous active session is superseded
// but its records are kept.
func (s *Store) CreateImport(_ context.Context, state *domain.ImportState, file *domain.ImportFile) error {
	state = state.Clone()
	state.Touch(s.now())
	if state.CreatedAt.IsZero() {
		state.CreatedAt = s.now()
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := setTxn(txn, importStateKey(state.ImportID), state); err != nil {
			return err
		}
		if err := setTxn(txn, importFileKey(state.ImportID), file); err != nil {
			return err
		}
		return txn.Set([]byte(importActiveKey), []byte(state.ImportID))
	})
	if err != nil {
		return fmt.Errorf("create import %s: %w", state.ImportID, err)
	}

	s.eventEmitter.Emit(sse.NewStateEvent(state))
	return nil
}

// GetImportState returns the state record of an import.
func (s *Store) GetImportState(_ context.Context, id string) (*domain.ImportState, error) {
	var state domain.ImportState
	if err := s.get(importStateKey(id), &state); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrImportNotFound
		}
		return nil, fmt.Errorf("get import state: %w", err)
	}
	return &state, nil
}

// SetImportState writes the state record, stamping LastUpdated with the current time.
func (s *Store) SetImportState(_ context.Context, state *domain.ImportState) error {
	state.Touch(s.now())
	if err := s.set(importStateKey(state.ImportID), state); err != nil {
		return fmt.Errorf("set import state: %w", err)
	}
	s.eventEmitter.Emit(sse.NewStateEvent(state.Clone()))
	return nil
}

// updateImportState applies fn to the stored state inside one transaction and
// returns the written record.
func (s *Store) updateImportState(id string, fn func(*domain.ImportState)) (*domain.ImportState, error) {
	var updated domain.ImportState
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getTxn(txn, importStateKey(id), &updated); err != nil {
			return err
		}
		fn(&updated)
		updated.Touch(s.now())
		return setTxn(txn, importStateKey(id), &updated)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrImportNotFound
	}
	if err != nil {
		return nil, err
	}

	s.eventEmitter.Emit(sse.NewStateEvent(updated.Clone()))
	return &updated, nil
}

// UpdateImportProgress records that postID was processed and importedCount
// posts are done in total.
func (s *Store) UpdateImportProgress(_ context.Context, id string, postID, importedCount int) error {
	_, err := s.updateImportState(id, func(st *domain.ImportState) {
		st.LastImportedPost = &postID
		st.ImportedPosts = importedCount
	})
	if err != nil {
		return fmt.Errorf("update import progress: %w", err)
	}
	return nil
}

// PostOutcome is the progress written after each processed post.
type PostOutcome struct {
	PostID        int
	ImportedPosts int
	Results       *domain.ImportResults
}

// RecordPostOutcome is UpdateImportProgress plus the post id appended to
// ProcessedPostIDs and the running results, in one write.
func (s *Store) RecordPostOutcome(_ context.Context, id string, o PostOutcome) error {
	_, err := s.updateImportState(id, func(st *domain.ImportState) {
		postID := o.PostID
		st.LastImportedPost = &postID
		st.ImportedPosts = o.ImportedPosts
		if !slices.Contains(st.ProcessedPostIDs, o.PostID) {
			st.ProcessedPostIDs = append(st.ProcessedPostIDs, o.PostID)
		}
		if o.Results != nil {
			st.Results = o.Results.Clone()
		}
	})
	if err != nil {
		return fmt.Errorf("record post outcome: %w", err)
	}
	return nil
}

// SetImportPhase moves a session to phase, clearing any previous error.
func (s *Store) SetImportPhase(_ context.Context, id string, phase domain.ImportPhase) (*domain.ImportState, error) {
	st, err := s.updateImportState(id, func(st *domain.ImportState) {
		st.Phase = phase
		st.Error = ""
	})
	if err != nil {
		return nil, fmt.Errorf("set import phase: %w", err)
	}
	return st, nil
}

// MarkImportComplete moves a session to the complete phase with its final results.
func (s *Store) MarkImportComplete(_ context.Context, id string, results *domain.ImportResults) error {
	_, err := s.updateImportState(id, func(st *domain.ImportState) {
		st.Phase = domain.PhaseComplete
		st.Error = ""
		if results != nil {
			st.Results = results.Clone()
		}
	})
	if err != nil {
		return fmt.Errorf("mark import complete: %w", err)
	}
	return nil
}

// MarkImportError moves a session to the error phase.
func (s *Store) MarkImportError(_ context.Context, id, message string) error {
	_, err := s.updateImportState(id, func(st *domain.ImportState) {
		st.Phase = domain.PhaseError
		st.Error = message
	})
	if err != nil {
		return fmt.Errorf("mark import error: %w", err)
	}
	return nil
}

// HasResumableImport reports whether the import exists and is neither complete nor failed.
func (s *Store) HasResumableImport(ctx context.Context, id string) (bool, error) {
	st, err := s.GetImportState(ctx, id)
	if errors.Is(err, ErrImportNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.IsResumable(), nil
}

// ClearImport deletes the state and file records of an import and drops the
// active pointer if it referenced it. Clearing a missing import is not an error.
func (s *Store) ClearImport(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := deleteTxn(txn, importStateKey(id)); err != nil {
			return err
		}
		if err := deleteTxn(txn, importFileKey(id)); err != nil {
			return err
		}

		item, err := txn.Get([]byte(importActiveKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		active, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(active) == id {
			return txn.Delete([]byte(importActiveKey))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear import %s: %w", id, err)
	}

	s.eventEmitter.Emit(sse.NewDeletedEvent(id))
	return nil
}

// GetActiveImportID returns the id of the most recently started session.
func (s *Store) GetActiveImportID(_ context.Context) (string, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(importActiveKey))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id = string(val)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNoActiveImport
	}
	if err != nil {
		return "", fmt.Errorf("get active import: %w", err)
	}
	return id, nil
}

// SetActiveImport marks id as the active session.
func (s *Store) SetActiveImport(_ context.Context, id string) error {
	exists, err := s.exists(importStateKey(id))
	if err != nil {
		return fmt.Errorf("check import exists: %w", err)
	}
	if !exists {
		return ErrImportNotFound
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(importActiveKey), []byte(id))
	})
	if err != nil {
		return fmt.Errorf("set active import: %w", err)
	}
	return nil
}

// ListImportStates returns every stored session, newest first.
func (s *Store) ListImportStates(_ context.Context) ([]*domain.ImportState, error) {
	prefix := []byte(importStatePrefix)
	var states []*domain.ImportState

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var st domain.ImportState
				if err := json.Unmarshal(val, &st); err != nil {
					if s.logger != nil {
						s.logger.Warn("skipping malformed import state",
							"key", string(it.Item().Key()), "error", err)
					}
					return nil
				}
				states = append(states, &st)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}

	slices.SortFunc(states, func(a, b *domain.ImportState) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ImportID, b.ImportID)
	})
	return states, nil
}
