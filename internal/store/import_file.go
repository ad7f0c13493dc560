package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/seedhypermedia/wxr-importer/internal/domain"
)

// GetImportFile returns the stored import file envelope of a session.
func (s *Store) GetImportFile(_ context.Context, id string) (*domain.ImportFile, error) {
	var file domain.ImportFile
	if err := s.get(importFileKey(id), &file); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrImportFileNotFound
		}
		return nil, fmt.Errorf("get import file: %w", err)
	}
	return &file, nil
}

// SetImportFile replaces the stored import file envelope. The session must exist.
func (s *Store) SetImportFile(_ context.Context, id string, file *domain.ImportFile) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(importStateKey(id)); err != nil {
			return err
		}
		return setTxn(txn, importFileKey(id), file)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrImportNotFound
	}
	if err != nil {
		return fmt.Errorf("set import file: %w", err)
	}
	return nil
}
