// Package store persists import sessions in a Badger key-value database.
package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// EventEmitter is the interface for emitting SSE events.
// Store uses this to broadcast state changes without depending on SSE delivery.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// Store wraps a Badger database instance.
type Store struct {
	db           *badger.DB
	logger       *slog.Logger
	eventEmitter EventEmitter

	// now is swapped in tests to control LastUpdated stamps.
	now func() time.Time
}

// Options tweaks how the database is opened.
type Options struct {
	// ReadOnly opens an existing database for inspection. Used by CLI tools.
	ReadOnly bool
	// InMemory keeps everything in RAM. The path is ignored.
	InMemory bool
}

// New creates a new Store instance with the given database path and event emitter.
func New(path string, logger *slog.Logger, emitter EventEmitter) (*Store, error) {
	return Open(path, logger, emitter, Options{})
}

// Open is New with explicit options.
func Open(path string, logger *slog.Logger, emitter EventEmitter, o Options) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Badger's own logging is too chatty.
	opts.SyncWrites = true       // Progress must survive a crash right after a post.
	opts.CompactL0OnClose = true // Faster startup.
	opts.ReadOnly = o.ReadOnly
	if o.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if emitter == nil {
		emitter = NoopEmitter{}
	}

	store := &Store{
		db:           db,
		logger:       logger,
		eventEmitter: emitter,
		now:          time.Now,
	}

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path, "read_only", o.ReadOnly)
	}

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// get retrieves a value by key.
func (s *Store) get(key []byte, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		return getTxn(txn, key, dest)
	})
}

// set stores a value by key.
func (s *Store) set(key []byte, value any) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setTxn(txn, key, value)
	})
}

// exists checks if a key exists.
func (s *Store) exists(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func getTxn(txn *badger.Txn, key []byte, dest any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	})
}

func setTxn(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return txn.Set(key, data)
}

// deleteTxn removes key, treating a missing key as success.
func deleteTxn(txn *badger.Txn, key []byte) error {
	err := txn.Delete(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// RawEntry is one key/value pair returned by Scan.
type RawEntry struct {
	Key   string
	Value []byte
}

// Scan iterates every key with the given prefix. Used by the inspection tool.
func (s *Store) Scan(prefix string, fn func(RawEntry) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(RawEntry{Key: string(item.KeyCopy(nil)), Value: val}); err != nil {
				return err
			}
		}
		return nil
	})
}
