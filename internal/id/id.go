// Package id generates identifiers for import sessions and document blocks.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// ImportIDLength is the length of the random part of an import session id.
	ImportIDLength = 10

	// BlockIDLength is the length of a document block id.
	BlockIDLength = 8
)

// Generate creates a prefixed id: prefix-nanoid with the given random length.
// An empty prefix yields the bare nanoid.
func Generate(prefix string, length int) (string, error) {
	id, err := gonanoid.New(length)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	if prefix == "" {
		return id, nil
	}
	return prefix + "-" + id, nil
}

// NewImportID returns a fresh import session id (e.g. "imp-V1StGXR8_Z").
func NewImportID() (string, error) {
	return Generate("imp", ImportIDLength)
}

// NewBlockID returns a fresh document block id.
// Block ids are generated in tight loops during conversion, so a failure here panics.
func NewBlockID() string {
	return MustGenerate("", BlockIDLength)
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string, length int) string {
	id, err := Generate(prefix, length)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
