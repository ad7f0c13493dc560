// Package daemon defines the document daemon collaborators used by imports
// and a JSON gateway client implementing them.
package daemon

import (
	"context"
	"strings"

	"github.com/seedhypermedia/wxr-importer/internal/blocks"
)

// Role is a capability role.
type Role string

// RoleWriter lets a delegate key publish under a path.
const RoleWriter Role = "WRITER"

// Key is a signing key known to the daemon.
type Key struct {
	Name      string `json:"name"`
	PublicKey string `json:"publicKey"`
}

// Document is the part of a stored document the importer needs.
type Document struct {
	Account  string            `json:"account"`
	Path     string            `json:"path"`
	Version  string            `json:"version"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Capability grants a delegate key a role on an account path.
type Capability struct {
	ID       string `json:"id,omitempty"`
	Account  string `json:"account"`
	Delegate string `json:"delegate"`
	Role     Role   `json:"role"`
	Path     string `json:"path"`
}

// SetMetadata sets one metadata key on a document.
type SetMetadata struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MoveBlock places a block under parent, right after leftSibling. Empty
// strings mean the document root and the first position.
type MoveBlock struct {
	BlockID     string `json:"blockId"`
	Parent      string `json:"parent"`
	LeftSibling string `json:"leftSibling"`
}

// DocumentChange is one operation. Exactly one field is set.
type DocumentChange struct {
	SetMetadata  *SetMetadata  `json:"setMetadata,omitempty"`
	MoveBlock    *MoveBlock    `json:"moveBlock,omitempty"`
	ReplaceBlock *blocks.Block `json:"replaceBlock,omitempty"`
}

// CreateDocumentChangeRequest submits changes as one signed transaction.
// A non-empty BaseVersion makes it an update of that version.
type CreateDocumentChangeRequest struct {
	SigningKeyName string           `json:"signingKeyName"`
	Account        string           `json:"account"`
	Path           string           `json:"path"`
	Changes        []DocumentChange `json:"changes"`
	BaseVersion    string           `json:"baseVersion,omitempty"`
}

// CreateCapabilityRequest grants Role on Path to Delegate, signed by SigningKeyName.
type CreateCapabilityRequest struct {
	Account        string `json:"account"`
	Delegate       string `json:"delegate"`
	Role           Role   `json:"role"`
	Path           string `json:"path"`
	SigningKeyName string `json:"signingKeyName"`
}

// KeyService manages signing keys.
type KeyService interface {
	ListKeys(ctx context.Context) ([]Key, error)
	RegisterKey(ctx context.Context, mnemonic []string, name string) (*Key, error)
	GenMnemonic(ctx context.Context) ([]string, error)
}

// DocumentService reads and writes documents. GetDocument returns ErrNotFound
// when nothing exists at the path.
type DocumentService interface {
	GetDocument(ctx context.Context, account, path string) (*Document, error)
	CreateDocumentChange(ctx context.Context, req CreateDocumentChangeRequest) error
}

// AccessControl lists and grants capabilities.
type AccessControl interface {
	ListCapabilities(ctx context.Context, account, path string) ([]Capability, error)
	CreateCapability(ctx context.Context, req CreateCapabilityRequest) error
}

// BlobUploader stores raw bytes and returns their content id.
type BlobUploader interface {
	UploadBlob(ctx context.Context, data []byte, contentType string) (string, error)
}

// PathQuery renders path segments the way the daemon addresses documents:
// "" for the account root, otherwise "/a/b".
func PathQuery(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return "/" + strings.Join(path, "/")
}
