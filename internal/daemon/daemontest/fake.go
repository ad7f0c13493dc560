// Package daemontest provides an in-memory daemon for tests.
package daemontest

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/seedhypermedia/wxr-importer/internal/daemon"
)

// Daemon is an in-memory implementation of every daemon collaborator.
// The exported hook fields may be set before use to inject failures.
type Daemon struct {
	mu sync.Mutex

	keys      map[string]daemon.Key
	documents map[string]*daemon.Document
	caps      map[string][]daemon.Capability
	blobs     map[string][]byte
	changes   []daemon.CreateDocumentChangeRequest
	calls     map[string]int

	// GetDocumentErr is returned by GetDocument for a path when set.
	GetDocumentErr map[string]error

	// OnChange runs before a change is applied. A non-nil error fails the call.
	OnChange func(req daemon.CreateDocumentChangeRequest) error

	// RegisterKeyErr fails every RegisterKey call when set.
	RegisterKeyErr error

	// CapabilityErr fails ListCapabilities and CreateCapability when set.
	CapabilityErr error
}

var (
	_ daemon.KeyService      = (*Daemon)(nil)
	_ daemon.DocumentService = (*Daemon)(nil)
	_ daemon.AccessControl   = (*Daemon)(nil)
	_ daemon.BlobUploader    = (*Daemon)(nil)
)

// New returns an empty daemon.
func New() *Daemon {
	return &Daemon{
		keys:           make(map[string]daemon.Key),
		documents:      make(map[string]*daemon.Document),
		caps:           make(map[string][]daemon.Capability),
		blobs:          make(map[string][]byte),
		calls:          make(map[string]int),
		GetDocumentErr: make(map[string]error),
	}
}

func docKey(account, path string) string { return account + "|" + path }

// PublicKeyFor returns the public key the fake derives for a key name.
func PublicKeyFor(name string) string {
	sum := sha256.Sum256([]byte(name))
	return "z6Mk" + hex.EncodeToString(sum[:8])
}

// AddKey registers a key directly, bypassing RegisterKey.
func (d *Daemon) AddKey(name string) daemon.Key {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := daemon.Key{Name: name, PublicKey: PublicKeyFor(name)}
	d.keys[name] = key
	return key
}

// PutDocument stores a document at account/path with the given version.
func (d *Daemon) PutDocument(account, path, version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.documents[docKey(account, path)] = &daemon.Document{Account: account, Path: path, Version: version}
}

// Document returns a copy of the stored document, if any.
func (d *Daemon) Document(account, path string) (daemon.Document, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.documents[docKey(account, path)]
	if !ok {
		return daemon.Document{}, false
	}
	out := *doc
	out.Metadata = maps.Clone(doc.Metadata)
	return out, true
}

// Changes returns every applied change request in order.
func (d *Daemon) Changes() []daemon.CreateDocumentChangeRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.changes)
}

// Calls returns how many times a method was invoked, e.g. "RegisterKey".
func (d *Daemon) Calls(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// Capabilities returns the capabilities granted on account/path.
func (d *Daemon) Capabilities(account, path string) []daemon.Capability {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.caps[docKey(account, path)])
}

// ListKeys implements daemon.KeyService.
func (d *Daemon) ListKeys(_ context.Context) ([]daemon.Key, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["ListKeys"]++

	keys := slices.Collect(maps.Values(d.keys))
	slices.SortFunc(keys, func(a, b daemon.Key) int { return cmp.Compare(a.Name, b.Name) })
	return keys, nil
}

// RegisterKey implements daemon.KeyService.
func (d *Daemon) RegisterKey(_ context.Context, mnemonic []string, name string) (*daemon.Key, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["RegisterKey"]++

	if d.RegisterKeyErr != nil {
		return nil, d.RegisterKeyErr
	}
	if len(mnemonic) == 0 {
		return nil, fmt.Errorf("%w: empty mnemonic", daemon.ErrBadRequest)
	}
	if _, exists := d.keys[name]; exists {
		return nil, fmt.Errorf("%w: key %q already exists", daemon.ErrConflict, name)
	}
	key := daemon.Key{Name: name, PublicKey: PublicKeyFor(name)}
	d.keys[name] = key
	return &key, nil
}

// GenMnemonic implements daemon.KeyService.
func (d *Daemon) GenMnemonic(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["GenMnemonic"]++

	n := d.calls["GenMnemonic"]
	words := make([]string, 12)
	for i := range words {
		words[i] = fmt.Sprintf("word%d-%d", n, i)
	}
	return words, nil
}

// GetDocument implements daemon.DocumentService.
func (d *Daemon) GetDocument(_ context.Context, account, path string) (*daemon.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["GetDocument"]++

	if err := d.GetDocumentErr[path]; err != nil {
		return nil, err
	}
	doc, ok := d.documents[docKey(account, path)]
	if !ok {
		return nil, daemon.ErrNotFound
	}
	out := *doc
	return &out, nil
}

// CreateDocumentChange implements daemon.DocumentService. Each change bumps
// the document version. A stale BaseVersion is a conflict.
func (d *Daemon) CreateDocumentChange(_ context.Context, req daemon.CreateDocumentChangeRequest) error {
	d.mu.Lock()
	hook := d.OnChange
	d.calls["CreateDocumentChange"]++
	d.mu.Unlock()

	if hook != nil {
		if err := hook(req); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := docKey(req.Account, req.Path)
	doc, exists := d.documents[key]
	if exists && req.BaseVersion != "" && req.BaseVersion != doc.Version {
		return fmt.Errorf("%w: base %s, current %s", daemon.ErrConflict, req.BaseVersion, doc.Version)
	}
	if !exists {
		doc = &daemon.Document{Account: req.Account, Path: req.Path}
		d.documents[key] = doc
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string)
	}
	for _, ch := range req.Changes {
		if ch.SetMetadata != nil {
			doc.Metadata[ch.SetMetadata.Key] = ch.SetMetadata.Value
		}
	}
	doc.Version = fmt.Sprintf("v%d", len(d.changes)+1)
	d.changes = append(d.changes, req)
	return nil
}

// ListCapabilities implements daemon.AccessControl.
func (d *Daemon) ListCapabilities(_ context.Context, account, path string) ([]daemon.Capability, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["ListCapabilities"]++

	if d.CapabilityErr != nil {
		return nil, d.CapabilityErr
	}
	return slices.Clone(d.caps[docKey(account, path)]), nil
}

// CreateCapability implements daemon.AccessControl.
func (d *Daemon) CreateCapability(_ context.Context, req daemon.CreateCapabilityRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["CreateCapability"]++

	if d.CapabilityErr != nil {
		return d.CapabilityErr
	}
	key := docKey(req.Account, req.Path)
	d.caps[key] = append(d.caps[key], daemon.Capability{
		ID:       fmt.Sprintf("cap-%d", d.calls["CreateCapability"]),
		Account:  req.Account,
		Delegate: req.Delegate,
		Role:     req.Role,
		Path:     req.Path,
	})
	return nil
}

// UploadBlob implements daemon.BlobUploader.
func (d *Daemon) UploadBlob(_ context.Context, data []byte, _ string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["UploadBlob"]++

	sum := sha256.Sum256(data)
	cid := "bafk" + hex.EncodeToString(sum[:12])
	d.blobs[cid] = slices.Clone(data)
	return cid, nil
}
