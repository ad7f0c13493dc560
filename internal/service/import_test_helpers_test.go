package service

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seedhypermedia/wxr-importer/internal/blocks"
	"github.com/seedhypermedia/wxr-importer/internal/daemon/daemontest"
	"github.com/seedhypermedia/wxr-importer/internal/domain"
	"github.com/seedhypermedia/wxr-importer/internal/sse"
	"github.com/seedhypermedia/wxr-importer/internal/store"
)

const (
	testAccount   = "z6MkDestination"
	testPublisher = "publisher"
	testSiteURL   = "https://blog.example.com"
)

type importFixture struct {
	svc    *ImportService
	store  *store.Store
	daemon *daemontest.Daemon
}

// setupImportService creates an import service over a temp badger store and
// an in-memory daemon that knows the publisher key.
func setupImportService(t *testing.T) *importFixture {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "wxr-importer-service-test-*")
	require.NoError(t, err)

	st, err := store.New(filepath.Join(tmpDir, "test.db"), nil, store.NewNoopEmitter())
	require.NoError(t, err)

	d := daemontest.New()
	d.AddKey(testPublisher)

	// Registered first so it runs after every service has shut down.
	t.Cleanup(func() {
		_ = st.Close()
		_ = os.RemoveAll(tmpDir)
	})

	f := &importFixture{store: st, daemon: d}
	f.svc = f.newService(t)
	return f
}

// newService creates another service over the fixture's store and daemon,
// as a restarted process would.
func (f *importFixture) newService(t *testing.T) *ImportService {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	svc := NewImportService(f.store, Collaborators{
		Keys:      f.daemon,
		Documents: f.daemon,
		Access:    f.daemon,
		Converter: blocks.NewHTMLConverter(logger),
	}, nil, logger)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func sampleWXR(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "wxr", "testdata", "sample.xml"))
	require.NoError(t, err)
	return data
}

func sampleOptions(t *testing.T) StartOptions {
	t.Helper()
	return StartOptions{
		Source:           bytes.NewReader(sampleWXR(t)),
		DestinationUID:   testAccount,
		DestinationPath:  []string{"blog"},
		PublisherKeyName: testPublisher,
	}
}

// runImport starts an import and waits for its run to end.
func runImport(t *testing.T, svc *ImportService, opts StartOptions) *domain.ImportState {
	t.Helper()
	ctx := context.Background()

	importID, err := svc.Start(ctx, opts)
	require.NoError(t, err)
	require.NoError(t, svc.Wait(ctx, importID))

	state, err := svc.Status(ctx, importID)
	require.NoError(t, err)
	return state
}

// progressRecorder collects progress callbacks.
type progressRecorder struct {
	mu     sync.Mutex
	events []sse.ProgressEventData
}

func (r *progressRecorder) record(p sse.ProgressEventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *progressRecorder) phases() []domain.ImportPhase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ImportPhase
	for _, e := range r.events {
		if len(out) == 0 || out[len(out)-1] != e.Phase {
			out = append(out, e.Phase)
		}
	}
	return out
}

func (r *progressRecorder) last() sse.ProgressEventData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}
