package store

import (
	"context"
	"encoding/json/jsontext"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedhypermedia/wxr-importer/internal/domain"
	"github.com/seedhypermedia/wxr-importer/internal/sse"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "wxr-importer-test-*")
	require.NoError(t, err)

	s, err := New(filepath.Join(tmpDir, "test.db"), nil, NewNoopEmitter())
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
		_ = os.RemoveAll(tmpDir)
	}
	return s, cleanup
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingEmitter) Emit(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if evt, ok := event.(sse.Event); ok {
		r.events = append(r.events, evt)
	}
}

func (r *recordingEmitter) types() []sse.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sse.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newState(id string) *domain.ImportState {
	return &domain.ImportState{
		ImportID:         id,
		DestinationUID:   "z6MkDest",
		DestinationPath:  []string{"blog"},
		PublisherKeyName: "main",
		Phase:            domain.PhasePending,
		TotalPosts:       3,
	}
}

func plainFile() *domain.ImportFile {
	return &domain.ImportFile{
		Format: domain.ImportFileFormatV1,
		Data:   jsontext.Value(`{"posts":[]}`),
	}
}

func TestCreateImport(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.CreateImport(ctx, newState("imp-1"), plainFile()))

	st, err := s.GetImportState(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePending, st.Phase)
	assert.Equal(t, []string{"blog"}, st.DestinationPath)
	assert.Equal(t, fixed.UnixMilli(), st.LastUpdated)
	assert.True(t, st.CreatedAt.Equal(fixed))

	file, err := s.GetImportFile(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ImportFileFormatV1, file.Format)
	assert.JSONEq(t, `{"posts":[]}`, string(file.Data))

	active, err := s.GetActiveImportID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "imp-1", active)
}

func TestGetImportState_NotFound(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := s.GetImportState(ctx, "missing")
	assert.ErrorIs(t, err, ErrImportNotFound)

	_, err = s.GetImportFile(ctx, "missing")
	assert.ErrorIs(t, err, ErrImportFileNotFound)

	_, err = s.GetActiveImportID(ctx)
	assert.ErrorIs(t, err, ErrNoActiveImport)
}

func TestSetImportState_StampsLastUpdated(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.CreateImport(ctx, newState("imp-1"), plainFile()))

	later := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return later }

	st, err := s.GetImportState(ctx, "imp-1")
	require.NoError(t, err)
	st.Phase = domain.PhaseAuthors
	st.LastUpdated = 0
	require.NoError(t, s.SetImportState(ctx, st))

	got, err := s.GetImportState(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAuthors, got.Phase)
	assert.Equal(t, later.UnixMilli(), got.LastUpdated)
}

func TestUpdateImportProgress(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.CreateImport(ctx, newState("imp-1"), plainFile()))
	require.NoError(t, s.UpdateImportProgress(ctx, "imp-1", 42, 2))

	st, err := s.GetImportState(ctx, "imp-1")
	require.NoError(t, err)
	require.NotNil(t, st.LastImportedPost)
	assert.Equal(t, 42, *st.LastImportedPost)
	assert.Equal(t, 2, st.ImportedPosts)

	err = s.UpdateImportProgress(ctx, "missing", 1, 1)
	assert.ErrorIs(t, err, ErrImportNotFound)
}

func TestRecordPostOutcome(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.CreateImport(ctx, newState("imp-1"), plainFile()))

	results := domain.NewImportResults()
	results.Imported = 1
	require.NoError(t, s.RecordPostOutcome(ctx, "imp-1", PostOutcome{PostID: 5, ImportedPosts: 1, Results: results}))

	results.Skipped = append(results.Skipped, domain.ImportResultItem{Path: []string{"posts", "b"}, Title: "B"})
	require.NoError(t, s.RecordPostOutcome(ctx, "imp-1", PostOutcome{PostID: 6, ImportedPosts: 2, Results: results}))
	// Replaying the same post does not duplicate it.
	require.NoError(t, s.RecordPostOutcome(ctx, "imp-1", PostOutcome{PostID: 6, ImportedPosts: 2}))

	st, err := s.GetImportState(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, st.ProcessedPostIDs)
	assert.Equal(t, 2, st.ImportedPosts)
	assert.Equal(t, 6, *st.LastImportedPost)
	require.NotNil(t, st.Results)
	assert.Equal(t, 1, st.Results.Imported)
	assert.Len(t, st.Results.Skipped, 1)
}

func TestMarkImportCompleteAndError(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.CreateImport(ctx, newState("ok"), plainFile()))
	require.NoError(t, s.CreateImport(ctx, newState("bad"), plainFile()))

	resumable, err := s.HasResumableImport(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, resumable)

	results := &domain.ImportResults{Imported: 3, Skipped: []domain.ImportResultItem{}, Failed: []domain.ImportFailure{}}
	require.NoError(t, s.MarkImportComplete(ctx, "ok", results))
	require.NoError(t, s.MarkImportError(ctx, "bad", "daemon unreachable"))

	ok, err := s.GetImportState(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, ok.Phase)
	assert.Equal(t, 3, ok.Results.Imported)

	bad, err := s.GetImportState(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseError, bad.Phase)
	assert.Equal(t, "daemon unreachable", bad.Error)

	for _, id := range []string{"ok", "bad", "missing"} {
		resumable, err := s.HasResumableImport(ctx, id)
		require.NoError(t, err)
		assert.False(t, resumable, id)
	}
}

func TestSetImportPhase_ClearsError(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.CreateImport(ctx, newState("imp-1"), plainFile()))
	require.NoError(t, s.MarkImportError(ctx, "imp-1", "boom"))

	st, err := s.SetImportPhase(ctx, "imp-1", domain.PhasePosts)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePosts, st.Phase)
	assert.Empty(t, st.Error)
}

func TestClearImport(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.CreateImport(ctx, newState("old"), plainFile()))
	require.NoError(t, s.CreateImport(ctx, newState("new"), plainFile()))

	// Clearing a non-active session keeps the active pointer.
	require.NoError(t, s.ClearImport(ctx, "old"))
	active, err := s.GetActiveImportID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", active)

	require.NoError(t, s.ClearImport(ctx, "new"))
	_, err = s.GetImportState(ctx, "new")
	assert.ErrorIs(t, err, ErrImportNotFound)
	_, err = s.GetImportFile(ctx, "new")
	assert.ErrorIs(t, err, ErrImportFileNotFound)
	_, err = s.GetActiveImportID(ctx)
	assert.ErrorIs(t, err, ErrNoActiveImport)

	// Idempotent.
	require.NoError(t, s.ClearImport(ctx, "new"))

	// Writes after clearing fail instead of resurrecting the session.
	assert.ErrorIs(t, s.SetImportFile(ctx, "new", plainFile()), ErrImportNotFound)
	assert.ErrorIs(t, s.MarkImportComplete(ctx, "new", nil), ErrImportNotFound)
}

func TestSetActiveImport(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.CreateImport(ctx, newState("a"), plainFile()))
	require.NoError(t, s.CreateImport(ctx, newState("b"), plainFile()))

	require.NoError(t, s.SetActiveImport(ctx, "a"))
	active, err := s.GetActiveImportID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", active)

	assert.ErrorIs(t, s.SetActiveImport(ctx, "missing"), ErrImportNotFound)
}

func TestListImportStates_NewestFirst(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		st := newState(id)
		st.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.CreateImport(ctx, st, plainFile()))
	}

	states, err := s.ListImportStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, "third", states[0].ImportID)
	assert.Equal(t, "second", states[1].ImportID)
	assert.Equal(t, "first", states[2].ImportID)
}

func TestStore_EmitsStateEvents(t *testing.T) {
	tmpDir := t.TempDir()
	emitter := &recordingEmitter{}
	s, err := New(filepath.Join(tmpDir, "test.db"), nil, emitter)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateImport(ctx, newState("imp-1"), plainFile()))
	require.NoError(t, s.UpdateImportProgress(ctx, "imp-1", 1, 1))
	require.NoError(t, s.MarkImportComplete(ctx, "imp-1", nil))
	require.NoError(t, s.ClearImport(ctx, "imp-1"))

	assert.Equal(t, []sse.EventType{
		sse.EventImportUpdated,
		sse.EventImportUpdated,
		sse.EventImportCompleted,
		sse.EventImportDeleted,
	}, emitter.types())
}

func TestStore_InMemoryAndScan(t *testing.T) {
	s, err := Open("", nil, nil, Options{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateImport(ctx, newState("imp-1"), plainFile()))

	var keys []string
	require.NoError(t, s.Scan("import:", func(e RawEntry) error {
		keys = append(keys, e.Key)
		return nil
	}))
	assert.ElementsMatch(t, []string{"import:active", "import:file:imp-1", "import:state:imp-1"}, keys)
}
