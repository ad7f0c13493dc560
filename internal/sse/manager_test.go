package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedhypermedia/wxr-importer/internal/domain"
	"github.com/seedhypermedia/wxr-importer/internal/logger"
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case evt := <-c.EventChan:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case evt := <-c.EventChan:
		t.Fatalf("unexpected event %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_FiltersByImport(t *testing.T) {
	m := NewManager(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	all, err := m.Connect("")
	require.NoError(t, err)
	onlyA, err := m.Connect("imp-a")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.Emit(NewProgressEvent(ProgressEventData{ImportID: "imp-b", Phase: domain.PhasePosts, Total: 3}))

	evt := receive(t, all)
	assert.Equal(t, EventImportProgress, evt.Type)
	assertNothing(t, onlyA)

	m.Emit(NewStateEvent(&domain.ImportState{ImportID: "imp-a", Phase: domain.PhaseComplete}))
	assert.Equal(t, EventImportCompleted, receive(t, all).Type)
	assert.Equal(t, EventImportCompleted, receive(t, onlyA).Type)
}

func TestManager_IgnoresForeignEvents(t *testing.T) {
	m := NewManager(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	c, err := m.Connect("")
	require.NoError(t, err)

	m.Emit("not an event")
	assertNothing(t, c)
}

func TestNewStateEvent_Type(t *testing.T) {
	tests := []struct {
		phase domain.ImportPhase
		want  EventType
	}{
		{domain.PhasePending, EventImportUpdated},
		{domain.PhasePosts, EventImportUpdated},
		{domain.PhaseComplete, EventImportCompleted},
		{domain.PhaseError, EventImportFailed},
	}
	for _, tt := range tests {
		evt := NewStateEvent(&domain.ImportState{ImportID: "x", Phase: tt.phase})
		assert.Equal(t, tt.want, evt.Type, string(tt.phase))
		assert.Equal(t, "x", evt.ImportID)
	}
}

func TestManager_ShutdownStopsEmit(t *testing.T) {
	m := NewManager(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	c, err := m.Connect("")
	require.NoError(t, err)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	require.NoError(t, m.Shutdown(shutdownCtx))

	// Emitting after shutdown must not panic.
	m.Emit(NewDeletedEvent("imp-1"))

	select {
	case <-c.Done:
	case <-time.After(time.Second):
		t.Fatal("client not closed on shutdown")
	}
	assert.Equal(t, 0, m.ClientCount())
}
