// Package sse broadcasts import progress to connected clients as Server-Sent Events.
package sse

import (
	"time"

	"github.com/seedhypermedia/wxr-importer/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventImportProgress is a fine-grained progress report (current item, counters).
	EventImportProgress EventType = "import.progress"
	// EventImportUpdated carries the durable state record after every write.
	EventImportUpdated EventType = "import.updated"
	// EventImportCompleted is sent once when a session reaches the complete phase.
	EventImportCompleted EventType = "import.completed"
	// EventImportFailed is sent once when a session reaches the error phase.
	EventImportFailed EventType = "import.failed"
	// EventImportDeleted is sent when a session is cancelled and its records cleared.
	EventImportDeleted EventType = "import.deleted"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// ImportID scopes delivery. Clients subscribed to one import only get its
	// events; empty means broadcast.
	ImportID string `json:"-"`
}

// ProgressEventData is the payload of import.progress events.
type ProgressEventData struct {
	ImportID    string                `json:"importId"`
	Phase       domain.ImportPhase    `json:"phase"`
	Total       int                   `json:"total"`
	Completed   int                   `json:"completed"`
	CurrentItem string                `json:"currentItem,omitempty"`
	Error       string                `json:"error,omitempty"`
	Results     *domain.ImportResults `json:"results,omitempty"`
}

// StateEventData is the payload of import.updated, import.completed and import.failed events.
type StateEventData struct {
	State *domain.ImportState `json:"state"`
}

// DeletedEventData is the payload of import.deleted events.
type DeletedEventData struct {
	ImportID  string    `json:"importId"`
	DeletedAt time.Time `json:"deletedAt"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"serverTime"`
}

// NewProgressEvent creates an import.progress event.
func NewProgressEvent(data ProgressEventData) Event {
	return Event{
		Type:      EventImportProgress,
		Data:      data,
		ImportID:  data.ImportID,
		Timestamp: time.Now(),
	}
}

// NewStateEvent creates the event matching the state's phase: import.completed,
// import.failed, or import.updated otherwise.
func NewStateEvent(state *domain.ImportState) Event {
	eventType := EventImportUpdated
	switch state.Phase {
	case domain.PhaseComplete:
		eventType = EventImportCompleted
	case domain.PhaseError:
		eventType = EventImportFailed
	}
	return Event{
		Type:      eventType,
		Data:      StateEventData{State: state},
		ImportID:  state.ImportID,
		Timestamp: time.Now(),
	}
}

// NewDeletedEvent creates an import.deleted event.
func NewDeletedEvent(importID string) Event {
	now := time.Now()
	return Event{
		Type:      EventImportDeleted,
		Data:      DeletedEventData{ImportID: importID, DeletedAt: now},
		ImportID:  importID,
		Timestamp: now,
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
	}
}
