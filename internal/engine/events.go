package engine

import "time"

// EventType identifies a sync lifecycle notification.
type EventType string

const (
	EventSyncStarted   EventType = "sync_started"
	EventPushCompleted EventType = "push_completed"
	EventPullCompleted EventType = "pull_completed"
	EventSyncCompleted EventType = "sync_completed"
	EventSyncFailed    EventType = "sync_failed"
)

// Event is a sync lifecycle notification delivered to the configured sink.
// Counters are only meaningful for the event types that set them.
type Event struct {
	Type       EventType `json:"type"`
	At         time.Time `json:"at"`
	Succeeded  int       `json:"succeeded,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	QueueDepth int       `json:"queue_depth,omitempty"`
	Error      string    `json:"error,omitempty"`
}
