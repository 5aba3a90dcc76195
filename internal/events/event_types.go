package events

import (
	"time"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventStatusChanged     EventType = "status_changed"
	EventSessionOpened     EventType = "session_opened"
	EventSessionClosed     EventType = "session_closed"
	EventActiveTimeChanged EventType = "active_time_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.UserStatus `json:"old_status"`
	NewStatus domain.UserStatus `json:"new_status"`
	Memo      string            `json:"memo,omitempty"`
}

// SessionPayload payload for session_opened and session_closed.
type SessionPayload struct {
	SessionID       string `json:"session_id"`
	Date            string `json:"date"`
	Memo            string `json:"memo,omitempty"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// ActiveTimeChangedPayload summarizes one deriver cycle that mutated data.
type ActiveTimeChangedPayload struct {
	Opened  int      `json:"opened"`
	Closed  int      `json:"closed"`
	UserIDs []string `json:"user_ids"`
}
