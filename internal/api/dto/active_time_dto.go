package dto

import (
	"time"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

// SessionResponse is one active-time session.
type SessionResponse struct {
	ID              string     `json:"id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	Memo            string     `json:"memo,omitempty"`
}

// UserActiveTimeResponse is one row of a day's active-time report.
type UserActiveTimeResponse struct {
	UserID        string            `json:"user_id"`
	UserName      string            `json:"user_name,omitempty"`
	Date          string            `json:"date"`
	ActiveSeconds int64             `json:"active_seconds"`
	Formatted     string            `json:"formatted"`
	TotalSeconds  *int64            `json:"total_seconds,omitempty"`
	Sessions      []SessionResponse `json:"sessions"`
}

// UpdateSessionMemoRequest payload for PATCH on a session.
type UpdateSessionMemoRequest struct {
	Memo string `json:"memo"`
}

// NewSessionResponses maps sessions, never returning nil.
func NewSessionResponses(sessions []domain.ActiveTimeSession) []SessionResponse {
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionResponse{
			ID:              s.ID,
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			DurationSeconds: s.DurationSeconds,
			Memo:            s.Memo,
		})
	}
	return out
}
