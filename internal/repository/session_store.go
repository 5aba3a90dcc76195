package repository

import (
	"context"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

// SessionStore persists active-time entries keyed by (user, day).
//
// SaveEntries replaces the session list of every given entry. Implementations
// apply the whole batch or nothing, and refuse a batch that would leave two
// open sessions for one (user, day) with ErrOpenSessionExists.
//
// SaveLiveDuration sets the running duration of one session and touches
// nothing else. It is a no-op when the session is gone or already closed.
type SessionStore interface {
	LoadEntry(ctx context.Context, userID, date string) (domain.ActiveTimeEntry, error)
	ListEntries(ctx context.Context, date string) ([]domain.ActiveTimeEntry, error)
	SaveEntries(ctx context.Context, entries []domain.ActiveTimeEntry) error
	SaveLiveDuration(ctx context.Context, userID, date, sessionID string, seconds int64) error
}

func validateEntries(entries []domain.ActiveTimeEntry) error {
	for _, e := range entries {
		open := 0
		for _, s := range e.Sessions {
			if s.IsOpen() {
				open++
			}
		}
		if open > 1 {
			return ErrOpenSessionExists
		}
	}
	return nil
}

// setLiveDuration updates the open session with the given id. It reports
// whether the entry changed.
func setLiveDuration(e *domain.ActiveTimeEntry, sessionID string, seconds int64) bool {
	for i := range e.Sessions {
		sess := &e.Sessions[i]
		if sess.ID != sessionID || !sess.IsOpen() {
			continue
		}
		if sess.DurationSeconds == seconds {
			return false
		}
		sess.DurationSeconds = seconds
		return true
	}
	return false
}
