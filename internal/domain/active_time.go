package domain

import "time"

// DateLayout is the calendar-day key used for active-time entries.
const DateLayout = "2006-01-02"

// ActiveTimeSession is a contiguous stretch of active status under one memo.
type ActiveTimeSession struct {
	ID              string
	StartTime       time.Time
	EndTime         *time.Time
	DurationSeconds int64
	Memo            string
}

// IsOpen reports whether the session has not been closed yet.
func (s ActiveTimeSession) IsOpen() bool {
	return s.EndTime == nil
}

// Elapsed returns whole seconds between the session start and at, never negative.
func (s ActiveTimeSession) Elapsed(at time.Time) int64 {
	return ElapsedSeconds(s.StartTime, at)
}

// ActiveTimeEntry aggregates one user's sessions for one calendar day.
type ActiveTimeEntry struct {
	UserID       string
	Date         string
	Sessions     []ActiveTimeSession
	TotalSeconds int64
}

// NewActiveTimeEntry returns an empty entry for the user and day.
func NewActiveTimeEntry(userID, date string) ActiveTimeEntry {
	return ActiveTimeEntry{UserID: userID, Date: date, Sessions: []ActiveTimeSession{}}
}

// Key identifies the entry in a store.
func (e ActiveTimeEntry) Key() EntryKey {
	return EntryKey{UserID: e.UserID, Date: e.Date}
}

// OpenSessionIndex returns the index of the session without an end time, or -1.
func (e ActiveTimeEntry) OpenSessionIndex() int {
	for i := len(e.Sessions) - 1; i >= 0; i-- {
		if e.Sessions[i].IsOpen() {
			return i
		}
	}
	return -1
}

// OpenSession returns the open session, if any.
func (e ActiveTimeEntry) OpenSession() (ActiveTimeSession, bool) {
	idx := e.OpenSessionIndex()
	if idx < 0 {
		return ActiveTimeSession{}, false
	}
	return e.Sessions[idx], true
}

// ClosedSeconds sums the durations of closed sessions.
func (e ActiveTimeEntry) ClosedSeconds() int64 {
	var total int64
	for _, s := range e.Sessions {
		if !s.IsOpen() {
			total += s.DurationSeconds
		}
	}
	return total
}

// RecomputeTotal resets TotalSeconds to the sum of closed session durations.
func (e *ActiveTimeEntry) RecomputeTotal() {
	e.TotalSeconds = e.ClosedSeconds()
}

// Open appends a new open session. It reports false when one is already open.
func (e *ActiveTimeEntry) Open(id string, at time.Time, memo string) bool {
	if e.OpenSessionIndex() >= 0 {
		return false
	}
	e.Sessions = append(e.Sessions, ActiveTimeSession{
		ID:        id,
		StartTime: at,
		Memo:      memo,
	})
	return true
}

// Close ends the open session at the given instant and adds its duration to
// the total. It returns the closed session and false when nothing was open.
func (e *ActiveTimeEntry) Close(at time.Time) (ActiveTimeSession, bool) {
	idx := e.OpenSessionIndex()
	if idx < 0 {
		return ActiveTimeSession{}, false
	}
	end := at
	s := &e.Sessions[idx]
	s.EndTime = &end
	s.DurationSeconds = ElapsedSeconds(s.StartTime, end)
	e.TotalSeconds += s.DurationSeconds
	return *s, true
}

// Clone returns a deep copy of the entry.
func (e ActiveTimeEntry) Clone() ActiveTimeEntry {
	out := e
	out.Sessions = make([]ActiveTimeSession, len(e.Sessions))
	for i, s := range e.Sessions {
		if s.EndTime != nil {
			end := *s.EndTime
			s.EndTime = &end
		}
		out.Sessions[i] = s
	}
	return out
}

// EntryKey addresses an entry by user and day.
type EntryKey struct {
	UserID string
	Date   string
}

// ElapsedSeconds floors the distance between two instants to whole seconds,
// clamping negative values (clock skew) to zero.
func ElapsedSeconds(from, to time.Time) int64 {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// UserActiveTime is the per-user row of a day's active-time report.
type UserActiveTime struct {
	UserID        string
	UserName      string
	Role          UserRole
	ActiveSeconds int64
	Date          string
	Sessions      []ActiveTimeSession
}
