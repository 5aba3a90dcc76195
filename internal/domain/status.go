package domain

import "time"

// UserStatus is the availability a team member advertises.
type UserStatus string

const (
	StatusActive           UserStatus = "active"
	StatusAvailableForWork UserStatus = "available-for-work"
	StatusNotAvailable     UserStatus = "not-available"
)

// Valid reports whether the status is one of the known values.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusActive, StatusAvailableForWork, StatusNotAvailable:
		return true
	}
	return false
}

// StatusSnapshot is the latest status a user set.
type StatusSnapshot struct {
	UserID    string
	Status    UserStatus
	Memo      string
	Timestamp time.Time
}

// StatusHistoryEntry records a single status update.
type StatusHistoryEntry struct {
	UserID    string
	Status    UserStatus
	Memo      string
	Timestamp time.Time
}
