package repository

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrOpenSessionExists is returned when saving would leave a user with
	// two open sessions on the same day.
	ErrOpenSessionExists = errors.New("an open session already exists for this user and day")
)
