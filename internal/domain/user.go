package domain

import "time"

// UserRole controls what a team member may see and change.
type UserRole string

const (
	UserRoleAdmin  UserRole = "admin"
	UserRoleMember UserRole = "member"
	UserRoleViewer UserRole = "viewer"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleMember, UserRoleViewer:
		return true
	}
	return false
}

// User is a member of the team directory.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         UserRole
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TracksTime reports whether the user takes part in active-time tracking.
// Viewers only read dashboards.
func (u User) TracksTime() bool {
	return u.Role != UserRoleViewer
}
