package dto

import (
	"time"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

// UpdateStatusRequest payload for PUT /status/:userId.
type UpdateStatusRequest struct {
	Status domain.UserStatus `json:"status"`
	Memo   string            `json:"memo"`
}

// ToggleActiveRequest payload for POST /status/:userId/toggle.
type ToggleActiveRequest struct {
	Project string `json:"project"`
	Memo    string `json:"memo"`
}

// StatusResponse is a user's status at one instant.
type StatusResponse struct {
	UserID    string            `json:"user_id"`
	Status    domain.UserStatus `json:"status"`
	Memo      string            `json:"memo,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
}

// NewStatusResponse maps a snapshot. A never-set status has no timestamp.
func NewStatusResponse(s domain.StatusSnapshot) StatusResponse {
	resp := StatusResponse{UserID: s.UserID, Status: s.Status, Memo: s.Memo}
	if !s.Timestamp.IsZero() {
		ts := s.Timestamp
		resp.Timestamp = &ts
	}
	return resp
}
