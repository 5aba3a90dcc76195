package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/activity-tracker/internal/api/dto"
	"github.com/spec-kit/activity-tracker/internal/domain"
	"github.com/spec-kit/activity-tracker/internal/service"
	apperrors "github.com/spec-kit/activity-tracker/pkg/util/errorutil"
)

// ActiveTimeHandler exposes the active-time queries and admin session edits.
type ActiveTimeHandler struct {
	service *service.ActiveTimeService
}

// NewActiveTimeHandler constructs handler.
func NewActiveTimeHandler(activeTime *service.ActiveTimeService) *ActiveTimeHandler {
	return &ActiveTimeHandler{service: activeTime}
}

// ListForDate handles GET /active-time?date=. Viewers are left out of the report.
func (h *ActiveTimeHandler) ListForDate(c *fiber.Ctx) error {
	date := c.Query("date", h.service.Today())
	rows, err := h.service.AllUsersActiveTimeForDate(c.UserContext(), date)
	if err != nil {
		return err
	}
	items := make([]dto.UserActiveTimeResponse, 0, len(rows))
	for _, row := range rows {
		if row.Role == domain.UserRoleViewer {
			continue
		}
		items = append(items, dto.UserActiveTimeResponse{
			UserID:        row.UserID,
			UserName:      row.UserName,
			Date:          row.Date,
			ActiveSeconds: row.ActiveSeconds,
			Formatted:     service.FormatDuration(float64(row.ActiveSeconds)),
			Sessions:      dto.NewSessionResponses(row.Sessions),
		})
	}
	return c.JSON(fiber.Map{"data": items, "date": date})
}

// GetForUser handles GET /active-time/:userId?date=.
func (h *ActiveTimeHandler) GetForUser(c *fiber.Ctx) error {
	userID := c.Params("userId")
	date := c.Query("date", h.service.Today())
	seconds, err := h.service.UserActiveTimeForDate(c.UserContext(), userID, date)
	if err != nil {
		return err
	}
	entry, err := h.service.Entry(c.UserContext(), userID, date)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entryResponse(entry, seconds)})
}

// ActiveUsers handles GET /active-users.
func (h *ActiveTimeHandler) ActiveUsers(c *fiber.Ctx) error {
	users, err := h.service.CurrentActiveUsers(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for _, u := range users {
		items = append(items, dto.NewUserResponse(u))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateSessionMemo handles PATCH /active-time/:userId/:date/sessions/:index.
func (h *ActiveTimeHandler) UpdateSessionMemo(c *fiber.Ctx) error {
	index, err := sessionIndex(c)
	if err != nil {
		return err
	}
	var req dto.UpdateSessionMemoRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry, err := h.service.UpdateSessionMemo(c.UserContext(), c.Params("userId"), c.Params("date"), index, req.Memo)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entryResponse(entry, entry.TotalSeconds)})
}

// DeleteSession handles DELETE /active-time/:userId/:date/sessions/:index.
func (h *ActiveTimeHandler) DeleteSession(c *fiber.Ctx) error {
	index, err := sessionIndex(c)
	if err != nil {
		return err
	}
	entry, err := h.service.DeleteSession(c.UserContext(), c.Params("userId"), c.Params("date"), index)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entryResponse(entry, entry.TotalSeconds)})
}

func sessionIndex(c *fiber.Ctx) (int, error) {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return 0, apperrors.NewValidationError("session index must be an integer", map[string]any{"index": c.Params("index")})
	}
	return index, nil
}

func entryResponse(entry domain.ActiveTimeEntry, activeSeconds int64) dto.UserActiveTimeResponse {
	total := entry.TotalSeconds
	return dto.UserActiveTimeResponse{
		UserID:        entry.UserID,
		Date:          entry.Date,
		ActiveSeconds: activeSeconds,
		Formatted:     service.FormatDuration(float64(activeSeconds)),
		TotalSeconds:  &total,
		Sessions:      dto.NewSessionResponses(entry.Sessions),
	}
}
