package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/activity-tracker/internal/api/dto"
	"github.com/spec-kit/activity-tracker/internal/domain"
	"github.com/spec-kit/activity-tracker/internal/service"
	apperrors "github.com/spec-kit/activity-tracker/pkg/util/errorutil"
)

// StatusHandler exposes the status store.
type StatusHandler struct {
	statuses *service.StatusService
	today    func() string
}

// NewStatusHandler constructs handler. today supplies the default date for
// history queries.
func NewStatusHandler(statuses *service.StatusService, today func() string) *StatusHandler {
	return &StatusHandler{statuses: statuses, today: today}
}

// Get handles GET /status/:userId.
func (h *StatusHandler) Get(c *fiber.Ctx) error {
	snap, err := h.statuses.GetSnapshot(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatusResponse(snap)})
}

// Update handles PUT /status/:userId.
func (h *StatusHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	snap, err := h.statuses.UpdateStatus(c.UserContext(), c.Params("userId"), req.Status, req.Memo)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatusResponse(snap)})
}

// Toggle handles POST /status/:userId/toggle.
func (h *StatusHandler) Toggle(c *fiber.Ctx) error {
	var req dto.ToggleActiveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	snap, err := h.statuses.ToggleActive(c.UserContext(), c.Params("userId"), req.Project, req.Memo)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatusResponse(snap)})
}

// History handles GET /status/:userId/history?date=YYYY-MM-DD.
func (h *StatusHandler) History(c *fiber.Ctx) error {
	date := c.Query("date", h.today())
	history, err := h.statuses.History(c.UserContext(), c.Params("userId"), date)
	if err != nil {
		return err
	}
	items := make([]dto.StatusResponse, 0, len(history))
	for _, entry := range history {
		items = append(items, dto.NewStatusResponse(domain.StatusSnapshot(entry)))
	}
	return c.JSON(fiber.Map{"data": items, "date": date})
}
