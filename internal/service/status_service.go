package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/activity-tracker/internal/domain"
	"github.com/spec-kit/activity-tracker/internal/events"
	"github.com/spec-kit/activity-tracker/internal/repository"
	apperrors "github.com/spec-kit/activity-tracker/pkg/util/errorutil"
)

// StatusService is the status store: the current status of every user plus
// an append-only history of updates.
type StatusService struct {
	repo       repository.StatusRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
	location   *time.Location
}

// StatusDependencies bundles collaborators for the status service.
type StatusDependencies struct {
	Statuses   repository.StatusRepository
	Users      repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewStatusService constructs the service. Only the Clock and Location of
// opts are used.
func NewStatusService(deps StatusDependencies, opts TrackerOptions) *StatusService {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusService{
		repo:       deps.Statuses,
		users:      deps.Users,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		clock:      opts.Clock,
		location:   opts.Location,
	}
}

// GetSnapshot returns the latest status of the user. A user who never
// reported a status is not-available with a zero timestamp.
func (s *StatusService) GetSnapshot(ctx context.Context, userID string) (domain.StatusSnapshot, error) {
	snap, err := s.repo.Latest(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.StatusSnapshot{UserID: userID, Status: domain.StatusNotAvailable}, nil
	}
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	return *snap, nil
}

// GetStatus returns the user's current status, not-available by default.
func (s *StatusService) GetStatus(ctx context.Context, userID string) (domain.UserStatus, error) {
	snap, err := s.GetSnapshot(ctx, userID)
	if err != nil {
		return "", err
	}
	return snap.Status, nil
}

// GetStatusMemo returns the memo of the user's current status, "" when absent.
func (s *StatusService) GetStatusMemo(ctx context.Context, userID string) (string, error) {
	snap, err := s.GetSnapshot(ctx, userID)
	if err != nil {
		return "", err
	}
	return snap.Memo, nil
}

// UpdateStatus records a new status for the user.
func (s *StatusService) UpdateStatus(ctx context.Context, userID string, status domain.UserStatus, memo string) (domain.StatusSnapshot, error) {
	if !status.Valid() {
		return domain.StatusSnapshot{}, apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.StatusSnapshot{}, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return domain.StatusSnapshot{}, err
	}

	previous, err := s.GetStatus(ctx, userID)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}

	snap := domain.StatusSnapshot{
		UserID:    userID,
		Status:    status,
		Memo:      strings.TrimSpace(memo),
		Timestamp: s.clock(),
	}
	if err := s.repo.Append(ctx, snap); err != nil {
		return domain.StatusSnapshot{}, err
	}

	if s.dispatcher != nil {
		ev := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventStatusChanged,
			UserID:    userID,
			Timestamp: snap.Timestamp,
			Payload: events.StatusChangedPayload{
				OldStatus: previous,
				NewStatus: status,
				Memo:      snap.Memo,
			},
		}
		if err := s.dispatcher.Publish(ctx, ev); err != nil {
			s.logger.Warn("status event handler failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return snap, nil
}

// ToggleActive flips the user between active and available-for-work. Going
// active requires a project and a memo, recorded as "[project] memo".
func (s *StatusService) ToggleActive(ctx context.Context, userID, project, memo string) (domain.StatusSnapshot, error) {
	current, err := s.GetStatus(ctx, userID)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	if current == domain.StatusActive {
		return s.UpdateStatus(ctx, userID, domain.StatusAvailableForWork, "")
	}

	project = strings.TrimSpace(project)
	memo = strings.TrimSpace(memo)
	if project == "" || memo == "" {
		return domain.StatusSnapshot{}, apperrors.NewValidationError("project and memo are required to go active", nil)
	}
	return s.UpdateStatus(ctx, userID, domain.StatusActive, "["+project+"] "+memo)
}

// History lists the user's status updates on the given day, oldest first.
func (s *StatusService) History(ctx context.Context, userID, date string) ([]domain.StatusHistoryEntry, error) {
	from, err := time.ParseInLocation(domain.DateLayout, date, s.location)
	if err != nil {
		return nil, apperrors.NewValidationError("date must be YYYY-MM-DD", map[string]any{"date": date})
	}
	history, err := s.repo.History(ctx, userID, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []domain.StatusHistoryEntry{}
	}
	return history, nil
}
