package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/activity-tracker/internal/domain"
	"github.com/spec-kit/activity-tracker/internal/events"
	"github.com/spec-kit/activity-tracker/internal/repository"
	apperrors "github.com/spec-kit/activity-tracker/pkg/util/errorutil"
)

// ActiveTimeDependencies bundles collaborators for the query service.
type ActiveTimeDependencies struct {
	Users      UserDirectory
	Statuses   StatusReader
	Store      repository.SessionStore
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// ActiveTimeService answers active-time questions for the presentation layer
// and applies admin edits to persisted sessions.
type ActiveTimeService struct {
	users      UserDirectory
	statuses   StatusReader
	store      repository.SessionStore
	dispatcher events.Dispatcher
	logger     *zap.Logger
	opts       TrackerOptions
}

// NewActiveTimeService constructs the service. Pass the same TrackerOptions
// as the Deriver so both share one Lock.
func NewActiveTimeService(deps ActiveTimeDependencies, opts TrackerOptions) *ActiveTimeService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActiveTimeService{
		users:      deps.Users,
		statuses:   deps.Statuses,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		opts:       opts.withDefaults(),
	}
}

// Today returns the current calendar day in the tracker time zone.
func (s *ActiveTimeService) Today() string {
	return s.opts.Clock().In(s.opts.Location).Format(domain.DateLayout)
}

// Entry returns the persisted entry for the user and day, empty when none.
func (s *ActiveTimeService) Entry(ctx context.Context, userID, date string) (domain.ActiveTimeEntry, error) {
	if err := validateDate(date); err != nil {
		return domain.ActiveTimeEntry{}, err
	}
	return s.store.LoadEntry(ctx, userID, date)
}

// UserActiveTimeForDate returns the user's active seconds on the day: the
// closed sessions plus the running one.
//
// While the user is active the open session counts up to now. Once the status
// has moved away from active but the session is not closed yet, it counts up
// to the moment of that status change, so the total does not drop or keep
// growing between the transition and the next deriver cycle.
func (s *ActiveTimeService) UserActiveTimeForDate(ctx context.Context, userID, date string) (int64, error) {
	entry, err := s.Entry(ctx, userID, date)
	if err != nil {
		return 0, err
	}
	return s.activeSeconds(ctx, entry)
}

func (s *ActiveTimeService) activeSeconds(ctx context.Context, entry domain.ActiveTimeEntry) (int64, error) {
	total := entry.ClosedSeconds()
	open, ok := entry.OpenSession()
	if !ok {
		return total, nil
	}

	snap, err := s.statuses.GetSnapshot(ctx, entry.UserID)
	if err != nil {
		return 0, err
	}
	until := s.opts.Clock()
	if snap.Status != domain.StatusActive {
		if snap.Timestamp.IsZero() {
			return total, nil
		}
		until = snap.Timestamp
	}
	return total + open.Elapsed(until), nil
}

// AllUsersActiveTimeForDate maps every known user to their active time on the day.
func (s *ActiveTimeService) AllUsersActiveTimeForDate(ctx context.Context, date string) ([]domain.UserActiveTime, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, date)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]domain.ActiveTimeEntry, len(entries))
	for _, e := range entries {
		byUser[e.UserID] = e
	}

	out := make([]domain.UserActiveTime, 0, len(users))
	for _, u := range users {
		entry, ok := byUser[u.ID]
		if !ok {
			entry = domain.NewActiveTimeEntry(u.ID, date)
		}
		seconds, err := s.activeSeconds(ctx, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.UserActiveTime{
			UserID:        u.ID,
			UserName:      u.Name,
			Role:          u.Role,
			ActiveSeconds: seconds,
			Date:          date,
			Sessions:      entry.Sessions,
		})
	}
	return out, nil
}

// IsUserCurrentlyActive reports whether the user's status is active.
func (s *ActiveTimeService) IsUserCurrentlyActive(ctx context.Context, userID string) (bool, error) {
	status, err := s.statuses.GetStatus(ctx, userID)
	if err != nil {
		return false, err
	}
	return status == domain.StatusActive, nil
}

// CurrentActiveUsers lists the users whose status is active.
func (s *ActiveTimeService) CurrentActiveUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]domain.User, 0)
	for _, u := range users {
		ok, err := s.IsUserCurrentlyActive(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			active = append(active, u)
		}
	}
	return active, nil
}

// UpdateSessionMemo relabels a closed session.
func (s *ActiveTimeService) UpdateSessionMemo(ctx context.Context, userID, date string, index int, memo string) (domain.ActiveTimeEntry, error) {
	memo = strings.TrimSpace(memo)
	if memo == "" {
		return domain.ActiveTimeEntry{}, apperrors.NewValidationError("memo is required", nil)
	}
	return s.editSession(ctx, userID, date, index, func(e *domain.ActiveTimeEntry) {
		e.Sessions[index].Memo = memo
	})
}

// DeleteSession removes a closed session from the day.
func (s *ActiveTimeService) DeleteSession(ctx context.Context, userID, date string, index int) (domain.ActiveTimeEntry, error) {
	return s.editSession(ctx, userID, date, index, func(e *domain.ActiveTimeEntry) {
		e.Sessions = append(e.Sessions[:index], e.Sessions[index+1:]...)
	})
}

// editSession applies fn to the entry under the tracker lock. Open sessions
// belong to the deriver and cannot be edited.
func (s *ActiveTimeService) editSession(ctx context.Context, userID, date string, index int, fn func(*domain.ActiveTimeEntry)) (domain.ActiveTimeEntry, error) {
	if err := validateDate(date); err != nil {
		return domain.ActiveTimeEntry{}, err
	}

	s.opts.Lock.Lock()
	defer s.opts.Lock.Unlock()

	entry, err := s.store.LoadEntry(ctx, userID, date)
	if err != nil {
		return domain.ActiveTimeEntry{}, err
	}
	if index < 0 || index >= len(entry.Sessions) {
		return domain.ActiveTimeEntry{}, apperrors.NewNotFound("session", map[string]any{
			"user_id": userID, "date": date, "index": index,
		})
	}
	if entry.Sessions[index].IsOpen() {
		return domain.ActiveTimeEntry{}, apperrors.NewConflict("session is still running", map[string]any{"index": index})
	}

	fn(&entry)
	entry.RecomputeTotal()
	if err := s.store.SaveEntries(ctx, []domain.ActiveTimeEntry{entry}); err != nil {
		return domain.ActiveTimeEntry{}, err
	}

	s.logger.Info("active time edited",
		zap.String("user_id", userID),
		zap.String("date", date),
		zap.Int("index", index),
	)
	if s.dispatcher != nil {
		ev := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventActiveTimeChanged,
			UserID:    userID,
			Timestamp: s.opts.Clock(),
			Payload:   events.ActiveTimeChangedPayload{UserIDs: []string{userID}},
		}
		if err := s.dispatcher.Publish(ctx, ev); err != nil {
			s.logger.Warn("event handler failed", zap.String("event", string(ev.Type)), zap.Error(err))
		}
	}
	return entry, nil
}

func validateDate(date string) error {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return apperrors.NewValidationError("date must be YYYY-MM-DD", map[string]any{"date": date})
	}
	return nil
}
