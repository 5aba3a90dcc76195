package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/activity-tracker/internal/domain"
	"github.com/spec-kit/activity-tracker/internal/events"
	"github.com/spec-kit/activity-tracker/internal/observability"
	"github.com/spec-kit/activity-tracker/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyStore fails SaveEntries while failNext is set, writes everything but
// failDate before failing as the per-day file store can, and refuses open
// sessions for conflictUser after recording one as a concurrent replica would.
type flakyStore struct {
	repository.SessionStore
	mu           sync.Mutex
	failNext     int
	failDate     string
	conflictUser string
	saves        int
	liveSaves    int
}

func (s *flakyStore) SaveEntries(ctx context.Context, entries []domain.ActiveTimeEntry) error {
	s.mu.Lock()
	s.saves++
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		return errors.New("disk full")
	}
	conflict, failDate := s.conflictUser, s.failDate
	s.mu.Unlock()

	for _, e := range entries {
		if e.UserID != conflict {
			continue
		}
		sess, open := e.OpenSession()
		if !open {
			continue
		}
		stored, err := s.SessionStore.LoadEntry(ctx, e.UserID, e.Date)
		if err != nil {
			return err
		}
		if cur, ok := stored.OpenSession(); ok && cur.ID == sess.ID {
			continue
		}
		if stored.OpenSessionIndex() < 0 {
			stored.Open("replica-"+sess.ID, sess.StartTime, sess.Memo)
			if err := s.SessionStore.SaveEntries(ctx, []domain.ActiveTimeEntry{stored}); err != nil {
				return err
			}
		}
		return fmt.Errorf("save: %w", repository.ErrOpenSessionExists)
	}

	if failDate != "" {
		var kept []domain.ActiveTimeEntry
		for _, e := range entries {
			if e.Date != failDate {
				kept = append(kept, e)
			}
		}
		if len(kept) < len(entries) {
			if err := s.SessionStore.SaveEntries(ctx, kept); err != nil {
				return err
			}
			return fmt.Errorf("write %s: disk full", failDate)
		}
	}
	return s.SessionStore.SaveEntries(ctx, entries)
}

func (s *flakyStore) SaveLiveDuration(ctx context.Context, userID, date, sessionID string, seconds int64) error {
	s.mu.Lock()
	s.liveSaves++
	s.mu.Unlock()
	return s.SessionStore.SaveLiveDuration(ctx, userID, date, sessionID, seconds)
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	clock      *fakeClock
	users      repository.UserRepository
	store      *flakyStore
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	statuses   *StatusService
	deriver    *Deriver
	activeTime *ActiveTimeService
	opts       TrackerOptions

	mu     sync.Mutex
	events []events.Event
}

func newFixture(t *testing.T, start time.Time, users ...domain.User) *fixture {
	t.Helper()
	if len(users) == 0 {
		users = []domain.User{
			{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: domain.UserRoleMember},
			{ID: "u2", Name: "Bob", Email: "bob@example.com", Role: domain.UserRoleMember},
		}
	}

	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		clock:      &fakeClock{now: start},
		users:      repository.NewMemoryUserRepository(users...),
		store:      &flakyStore{SessionStore: repository.NewMemorySessionStore()},
		dispatcher: events.NewInMemoryDispatcher(),
		metrics:    observability.NewMetrics(),
	}
	seq := 0
	f.opts = TrackerOptions{
		Location: time.UTC,
		Clock:    f.clock.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("s%d", seq)
		},
		Lock: &sync.Mutex{},
	}
	for _, et := range []events.EventType{
		events.EventStatusChanged, events.EventSessionOpened,
		events.EventSessionClosed, events.EventActiveTimeChanged,
	} {
		f.dispatcher.Subscribe(et, func(_ context.Context, ev events.Event) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, ev)
			return nil
		})
	}

	f.statuses = NewStatusService(StatusDependencies{
		Statuses:   repository.NewMemoryStatusRepository("", zap.NewNop()),
		Users:      f.users,
		Dispatcher: f.dispatcher,
	}, f.opts)
	f.deriver = NewDeriver(DeriverDependencies{
		Users:      f.users,
		Statuses:   f.statuses,
		Store:      f.store,
		Dispatcher: f.dispatcher,
		Metrics:    f.metrics,
	}, f.opts)
	f.activeTime = NewActiveTimeService(ActiveTimeDependencies{
		Users:      f.users,
		Statuses:   f.statuses,
		Store:      f.store,
		Dispatcher: f.dispatcher,
	}, f.opts)
	return f
}

func (f *fixture) setStatus(userID string, status domain.UserStatus, memo string) {
	f.t.Helper()
	_, err := f.statuses.UpdateStatus(f.ctx, userID, status, memo)
	require.NoError(f.t, err)
}

func (f *fixture) cycle() CycleResult {
	f.t.Helper()
	res, err := f.deriver.CheckStatusChanges(f.ctx)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) entry(userID, date string) domain.ActiveTimeEntry {
	f.t.Helper()
	e, err := f.store.LoadEntry(f.ctx, userID, date)
	require.NoError(f.t, err)
	return e
}

func (f *fixture) countEvents(t events.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func requireTotalInvariant(t *testing.T, e domain.ActiveTimeEntry) {
	t.Helper()
	var sum int64
	open := 0
	for _, s := range e.Sessions {
		if s.IsOpen() {
			open++
			continue
		}
		sum += s.DurationSeconds
		require.Equal(t, domain.ElapsedSeconds(s.StartTime, *s.EndTime), s.DurationSeconds)
	}
	require.LessOrEqual(t, open, 1)
	require.Equal(t, sum, e.TotalSeconds)
}
