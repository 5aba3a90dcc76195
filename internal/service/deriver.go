package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/activity-tracker/internal/domain"
	"github.com/spec-kit/activity-tracker/internal/events"
	"github.com/spec-kit/activity-tracker/internal/observability"
	"github.com/spec-kit/activity-tracker/internal/repository"
)

// DefaultMemo labels sessions opened by a status update without a memo.
const DefaultMemo = "Working"

// UserDirectory lists the users whose status is tracked.
type UserDirectory interface {
	List(ctx context.Context) ([]domain.User, error)
}

// StatusReader is the read side of the status store.
type StatusReader interface {
	GetStatus(ctx context.Context, userID string) (domain.UserStatus, error)
	GetSnapshot(ctx context.Context, userID string) (domain.StatusSnapshot, error)
}

// TrackerOptions tune the deriver and the active-time queries.
type TrackerOptions struct {
	DefaultMemo string
	Location    *time.Location
	Clock       func() time.Time
	NewID       func() string
	// Lock serializes every read-modify-write of the session store inside
	// this process. Share one Lock between Deriver and ActiveTimeService.
	Lock sync.Locker
}

func (o TrackerOptions) withDefaults() TrackerOptions {
	if o.DefaultMemo == "" {
		o.DefaultMemo = DefaultMemo
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Lock == nil {
		o.Lock = &sync.Mutex{}
	}
	return o
}

// CycleResult summarizes one status check.
type CycleResult struct {
	Opened  int
	Closed  int
	UserIDs []string
}

// Changed reports whether the cycle wrote any session.
func (r CycleResult) Changed() bool {
	return r.Opened > 0 || r.Closed > 0
}

// DeriverDependencies bundles collaborators for the deriver.
type DeriverDependencies struct {
	Users      UserDirectory
	Statuses   StatusReader
	Store      repository.SessionStore
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// Deriver turns observed status edges into active-time sessions.
type Deriver struct {
	users      UserDirectory
	statuses   StatusReader
	store      repository.SessionStore
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	opts       TrackerOptions

	// lastObserved holds the status seen for each user by the last cycle
	// whose writes succeeded. Guarded by opts.Lock.
	lastObserved map[string]domain.UserStatus
}

// NewDeriver constructs the deriver.
func NewDeriver(deps DeriverDependencies, opts TrackerOptions) *Deriver {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deriver{
		users:        deps.Users,
		statuses:     deps.Statuses,
		store:        deps.Store,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       logger,
		opts:         opts.withDefaults(),
		lastObserved: make(map[string]domain.UserStatus),
	}
}

// cycle holds the working copies of entries touched by one status check.
type cycle struct {
	d        *Deriver
	ctx      context.Context
	now      time.Time
	today    string
	previous string
	entries  map[domain.EntryKey]*domain.ActiveTimeEntry
	dirty    map[domain.EntryKey]struct{}
	byUser   map[string][]domain.EntryKey
	events   []events.Event
	opened   int
	closed   int
}

func (c *cycle) entry(userID, date string) (*domain.ActiveTimeEntry, error) {
	key := domain.EntryKey{UserID: userID, Date: date}
	if e, ok := c.entries[key]; ok {
		return e, nil
	}
	loaded, err := c.d.store.LoadEntry(c.ctx, userID, date)
	if err != nil {
		return nil, err
	}
	e := &loaded
	c.entries[key] = e
	return e, nil
}

// openEntry finds the entry holding the user's open session. A session that
// started yesterday and is still running is found in yesterday's entry.
func (c *cycle) openEntry(userID string) (*domain.ActiveTimeEntry, error) {
	for _, date := range []string{c.today, c.previous} {
		e, err := c.entry(userID, date)
		if err != nil {
			return nil, err
		}
		if e.OpenSessionIndex() >= 0 {
			return e, nil
		}
	}
	return nil, nil
}

func (c *cycle) markDirty(e *domain.ActiveTimeEntry) {
	key := e.Key()
	if _, ok := c.dirty[key]; ok {
		return
	}
	c.dirty[key] = struct{}{}
	c.byUser[e.UserID] = append(c.byUser[e.UserID], key)
}

func (c *cycle) closeSession(userID string) error {
	return c.closeSessionAt(userID, c.now)
}

func (c *cycle) closeSessionAt(userID string, at time.Time) error {
	e, err := c.openEntry(userID)
	if err != nil || e == nil {
		return err
	}
	sess, ok := e.Close(at)
	if !ok {
		return nil
	}
	c.markDirty(e)
	c.closed++
	c.events = append(c.events, sessionEvent(events.EventSessionClosed, userID, e.Date, sess, c.now))
	return nil
}

func (c *cycle) openSession(userID, memo string) error {
	existing, err := c.openEntry(userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	e, err := c.entry(userID, c.today)
	if err != nil {
		return err
	}
	id := c.d.opts.NewID()
	if !e.Open(id, c.now, memo) {
		return nil
	}
	c.markDirty(e)
	c.opened++
	sess, _ := e.OpenSession()
	c.events = append(c.events, sessionEvent(events.EventSessionOpened, userID, e.Date, sess, c.now))
	return nil
}

// CheckStatusChanges runs one edge-detection cycle over every known user.
//
// The observed status of a user is only recorded once the sessions written
// for it are persisted, so a failed write is detected again and retried on
// the next cycle.
func (d *Deriver) CheckStatusChanges(ctx context.Context) (CycleResult, error) {
	d.opts.Lock.Lock()
	defer d.opts.Lock.Unlock()

	users, err := d.users.List(ctx)
	if err != nil {
		d.metrics.RecordCycle(0, 0, err)
		return CycleResult{}, err
	}

	now := d.opts.Clock()
	local := now.In(d.opts.Location)
	c := &cycle{
		d:        d,
		ctx:      ctx,
		now:      now,
		today:    local.Format(domain.DateLayout),
		previous: local.AddDate(0, 0, -1).Format(domain.DateLayout),
		entries:  make(map[domain.EntryKey]*domain.ActiveTimeEntry),
		dirty:    make(map[domain.EntryKey]struct{}),
		byUser:   make(map[string][]domain.EntryKey),
	}

	observed := make(map[string]domain.UserStatus)
	for _, user := range users {
		snap, err := d.statuses.GetSnapshot(ctx, user.ID)
		if err != nil {
			d.logger.Warn("status read failed", zap.String("user_id", user.ID), zap.Error(err))
			continue
		}
		if err := d.observe(c, user.ID, snap); err != nil {
			d.logger.Warn("session update failed", zap.String("user_id", user.ID), zap.Error(err))
			c.dropUsers(map[string]struct{}{user.ID: {}})
			continue
		}
		observed[user.ID] = snap.Status
	}

	failed, err := d.persist(c)
	for userID, status := range observed {
		if _, bad := failed[userID]; bad {
			continue
		}
		d.lastObserved[userID] = status
	}

	result := CycleResult{Opened: c.opened, Closed: c.closed}
	for userID := range c.byUser {
		result.UserIDs = append(result.UserIDs, userID)
	}
	sort.Strings(result.UserIDs)

	if err != nil {
		d.logger.Error("persist active time failed", zap.Int("failed_users", len(failed)), zap.Error(err))
	}
	d.metrics.RecordCycle(result.Opened, result.Closed, err)

	if result.Changed() {
		d.notify(ctx, c.events, result)
	}
	return result, err
}

func (d *Deriver) observe(c *cycle, userID string, snap domain.StatusSnapshot) error {
	status, memo := snap.Status, snap.Memo
	prev, seen := d.lastObserved[userID]

	if !seen && status != domain.StatusActive {
		// A session left open by an earlier run whose status has since moved
		// away from active ends at that status change.
		return c.closeSessionAt(userID, staleCloseTime(snap.Timestamp, c.now))
	}

	if !seen || prev != status {
		if prev == domain.StatusActive && status != domain.StatusActive {
			if err := c.closeSession(userID); err != nil {
				return err
			}
		}
		if status == domain.StatusActive && prev != domain.StatusActive {
			label := memo
			if label == "" {
				label = d.opts.DefaultMemo
			}
			if err := c.openSession(userID, label); err != nil {
				return err
			}
		}
		return nil
	}

	if status != domain.StatusActive {
		return nil
	}

	e, err := c.openEntry(userID)
	if err != nil {
		return err
	}
	if e == nil {
		// Still active but nothing is open, e.g. a split whose reopen was
		// never written. Resume tracking.
		label := memo
		if label == "" {
			label = d.opts.DefaultMemo
		}
		return c.openSession(userID, label)
	}
	current, _ := e.OpenSession()
	if memo == "" || current.Memo == memo {
		return nil
	}
	if err := c.closeSession(userID); err != nil {
		return err
	}
	return c.openSession(userID, memo)
}

// persist writes the cycle's dirty entries in one batch. When the store
// reports a concurrent open session, entries are retried one user at a time
// so other users' sessions still land. It returns the users whose writes
// failed and must be observed again.
func (d *Deriver) persist(c *cycle) (map[string]struct{}, error) {
	failed := make(map[string]struct{})
	if len(c.dirty) == 0 {
		return failed, nil
	}

	batch := make([]domain.ActiveTimeEntry, 0, len(c.dirty))
	for key := range c.dirty {
		batch = append(batch, *c.entries[key])
	}
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].UserID != batch[j].UserID {
			return batch[i].UserID < batch[j].UserID
		}
		return batch[i].Date < batch[j].Date
	})

	err := d.store.SaveEntries(c.ctx, batch)
	if err == nil {
		return failed, nil
	}
	if !errors.Is(err, repository.ErrOpenSessionExists) {
		for userID := range c.byUser {
			failed[userID] = struct{}{}
		}
		c.dropUsers(failed)
		return failed, err
	}

	var lastErr error
	dropped := make(map[string]struct{})
	userIDs := make([]string, 0, len(c.byUser))
	for userID := range c.byUser {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)
	for _, userID := range userIDs {
		entries := make([]domain.ActiveTimeEntry, 0, len(c.byUser[userID]))
		for _, key := range c.byUser[userID] {
			entries = append(entries, *c.entries[key])
		}
		switch err := d.store.SaveEntries(c.ctx, entries); {
		case err == nil:
		case errors.Is(err, repository.ErrOpenSessionExists):
			// Another writer already holds the open session; the edge is
			// considered handled.
			d.logger.Info("open session already recorded elsewhere", zap.String("user_id", userID))
			dropped[userID] = struct{}{}
		default:
			failed[userID] = struct{}{}
			dropped[userID] = struct{}{}
			lastErr = err
		}
	}

	if len(dropped) > 0 {
		c.dropUsers(dropped)
	}
	return failed, lastErr
}

// dropUsers removes the users' pending writes and events from the cycle.
func (c *cycle) dropUsers(users map[string]struct{}) {
	for key := range c.dirty {
		if _, drop := users[key.UserID]; drop {
			delete(c.dirty, key)
		}
	}
	kept := c.events[:0]
	for _, ev := range c.events {
		if _, drop := users[ev.UserID]; drop {
			switch ev.Type {
			case events.EventSessionOpened:
				c.opened--
			case events.EventSessionClosed:
				c.closed--
			}
			continue
		}
		kept = append(kept, ev)
	}
	c.events = kept
	for userID := range users {
		delete(c.byUser, userID)
	}
}

func (d *Deriver) notify(ctx context.Context, evs []events.Event, result CycleResult) {
	if d.dispatcher == nil {
		return
	}
	for _, ev := range evs {
		if err := d.dispatcher.Publish(ctx, ev); err != nil {
			d.logger.Warn("event handler failed", zap.String("event", string(ev.Type)), zap.Error(err))
		}
	}
	summary := events.Event{
		ID:        d.opts.NewID(),
		Type:      events.EventActiveTimeChanged,
		Timestamp: d.opts.Clock(),
		Payload: events.ActiveTimeChangedPayload{
			Opened:  result.Opened,
			Closed:  result.Closed,
			UserIDs: result.UserIDs,
		},
	}
	if err := d.dispatcher.Publish(ctx, summary); err != nil {
		d.logger.Warn("event handler failed", zap.String("event", string(summary.Type)), zap.Error(err))
	}
}

// RefreshLive updates the duration of every open session of an active user
// to its elapsed time so far. Only that duration is written; it never opens
// or closes sessions.
func (d *Deriver) RefreshLive(ctx context.Context) error {
	d.opts.Lock.Lock()
	defer d.opts.Lock.Unlock()

	now := d.opts.Clock()
	local := now.In(d.opts.Location)
	dates := []string{
		local.AddDate(0, 0, -1).Format(domain.DateLayout),
		local.Format(domain.DateLayout),
	}

	var firstErr error
	for _, date := range dates {
		entries, err := d.store.ListEntries(ctx, date)
		if err != nil {
			return err
		}
		for _, e := range entries {
			sess, ok := e.OpenSession()
			if !ok {
				continue
			}
			status, err := d.statuses.GetStatus(ctx, e.UserID)
			if err != nil {
				d.logger.Warn("status read failed", zap.String("user_id", e.UserID), zap.Error(err))
				continue
			}
			if status != domain.StatusActive {
				continue
			}
			elapsed := sess.Elapsed(now)
			if elapsed == sess.DurationSeconds {
				continue
			}
			if err := d.store.SaveLiveDuration(ctx, e.UserID, e.Date, sess.ID, elapsed); err != nil {
				d.logger.Warn("live duration update failed", zap.String("user_id", e.UserID), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	d.metrics.RecordLiveRefresh()
	return firstErr
}

func staleCloseTime(statusAt, now time.Time) time.Time {
	if statusAt.IsZero() || statusAt.After(now) {
		return now
	}
	return statusAt
}

func sessionEvent(t events.EventType, userID, date string, sess domain.ActiveTimeSession, at time.Time) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      t,
		UserID:    userID,
		Timestamp: at,
		Payload: events.SessionPayload{
			SessionID:       sess.ID,
			Date:            date,
			Memo:            sess.Memo,
			DurationSeconds: sess.DurationSeconds,
		},
	}
}
