package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/activity-tracker/internal/events"
	"github.com/spec-kit/activity-tracker/internal/service"
)

// SessionDeriver is the work driven by the tracker loops.
type SessionDeriver interface {
	CheckStatusChanges(ctx context.Context) (service.CycleResult, error)
	RefreshLive(ctx context.Context) error
}

// RemoteStatusSource reports status changes made by other replicas.
type RemoteStatusSource interface {
	Listen(ctx context.Context, onRemote func(userID string))
}

// TrackerConfig wires the tracker loops.
type TrackerConfig struct {
	Deriver             SessionDeriver
	Dispatcher          events.Dispatcher
	Remote              RemoteStatusSource
	PollInterval        time.Duration
	LiveRefreshInterval time.Duration
	Logger              *zap.Logger
}

// Tracker runs the status edge detector and the live-duration refresher.
type Tracker struct {
	Detector  *Scheduler
	Refresher *Scheduler
	remote    RemoteStatusSource
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewTracker builds both schedulers. A local status_changed event and a
// remote status change each trigger an early detector run.
func NewTracker(cfg TrackerConfig) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{remote: cfg.Remote, logger: logger}
	t.Detector = NewScheduler("status-edge-detector", cfg.PollInterval, func(ctx context.Context) error {
		_, err := cfg.Deriver.CheckStatusChanges(ctx)
		return err
	}, logger)
	t.Refresher = NewScheduler("live-refresh", cfg.LiveRefreshInterval, cfg.Deriver.RefreshLive, logger)

	if cfg.Dispatcher != nil {
		cfg.Dispatcher.Subscribe(events.EventStatusChanged, func(context.Context, events.Event) error {
			t.Detector.Trigger()
			return nil
		})
	}
	return t
}

// Start launches the loops. They stop when ctx is cancelled; Wait blocks
// until they have returned.
func (t *Tracker) Start(ctx context.Context) {
	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		t.Detector.Run(ctx)
	}()
	go func() {
		defer t.wg.Done()
		t.Refresher.Run(ctx)
	}()

	if t.remote != nil {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.remote.Listen(ctx, func(userID string) {
				t.logger.Debug("remote status change", zap.String("user_id", userID))
				t.Detector.Trigger()
			})
		}()
	}
}

// Wait blocks until every loop has stopped.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
