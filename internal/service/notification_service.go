package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/activity-tracker/internal/events"
)

// NotificationService turns session events into activity log lines.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventSessionOpened, n.handleSession)
	n.dispatcher.Subscribe(events.EventSessionClosed, n.handleSession)
	n.dispatcher.Subscribe(events.EventActiveTimeChanged, n.handleActiveTimeChanged)
}

func (n *NotificationService) handleStatusChanged(_ context.Context, event events.Event) error {
	p, _ := event.Payload.(events.StatusChangedPayload)
	n.logger.Info("StatusChanged",
		zap.String("user_id", event.UserID),
		zap.String("from", string(p.OldStatus)),
		zap.String("to", string(p.NewStatus)),
		zap.String("memo", p.Memo))
	return nil
}

func (n *NotificationService) handleSession(_ context.Context, event events.Event) error {
	p, _ := event.Payload.(events.SessionPayload)
	fields := []zap.Field{
		zap.String("user_id", event.UserID),
		zap.String("session_id", p.SessionID),
		zap.String("date", p.Date),
		zap.String("memo", p.Memo),
	}
	if event.Type == events.EventSessionClosed {
		fields = append(fields,
			zap.Int64("duration_seconds", p.DurationSeconds),
			zap.String("duration", FormatDuration(float64(p.DurationSeconds))))
	}
	n.logger.Info(string(event.Type), fields...)
	return nil
}

func (n *NotificationService) handleActiveTimeChanged(_ context.Context, event events.Event) error {
	n.logger.Debug("ActiveTimeChanged", zap.Any("payload", event.Payload))
	return nil
}
