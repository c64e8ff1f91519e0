package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leozw/portfolio-guardian/internal/core"
	"go.uber.org/zap"
)

// Notifier is the delivery side every sweep talks to.
type Notifier interface {
	CreateNotification(ctx context.Context, n core.Notification) (*core.Notification, error)
	SendOpsAlert(ctx context.Context, alert core.OpsAlert) core.OpsResult
}

// Store persists in-app notifications.
type Store interface {
	CreateNotification(ctx context.Context, n *core.Notification) error
}

// OpsChannel delivers an alert outside the application.
type OpsChannel interface {
	Name() string
	Send(ctx context.Context, alert core.OpsAlert) core.OpsResult
}

type Service struct {
	store  Store
	ops    OpsChannel
	source string
	logger *zap.Logger
	now    func() time.Time
}

// NewService builds a Notifier. ops may be nil, in which case ops alerts are
// reported as not delivered.
func NewService(store Store, ops OpsChannel, source string, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		ops:    ops,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) CreateNotification(ctx context.Context, n core.Notification) (*core.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}

	if err := s.store.CreateNotification(ctx, &n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.logger.Info("Created notification",
		zap.String("notification_id", n.ID),
		zap.String("kind", n.Kind),
		zap.String("severity", n.Severity.String()),
		zap.String("entity_id", n.EntityID),
	)
	return &n, nil
}

func (s *Service) SendOpsAlert(ctx context.Context, alert core.OpsAlert) core.OpsResult {
	if s.ops == nil {
		return core.OpsResult{Delivered: false, Reason: "ops_channel_not_configured"}
	}
	if alert.Source == "" {
		alert.Source = s.source
	}

	result := s.ops.Send(ctx, alert)
	if !result.Delivered {
		s.logger.Warn("Ops alert not delivered",
			zap.String("channel", s.ops.Name()),
			zap.String("title", alert.Title),
			zap.String("reason", result.Reason),
			zap.Int("status_code", result.StatusCode),
		)
	}
	return result
}
