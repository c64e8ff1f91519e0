package handlers

import (
	"context"

	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/leozw/portfolio-guardian/internal/escalation"
	"github.com/leozw/portfolio-guardian/internal/scheduler"
	"go.uber.org/zap"
)

// SweepRunner is the scheduler surface the API needs.
type SweepRunner interface {
	Status() []scheduler.Status
	RunNow(ctx context.Context, name string) (*core.Summary, error)
}

type SLAReporter interface {
	SLA(ctx context.Context) (*escalation.SLASummary, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type NotificationLister interface {
	ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]core.Notification, error)
}

type Handler struct {
	sweeps        SweepRunner
	sla           SLAReporter
	db            Pinger
	notifications NotificationLister
	logger        *zap.Logger
}

func NewHandler(sweeps SweepRunner, sla SLAReporter, db Pinger, notifications NotificationLister, logger *zap.Logger) *Handler {
	return &Handler{
		sweeps:        sweeps,
		sla:           sla,
		db:            db,
		notifications: notifications,
		logger:        logger,
	}
}
