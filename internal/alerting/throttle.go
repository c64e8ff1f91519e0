package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
)

// NotificationLog answers whether a matching unread notification exists.
type NotificationLog interface {
	HasUnreadNotification(ctx context.Context, q core.NotificationQuery) (bool, error)
}

// Throttle suppresses an alert while an unread notification matching it is
// younger than the window.
type Throttle struct {
	log    NotificationLog
	window time.Duration
}

func NewThrottle(log NotificationLog, window time.Duration) *Throttle {
	return &Throttle{log: log, window: window}
}

// Allow reports whether a notification matching q may be created at now.
func (t *Throttle) Allow(ctx context.Context, q core.NotificationQuery, now time.Time) (bool, error) {
	q.Since = now.Add(-t.window)
	found, err := t.log.HasUnreadNotification(ctx, q)
	if err != nil {
		return false, fmt.Errorf("failed to check notification log: %w", err)
	}
	return !found, nil
}

func (t *Throttle) Window() time.Duration {
	return t.window
}
