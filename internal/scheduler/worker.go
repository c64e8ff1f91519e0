package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// entry tracks one registered sweep and its last run.
type entry struct {
	name     string
	schedule string
	cronID   cron.EntryID
	running  atomic.Bool

	mu      sync.Mutex
	sweep   Sweep
	lastRun *time.Time
	last    *core.Summary
	lastErr error
}

func newEntry(sw Sweep) *entry {
	return &entry{name: sw.Name(), sweep: sw}
}

func (e *entry) setSweep(sw Sweep) {
	e.mu.Lock()
	e.sweep = sw
	e.mu.Unlock()
}

func (e *entry) current() Sweep {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sweep
}

func (e *entry) record(at time.Time, summary *core.Summary, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastRun = &at
	e.last = summary
	e.lastErr = err
}

func (e *entry) status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Name:        e.name,
		Schedule:    e.schedule,
		Running:     e.running.Load(),
		LastRun:     e.lastRun,
		LastSummary: e.last,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

// execute runs the sweep once, skipping it when a run is already in flight.
// A panic inside the sweep is reported as an error.
func (s *Scheduler) execute(ctx context.Context, e *entry) (summary *core.Summary, err error) {
	if !e.running.CompareAndSwap(false, true) {
		s.logger.Warn("Skipping overlapping sweep run", zap.String("sweep", e.name))
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, e.name)
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer e.running.Store(false)

	start := time.Now()
	logger := s.logger.With(zap.String("sweep", e.name))
	logger.Debug("Sweep started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep %s panicked: %v", e.name, r)
			summary = nil
		}
		if err == nil && summary == nil {
			err = fmt.Errorf("sweep %s returned no summary", e.name)
		}

		elapsed := time.Since(start)
		e.record(start.UTC(), summary, err)
		if s.recorder != nil && summary != nil {
			s.recorder.ObserveSweep(summary, elapsed, err)
		}

		if err != nil {
			logger.Error("Sweep run failed", zap.Duration("duration", elapsed), zap.Error(err))
			return
		}
		logger.Info("Sweep run completed",
			zap.Duration("duration", elapsed),
			zap.Int("scanned", summary.Scanned),
			zap.Int("alerts_created", summary.AlertsCreated),
			zap.Int("errors", summary.Errors),
		)
	}()

	return e.current().Run(ctx)
}
