package app

import (
	"context"
	"errors"

	"github.com/leozw/portfolio-guardian/internal/checks"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/db"
	"github.com/leozw/portfolio-guardian/internal/escalation"
	"github.com/leozw/portfolio-guardian/internal/health"
	"github.com/leozw/portfolio-guardian/internal/integrations"
	"github.com/leozw/portfolio-guardian/internal/monitoring"
	"github.com/leozw/portfolio-guardian/internal/notify"
	"github.com/leozw/portfolio-guardian/internal/scheduler"
	"go.uber.org/zap"
)

var (
	_ health.Store       = (*db.Repository)(nil)
	_ monitoring.Store   = (*db.Repository)(nil)
	_ integrations.Store = (*db.Repository)(nil)
	_ escalation.Store   = (*db.Repository)(nil)
	_ notify.Store       = (*db.Repository)(nil)
)

// Store is everything the sweeps read and write.
type Store interface {
	health.Store
	monitoring.Store
	integrations.Store
	escalation.Store
}

// Sweeps holds one instance of every sweep built from the same settings.
type Sweeps struct {
	Health       *health.Sweep
	Monitoring   *monitoring.Runner
	Integrations *integrations.Sweep
	Review       *escalation.Sweep

	schedules map[string]string
}

// NewSweeps builds every sweep. observer may be nil.
func NewSweeps(cfg config.Sweeps, store Store, notifier notify.Notifier, observer health.Observer, logger *zap.Logger) *Sweeps {
	probes := health.Probes{
		TLS: checks.NewSSLChecker(cfg.Health.ProbeTimeout),
		DNS: checks.NewDNSChecker("", cfg.Health.ProbeTimeout),
	}
	if cfg.Health.WhoisEnabled {
		probes.WHOIS = checks.NewWhoisChecker(cfg.Health.ProbeTimeout)
	}

	healthSweep := health.NewSweep(cfg.Health, store, probes, notifier, logger)
	if observer != nil {
		healthSweep.WithObserver(observer)
	}

	return &Sweeps{
		Health:       healthSweep,
		Monitoring:   monitoring.NewRunner(cfg.Monitoring, store, checks.NewHTTPChecker(cfg.Monitoring.ProbeTimeout), notifier, logger),
		Integrations: integrations.NewSweep(cfg.Integrations, store, notifier, logger),
		Review:       escalation.NewSweep(cfg.Review, store, notifier, logger),
		schedules: map[string]string{
			health.SweepName:       cfg.Health.Schedule,
			monitoring.SweepName:   cfg.Monitoring.Schedule,
			integrations.SweepName: cfg.Integrations.Schedule,
			escalation.SweepName:   cfg.Review.Schedule,
		},
	}
}

func (s *Sweeps) All() []scheduler.Sweep {
	return []scheduler.Sweep{s.Health, s.Monitoring, s.Integrations, s.Review}
}

// Register adds every sweep to sched under its configured schedule,
// replacing previous registrations.
func (s *Sweeps) Register(sched *scheduler.Scheduler) error {
	for _, sw := range s.All() {
		if err := sched.Register(sw, s.schedules[sw.Name()]); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the sweep with the given name.
func (s *Sweeps) Find(name string) (scheduler.Sweep, bool) {
	for _, sw := range s.All() {
		if sw.Name() == name {
			return sw, true
		}
	}
	return nil, false
}

// SLAReporter serves review SLA summaries from whichever review sweep is
// currently registered, so reloaded settings apply.
type SLAReporter struct {
	Scheduler *scheduler.Scheduler
}

func (r SLAReporter) SLA(ctx context.Context) (*escalation.SLASummary, error) {
	sw, ok := r.Scheduler.Lookup(escalation.SweepName)
	if !ok {
		return nil, errors.New("review sweep not registered")
	}
	review, ok := sw.(*escalation.Sweep)
	if !ok {
		return nil, errors.New("review sweep has unexpected type")
	}
	return review.SLA(ctx)
}
