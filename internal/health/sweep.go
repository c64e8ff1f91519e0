package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leozw/portfolio-guardian/internal/alerting"
	"github.com/leozw/portfolio-guardian/internal/checks"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/leozw/portfolio-guardian/internal/notify"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const SweepName = "health"

// Store is everything the health sweep reads and writes.
type Store interface {
	InputStore
	alerting.NotificationLog
	ListStaleDomains(ctx context.Context, staleBefore time.Time, limit int) ([]core.Domain, error)
}

// Probes are the network checks run against deployed domains. WHOIS may be
// nil.
type Probes struct {
	TLS   checks.Checker
	DNS   checks.Checker
	WHOIS checks.Checker
}

// Observer receives per-domain measurements, typically for metrics.
type Observer interface {
	ObserveDomainHealth(domain string, score int)
	ObserveCertificateDays(domain string, days int)
}

type Sweep struct {
	cfg      config.HealthSweep
	store    Store
	scorer   *Scorer
	probes   Probes
	notifier notify.Notifier
	throttle *alerting.Throttle
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

func NewSweep(cfg config.HealthSweep, store Store, probes Probes, notifier notify.Notifier, logger *zap.Logger) *Sweep {
	return &Sweep{
		cfg:      cfg,
		store:    store,
		scorer:   NewScorer(store),
		probes:   probes,
		notifier: notifier,
		throttle: alerting.NewThrottle(store, cfg.ThrottleWindow),
		logger:   logger.With(zap.String("sweep", SweepName)),
		now:      time.Now,
	}
}

// WithObserver attaches an observer for scores and certificate ages.
func (s *Sweep) WithObserver(o Observer) *Sweep {
	s.observer = o
	return s
}

func (s *Sweep) Name() string { return SweepName }

// Run scans stale domains once. The returned error is set only when the batch
// itself could not be loaded; per-domain failures are counted in Errors.
func (s *Sweep) Run(ctx context.Context) (*core.Summary, error) {
	now := s.now().UTC()
	summary := &core.Summary{Sweep: SweepName, RunID: uuid.New().String(), StartedAt: now}
	defer func() { summary.FinishedAt = s.now().UTC() }()

	if !s.cfg.Enabled {
		summary.Disabled = true
		return summary, nil
	}

	domains, err := s.store.ListStaleDomains(ctx, now.Add(-s.cfg.StaleAfter), s.cfg.MaxDomains)
	if err != nil {
		summary.Errors++
		return summary, fmt.Errorf("failed to list stale domains: %w", err)
	}

	tally := core.NewTally(summary)
	p := pool.New().WithMaxGoroutines(s.cfg.Concurrency)
	for _, d := range domains {
		d := d
		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Domain sweep panicked",
						zap.String("domain_id", d.ID),
						zap.Any("panic", r),
					)
					tally.Update(func(sum *core.Summary) { sum.Errors++ })
				}
			}()
			s.processDomain(ctx, d, tally)
		})
	}
	p.Wait()

	s.logger.Info("Health sweep finished",
		zap.String("run_id", summary.RunID),
		zap.Int("scanned", summary.Scanned),
		zap.Int("alerts_created", summary.AlertsCreated),
		zap.Int("skipped_cooldown", summary.SkippedCooldown),
		zap.Duration("throttle_window", s.throttle.Window()),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

func (s *Sweep) processDomain(ctx context.Context, d core.Domain, tally *core.Tally) {
	logger := s.logger.With(zap.String("domain_id", d.ID), zap.String("domain", d.Name))

	report, err := s.scorer.Score(ctx, d.ID)
	if err != nil {
		logger.Error("Failed to score domain", zap.Error(err))
		tally.Update(func(sum *core.Summary) { sum.Errors++ })
		return
	}
	if s.observer != nil {
		s.observer.ObserveDomainHealth(d.Name, report.Score)
	}

	worst := report.Status
	if d.Deployed {
		for _, sig := range s.probe(ctx, d, logger) {
			sig.signal.Score = &report.Score
			worst = core.MaxSeverity(worst, sig.signal.Severity)
			s.emit(ctx, d, sig, logger, tally)
		}
	}

	tally.Update(func(sum *core.Summary) {
		sum.Scanned++
		sum.CountSeverity(worst)
	})
}

type probeSignal struct {
	kind     string
	signal   core.Signal
	title    string
	message  string
	metadata map[string]interface{}
}

func (s *Sweep) probe(ctx context.Context, d core.Domain, logger *zap.Logger) []probeSignal {
	var out []probeSignal

	if s.probes.TLS != nil {
		if sig, ok := s.evaluateTLS(s.probes.TLS.Check(ctx, d.Name), d); ok {
			out = append(out, sig)
		}
	}
	if s.probes.DNS != nil {
		res := s.probes.DNS.Check(ctx, d.Name)
		if !res.Success {
			out = append(out, probeSignal{
				kind:     core.KindDNSFailure,
				signal:   core.Signal{Severity: core.SeverityCritical, Reasons: []string{"dns_unresolvable"}},
				title:    fmt.Sprintf("DNS lookup failed for %s", d.Name),
				message:  res.Error,
				metadata: map[string]interface{}{"error": res.Error},
			})
		}
	}
	if s.cfg.WhoisEnabled && s.probes.WHOIS != nil {
		res := s.probes.WHOIS.Check(ctx, d.Name)
		if !res.Success {
			logger.Debug("WHOIS probe inconclusive", zap.String("error", res.Error))
		} else if days := res.WHOIS.DaysToExpiry; days <= s.cfg.WhoisWarningDays {
			sev := core.SeverityWarning
			if days <= 0 {
				sev = core.SeverityCritical
			}
			out = append(out, probeSignal{
				kind:     core.KindDomainExpiry,
				signal:   core.Signal{Severity: sev, Reasons: []string{"registration_expiring"}},
				title:    fmt.Sprintf("Domain registration for %s expires in %d days", d.Name, days),
				message:  fmt.Sprintf("Registration expires on %s.", res.WHOIS.DomainExpiry.Format("2006-01-02")),
				metadata: map[string]interface{}{"days_to_expiry": days},
			})
		}
	}
	return out
}

func (s *Sweep) evaluateTLS(res *core.ProbeResult, d core.Domain) (probeSignal, bool) {
	if !res.Success {
		return probeSignal{
			kind:     core.KindSSLExpiry,
			signal:   core.Signal{Severity: core.SeverityCritical, Reasons: []string{"handshake_failed"}},
			title:    fmt.Sprintf("TLS handshake failed for %s", d.Name),
			message:  res.Error,
			metadata: map[string]interface{}{"error": res.Error},
		}, true
	}

	days := res.SSL.DaysRemaining
	if s.observer != nil {
		s.observer.ObserveCertificateDays(d.Name, days)
	}

	var sev core.Severity
	switch {
	case days <= s.cfg.SSLCriticalDays:
		sev = core.SeverityCritical
	case days <= s.cfg.SSLWarningDays:
		sev = core.SeverityWarning
	default:
		return probeSignal{}, false
	}
	return probeSignal{
		kind:    core.KindSSLExpiry,
		signal:  core.Signal{Severity: sev, Reasons: []string{"certificate_expiring"}},
		title:   fmt.Sprintf("SSL certificate for %s expires in %d days", d.Name, days),
		message: fmt.Sprintf("Certificate issued by %s is valid until %s.", res.SSL.Issuer, res.SSL.ValidTo.Format(time.RFC3339)),
		metadata: map[string]interface{}{
			"days_remaining": days,
			"trusted":        res.SSL.Trusted,
			"valid_to":       res.SSL.ValidTo,
		},
	}, true
}

func (s *Sweep) emit(ctx context.Context, d core.Domain, sig probeSignal, logger *zap.Logger, tally *core.Tally) {
	sev := sig.signal.Severity
	allowed, err := s.throttle.Allow(ctx, core.NotificationQuery{
		Kind:     sig.kind,
		Severity: &sev,
		EntityID: d.ID,
	}, s.now().UTC())
	if err != nil {
		logger.Error("Failed to check alert throttle", zap.String("kind", sig.kind), zap.Error(err))
		tally.Update(func(sum *core.Summary) { sum.Errors++ })
		return
	}
	if !allowed {
		logger.Debug("Alert throttled", zap.String("kind", sig.kind))
		tally.Update(func(sum *core.Summary) { sum.SkippedCooldown++ })
		return
	}

	metadata := map[string]interface{}{"reasons": sig.signal.Reasons}
	if sig.signal.Score != nil {
		metadata["health_score"] = *sig.signal.Score
	}
	for k, v := range sig.metadata {
		metadata[k] = v
	}

	_, err = s.notifier.CreateNotification(ctx, core.Notification{
		Kind:       sig.kind,
		Severity:   sig.signal.Severity,
		Title:      sig.title,
		Message:    sig.message,
		EntityType: "domain",
		EntityID:   d.ID,
		ActionURL:  "/domains/" + d.ID,
		DedupKey:   alerting.DedupKey(d.ID, sig.kind, sig.signal.Reasons),
		Metadata:   metadata,
	})
	if err != nil {
		logger.Error("Failed to create notification", zap.String("kind", sig.kind), zap.Error(err))
		tally.Update(func(sum *core.Summary) { sum.Errors++ })
		return
	}
	tally.Update(func(sum *core.Summary) { sum.AlertsCreated++ })
}
