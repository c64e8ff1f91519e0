package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leozw/portfolio-guardian/internal/alerting"
	"github.com/leozw/portfolio-guardian/internal/checks"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/leozw/portfolio-guardian/internal/notify"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const SweepName = "monitoring"

// Store is what the monitoring triggers read.
type Store interface {
	alerting.NotificationLog
	ListDeployedDomains(ctx context.Context) ([]core.Domain, error)
	SumTraffic(ctx context.Context, domainID string, from, to time.Time) (core.TrafficTotals, error)
	SumRevenue(ctx context.Context, domainID string, from, to time.Time) (float64, error)
	// LatestBacklinkSnapshots returns up to n snapshots, newest first.
	LatestBacklinkSnapshots(ctx context.Context, domainID string, n int) ([]core.BacklinkSnapshot, error)
	ListPublishedPages(ctx context.Context, domainID string) ([]core.ContentPage, error)
}

type trigger struct {
	name     string
	evaluate func(ctx context.Context, d core.Domain, now time.Time) ([]Finding, error)
}

// Runner executes the five monitoring triggers over all deployed domains.
type Runner struct {
	cfg      config.MonitoringSweep
	store    Store
	site     checks.Checker
	limiter  *rate.Limiter
	notifier notify.Notifier
	throttle *alerting.Throttle
	logger   *zap.Logger
	now      func() time.Time
	triggers []trigger
}

func NewRunner(cfg config.MonitoringSweep, store Store, site checks.Checker, notifier notify.Notifier, logger *zap.Logger) *Runner {
	r := &Runner{
		cfg:      cfg,
		store:    store,
		site:     site,
		limiter:  rate.NewLimiter(rate.Limit(cfg.ProbeRPS), 1),
		notifier: notifier,
		throttle: alerting.NewThrottle(store, cfg.ThrottleWindow),
		logger:   logger.With(zap.String("sweep", SweepName)),
		now:      time.Now,
	}
	r.triggers = []trigger{
		{"traffic_drop", r.trafficDrop},
		{"revenue_anomaly", r.revenueAnomaly},
		{"site_health", r.siteHealth},
		{"backlink_loss", r.backlinkLoss},
		{"search_quality", r.searchQuality},
	}
	return r
}

func (r *Runner) Name() string { return SweepName }

// run state shared by the concurrently running triggers.
type runState struct {
	tally *core.Tally
	mu    sync.Mutex
	worst map[string]core.Severity
}

func (rs *runState) observe(domainID string, sev core.Severity) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.worst[domainID] = core.MaxSeverity(rs.worst[domainID], sev)
}

// Run evaluates every trigger. Triggers run concurrently and independently:
// a trigger that fails or panics is logged and counted, and the others still
// complete.
func (r *Runner) Run(ctx context.Context) (*core.Summary, error) {
	now := r.now().UTC()
	summary := &core.Summary{Sweep: SweepName, RunID: uuid.New().String(), StartedAt: now}
	defer func() { summary.FinishedAt = r.now().UTC() }()

	if !r.cfg.Enabled {
		summary.Disabled = true
		return summary, nil
	}

	domains, err := r.store.ListDeployedDomains(ctx)
	if err != nil {
		summary.Errors++
		return summary, fmt.Errorf("failed to list deployed domains: %w", err)
	}

	state := &runState{tally: core.NewTally(summary), worst: make(map[string]core.Severity)}
	for _, d := range domains {
		state.worst[d.ID] = core.SeverityHealthy
	}

	p := pool.New().WithErrors()
	for _, t := range r.triggers {
		t := t
		p.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("trigger %s panicked: %v", t.name, rec)
				}
			}()
			r.runTrigger(ctx, t, domains, now, state)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		r.logger.Error("Monitoring trigger failed", zap.Error(err))
		summary.Errors++
	}

	summary.Scanned = len(domains)
	for _, sev := range state.worst {
		summary.CountSeverity(sev)
	}

	r.logger.Info("Monitoring sweep finished",
		zap.String("run_id", summary.RunID),
		zap.Int("scanned", summary.Scanned),
		zap.Int("alerts_created", summary.AlertsCreated),
		zap.Int("skipped_cooldown", summary.SkippedCooldown),
		zap.Duration("throttle_window", r.throttle.Window()),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

func (r *Runner) runTrigger(ctx context.Context, t trigger, domains []core.Domain, now time.Time, state *runState) {
	logger := r.logger.With(zap.String("trigger", t.name))

	p := pool.New().WithMaxGoroutines(r.cfg.Concurrency)
	for _, d := range domains {
		d := d
		p.Go(func() {
			findings, err := t.evaluate(ctx, d, now)
			if err != nil {
				logger.Error("Trigger evaluation failed", zap.String("domain_id", d.ID), zap.Error(err))
				state.tally.Update(func(s *core.Summary) { s.Errors++ })
				return
			}
			for _, f := range findings {
				state.observe(d.ID, f.Severity)
				r.emit(ctx, d, f, now, logger, state.tally)
			}
		})
	}
	p.Wait()
}

func (r *Runner) emit(ctx context.Context, d core.Domain, f Finding, now time.Time, logger *zap.Logger, tally *core.Tally) {
	allowed, err := r.throttle.Allow(ctx, core.NotificationQuery{Kind: f.Kind, EntityID: d.ID}, now)
	if err != nil {
		logger.Error("Failed to check alert throttle", zap.String("domain_id", d.ID), zap.Error(err))
		tally.Update(func(s *core.Summary) { s.Errors++ })
		return
	}
	if !allowed {
		tally.Update(func(s *core.Summary) { s.SkippedCooldown++ })
		return
	}

	metadata := map[string]interface{}{"reasons": f.Reasons}
	for k, v := range f.Metadata {
		metadata[k] = v
	}
	_, err = r.notifier.CreateNotification(ctx, core.Notification{
		Kind:       f.Kind,
		Severity:   f.Severity,
		Title:      f.Title,
		Message:    f.Message,
		EntityType: "domain",
		EntityID:   d.ID,
		ActionURL:  "/domains/" + d.ID,
		DedupKey:   alerting.DedupKey(d.ID, f.Kind, f.Reasons),
		Metadata:   metadata,
	})
	if err != nil {
		logger.Error("Failed to create notification", zap.String("domain_id", d.ID), zap.Error(err))
		tally.Update(func(s *core.Summary) { s.Errors++ })
		return
	}
	tally.Update(func(s *core.Summary) { s.AlertsCreated++ })
}

func one(f *Finding) []Finding {
	if f == nil {
		return nil
	}
	return []Finding{*f}
}

func (r *Runner) trafficDrop(ctx context.Context, d core.Domain, now time.Time) ([]Finding, error) {
	recent, err := r.store.SumTraffic(ctx, d.ID, now.Add(-7*day), now)
	if err != nil {
		return nil, fmt.Errorf("recent traffic: %w", err)
	}
	prior, err := r.store.SumTraffic(ctx, d.ID, now.Add(-14*day), now.Add(-7*day))
	if err != nil {
		return nil, fmt.Errorf("prior traffic: %w", err)
	}
	return one(EvaluateTrafficDrop(d.Name, recent.Pageviews, prior.Pageviews)), nil
}

func (r *Runner) revenueAnomaly(ctx context.Context, d core.Domain, now time.Time) ([]Finding, error) {
	last7, err := r.store.SumRevenue(ctx, d.ID, now.Add(-7*day), now)
	if err != nil {
		return nil, fmt.Errorf("7-day revenue: %w", err)
	}
	last30, err := r.store.SumRevenue(ctx, d.ID, now.Add(-30*day), now)
	if err != nil {
		return nil, fmt.Errorf("30-day revenue: %w", err)
	}
	return one(EvaluateRevenueAnomaly(d.Name, last7, last30)), nil
}

func (r *Runner) siteHealth(ctx context.Context, d core.Domain, _ time.Time) ([]Finding, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("probe limiter: %w", err)
	}
	res := r.site.Check(ctx, "https://"+checks.Hostname(d.Name)+"/")
	return one(EvaluateSiteHealth(d.Name, res)), nil
}

func (r *Runner) backlinkLoss(ctx context.Context, d core.Domain, _ time.Time) ([]Finding, error) {
	snaps, err := r.store.LatestBacklinkSnapshots(ctx, d.ID, 2)
	if err != nil {
		return nil, fmt.Errorf("backlink snapshots: %w", err)
	}
	return one(EvaluateBacklinkLoss(d.Name, snaps)), nil
}

func (r *Runner) searchQuality(ctx context.Context, d core.Domain, now time.Time) ([]Finding, error) {
	pages, err := r.store.ListPublishedPages(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("published pages: %w", err)
	}
	recent, err := r.store.SumTraffic(ctx, d.ID, now.Add(-30*day), now)
	if err != nil {
		return nil, fmt.Errorf("recent impressions: %w", err)
	}
	prior, err := r.store.SumTraffic(ctx, d.ID, now.Add(-60*day), now.Add(-30*day))
	if err != nil {
		return nil, fmt.Errorf("prior impressions: %w", err)
	}
	return EvaluateSearchQuality(QualityInputs{
		Domain:            d,
		Pages:             pages,
		ImpressionsRecent: recent.Impressions,
		ImpressionsPrior:  prior.Impressions,
		Now:               now,
	}), nil
}
