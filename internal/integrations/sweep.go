package integrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leozw/portfolio-guardian/internal/alerting"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/leozw/portfolio-guardian/internal/notify"
	"go.uber.org/zap"
)

const SweepName = "integrations"

type Store interface {
	alerting.NotificationLog
	ListConnections(ctx context.Context, limit int) ([]core.IntegrationConnection, error)
	ListShardHealth(ctx context.Context, providers []string) ([]core.ShardHealthRecord, error)
}

// Report is the evaluated state of one sweep run, before alerting.
type Report struct {
	Assessments []Assessment   `json:"-"`
	Issues      []Assessment   `json:"issues"`
	Shards      []ShardStatus  `json:"shards"`
	Regions     []RegionRollup `json:"regions"`
}

type Sweep struct {
	cfg      config.IntegrationSweep
	store    Store
	notifier notify.Notifier
	throttle *alerting.Throttle
	logger   *zap.Logger
	now      func() time.Time
}

func NewSweep(cfg config.IntegrationSweep, store Store, notifier notify.Notifier, logger *zap.Logger) *Sweep {
	return &Sweep{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		throttle: alerting.NewThrottle(store, cfg.Cooldown),
		logger:   logger.With(zap.String("sweep", SweepName)),
		now:      time.Now,
	}
}

func (s *Sweep) Name() string { return SweepName }

func (s *Sweep) thresholds() Thresholds {
	return Thresholds{
		WarningAfter:     s.cfg.WarningAfter,
		CriticalAfter:    s.cfg.CriticalAfter,
		NeverSyncedGrace: s.cfg.NeverSyncedGrace,
	}
}

// Evaluate loads connections and shard records and judges them without
// sending anything.
func (s *Sweep) Evaluate(ctx context.Context, now time.Time) (*Report, error) {
	conns, err := s.store.ListConnections(ctx, s.cfg.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	rep := &Report{Assessments: make([]Assessment, 0, len(conns))}
	for _, c := range conns {
		rep.Assessments = append(rep.Assessments, Assess(c, now, s.thresholds()))
	}
	rep.Issues = TopIssues(rep.Assessments, s.cfg.TopIssueLimit)

	if len(s.cfg.ShardProviders) > 0 {
		records, err := s.store.ListShardHealth(ctx, s.cfg.ShardProviders)
		if err != nil {
			// Connection alerts still go out without the shard extension.
			s.logger.Error("Failed to load shard health", zap.Error(err))
			return rep, fmt.Errorf("failed to list shard health: %w", err)
		}
		rep.Shards = ShardStatuses(conns, records, s.cfg.ShardProviders, now)
		rep.Regions = RollupRegions(rep.Shards, s.cfg.TopRegionLimit)
	}
	return rep, nil
}

// Run evaluates and alerts. Connection alerts draw on the shared budget first;
// region alerts get what is left.
func (s *Sweep) Run(ctx context.Context) (*core.Summary, error) {
	now := s.now().UTC()
	summary := &core.Summary{Sweep: SweepName, RunID: uuid.New().String(), StartedAt: now}
	defer func() { summary.FinishedAt = s.now().UTC() }()

	if !s.cfg.Enabled {
		summary.Disabled = true
		return summary, nil
	}

	rep, err := s.Evaluate(ctx, now)
	if rep == nil {
		summary.Errors++
		return summary, err
	}
	if err != nil {
		summary.Errors++
	}

	summary.Scanned = len(rep.Assessments)
	for _, a := range rep.Assessments {
		summary.CountSeverity(a.Signal.Severity)
	}

	budget := alerting.NewBudget(s.cfg.MaxAlerts)
	keys := alerting.NewKeySet()

	for _, a := range rep.Issues {
		s.deliver(ctx, summary, budget, keys, now, s.connectionNotification(a))
	}
	for _, r := range rep.Regions {
		s.deliver(ctx, summary, budget, keys, now, s.regionNotification(r))
	}

	s.logger.Info("Integration sweep finished",
		zap.String("run_id", summary.RunID),
		zap.Int("scanned", summary.Scanned),
		zap.Int("issues", len(rep.Issues)),
		zap.Int("regions", len(rep.Regions)),
		zap.Int("alerts_created", summary.AlertsCreated),
		zap.Int("budget_used", budget.Used()),
		zap.Duration("cooldown", s.throttle.Window()),
		zap.Int("skipped_cap", summary.SkippedCap),
		zap.Int("skipped_duplicate", summary.SkippedDuplicate),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// deliver applies in-run dedup, cross-run cooldown and the budget, in that
// order, then creates the notification.
func (s *Sweep) deliver(ctx context.Context, summary *core.Summary, budget *alerting.Budget, keys *alerting.KeySet, now time.Time, n core.Notification) alerting.Outcome {
	if !keys.Add(n.DedupKey) {
		summary.SkippedDuplicate++
		return alerting.OutcomeDuplicate
	}

	allowed, err := s.throttle.Allow(ctx, core.NotificationQuery{Kind: n.Kind, DedupKey: n.DedupKey}, now)
	if err != nil {
		s.logger.Error("Failed to check alert cooldown", zap.String("dedup_key", n.DedupKey), zap.Error(err))
		summary.Errors++
		return alerting.OutcomeFailed
	}
	if !allowed {
		summary.SkippedCooldown++
		return alerting.OutcomeCooldown
	}

	if !budget.TryTake() {
		summary.SkippedCap++
		return alerting.OutcomeCap
	}

	if _, err := s.notifier.CreateNotification(ctx, n); err != nil {
		s.logger.Error("Failed to create notification", zap.String("dedup_key", n.DedupKey), zap.Error(err))
		budget.Refund()
		summary.Errors++
		return alerting.OutcomeFailed
	}
	summary.AlertsCreated++
	return alerting.OutcomeAlerted
}

func (s *Sweep) connectionNotification(a Assessment) core.Notification {
	c := a.Connection
	title := fmt.Sprintf("%s integration needs attention", c.Provider)
	if a.Signal.Severity == core.SeverityCritical {
		title = fmt.Sprintf("%s integration is failing", c.Provider)
	}

	meta := map[string]interface{}{
		"reasons":          a.Signal.Reasons,
		"provider":         c.Provider,
		"category":         c.Category,
		"status":           c.Status,
		"last_sync_status": c.LastSyncStatus,
		"sync_age_hours":   a.SyncAge.Hours(),
		"never_synced":     a.NeverSynced,
	}
	if c.DomainID != nil {
		meta["domain_id"] = *c.DomainID
	}

	return core.Notification{
		Kind:       core.KindIntegrationHealth,
		Severity:   a.Signal.Severity,
		Title:      title,
		Message:    describeReasons(a),
		EntityType: "integration_connection",
		EntityID:   c.ID,
		ActionURL:  "/integrations/" + c.ID,
		DedupKey:   alerting.DedupKey(c.ID, core.KindIntegrationHealth, a.Signal.Reasons),
		Metadata:   meta,
	}
}

func describeReasons(a Assessment) string {
	parts := make([]string, 0, len(a.Signal.Reasons))
	for _, r := range a.Signal.Reasons {
		switch r {
		case ReasonMissingCredential:
			parts = append(parts, "credentials are missing")
		case ReasonConnectionError:
			parts = append(parts, "the connection is in error")
		case ReasonLastSyncFailed:
			parts = append(parts, "the last sync failed")
		case ReasonSyncStale:
			parts = append(parts, fmt.Sprintf("last sync was %.0fh ago", a.SyncAge.Hours()))
		case ReasonNeverSynced:
			parts = append(parts, fmt.Sprintf("never synced since creation %.0fh ago", a.SyncAge.Hours()))
		default:
			parts = append(parts, r)
		}
	}
	msg := strings.Join(parts, "; ")
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}

func (s *Sweep) regionNotification(r RegionRollup) core.Notification {
	return core.Notification{
		Kind:     core.KindRegionSaturation,
		Severity: r.Severity,
		Title:    fmt.Sprintf("%s region %s is saturated", r.Provider, r.Region),
		Message: fmt.Sprintf("%d of %d shards degraded (%d critical, %d cooling down).",
			r.Warning+r.Critical, r.Shards, r.Critical, r.Cooling),
		EntityType: "provider_region",
		EntityID:   r.Provider + ":" + r.Region,
		ActionURL:  "/integrations?provider=" + r.Provider,
		DedupKey:   r.DedupKey(),
		Metadata: map[string]interface{}{
			"shards":         r.Shards,
			"cooling":        r.Cooling,
			"warning":        r.Warning,
			"critical":       r.Critical,
			"critical_ratio": r.CriticalRatio,
			"degraded_ratio": r.DegradedRatio,
		},
	}
}
