package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leozw/portfolio-guardian/internal/alerting"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/leozw/portfolio-guardian/internal/notify"
	"go.uber.org/zap"
)

const SweepName = "review"

type Store interface {
	ListPendingReviewTasks(ctx context.Context, limit int) ([]core.ReviewTask, error)
	// UpdateChecklistIfPending writes the checklist only while the task is
	// still pending and reports whether it did.
	UpdateChecklistIfPending(ctx context.Context, taskID string, checklist json.RawMessage) (bool, error)
}

// Candidate is an escalated task considered for alerting.
type Candidate struct {
	Task      core.ReviewTask
	Deadlines Deadlines
	State     core.EscalationState
	Severity  core.Severity
	Overdue   time.Duration
}

func (c Candidate) RankSeverity() core.Severity { return c.Severity }
func (c Candidate) RankOverdue() float64        { return c.Overdue.Hours() }
func (c Candidate) RankID() string              { return c.Task.ID }

// TaskOutcome records what the sweep did with one candidate.
type TaskOutcome struct {
	TaskID   string           `json:"task_id"`
	Severity core.Severity    `json:"severity"`
	Outcome  alerting.Outcome `json:"outcome"`
	Conflict bool             `json:"conflict,omitempty"`
}

type Sweep struct {
	cfg      config.ReviewSweep
	store    Store
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewSweep(cfg config.ReviewSweep, store Store, notifier notify.Notifier, logger *zap.Logger) *Sweep {
	return &Sweep{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		logger:   logger.With(zap.String("sweep", SweepName)),
		now:      time.Now,
	}
}

func (s *Sweep) Name() string { return SweepName }

func (s *Sweep) Run(ctx context.Context) (*core.Summary, error) {
	summary, _, err := s.RunDetailed(ctx)
	return summary, err
}

// SLA summarizes the pending tasks without alerting.
func (s *Sweep) SLA(ctx context.Context) (*SLASummary, error) {
	tasks, err := s.store.ListPendingReviewTasks(ctx, s.cfg.MaxTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending review tasks: %w", err)
	}
	sum := Summarize(tasks, s.now().UTC(), SummaryOptions{
		DefaultSLA:      s.cfg.DefaultSLA,
		DefaultEscalate: s.cfg.DefaultEscalate,
		DueSoon:         s.cfg.DueSoon,
		TopOverdue:      s.cfg.TopOverdue,
	})
	return &sum, nil
}

// RunDetailed is Run with the per-candidate outcomes.
func (s *Sweep) RunDetailed(ctx context.Context) (*core.Summary, []TaskOutcome, error) {
	now := s.now().UTC()
	summary := &core.Summary{Sweep: SweepName, RunID: uuid.New().String(), StartedAt: now}
	defer func() { summary.FinishedAt = s.now().UTC() }()

	if !s.cfg.Enabled {
		summary.Disabled = true
		return summary, nil, nil
	}

	tasks, err := s.store.ListPendingReviewTasks(ctx, s.cfg.MaxTasks)
	if err != nil {
		summary.Errors++
		return summary, nil, fmt.Errorf("failed to list pending review tasks: %w", err)
	}

	var candidates []Candidate
	for _, t := range tasks {
		if t.Status != core.ReviewStatusPending {
			continue
		}
		d := ComputeDeadlines(t, s.cfg.DefaultSLA, s.cfg.DefaultEscalate)
		sev := d.Severity(now)
		summary.Scanned++
		summary.CountSeverity(sev)

		if d.StateAt(now) != StateEscalated {
			continue
		}
		st, err := ReadState(t.Checklist)
		if err != nil {
			s.logger.Warn("Skipping task with unreadable checklist", zap.String("task_id", t.ID), zap.Error(err))
			summary.Errors++
			continue
		}
		candidates = append(candidates, Candidate{
			Task:      t,
			Deadlines: d,
			State:     st,
			Severity:  sev,
			Overdue:   now.Sub(d.EscalateAt),
		})
	}

	alerting.Rank(candidates)

	budget := alerting.NewBudget(s.cfg.MaxAlerts)
	outcomes := make([]TaskOutcome, 0, len(candidates))
	for _, c := range candidates {
		out := s.process(ctx, c, budget, now, summary)
		outcomes = append(outcomes, out)
	}

	s.logger.Info("Review escalation sweep finished",
		zap.String("run_id", summary.RunID),
		zap.Int("scanned", summary.Scanned),
		zap.Int("candidates", len(candidates)),
		zap.Int("alerts_created", summary.AlertsCreated),
		zap.Int("budget_used", budget.Used()),
		zap.Int("skipped_cooldown", summary.SkippedCooldown),
		zap.Int("skipped_cap", summary.SkippedCap),
		zap.Int("ops_failed", summary.OpsFailed),
		zap.Int("conflicts", summary.Conflicts),
		zap.Int("errors", summary.Errors),
	)
	return summary, outcomes, nil
}

func (s *Sweep) process(ctx context.Context, c Candidate, budget *alerting.Budget, now time.Time, summary *core.Summary) TaskOutcome {
	out := TaskOutcome{TaskID: c.Task.ID, Severity: c.Severity}
	logger := s.logger.With(zap.String("task_id", c.Task.ID))

	if !alerting.CooldownElapsed(c.State.LastAlertAt, s.cfg.Cooldown, now) {
		summary.SkippedCooldown++
		out.Outcome = alerting.OutcomeCooldown
		return out
	}
	if !budget.TryTake() {
		summary.SkippedCap++
		out.Outcome = alerting.OutcomeCap
		return out
	}

	overdueHours := c.Overdue.Hours()
	title := fmt.Sprintf("Review task escalated: %s %s", c.Task.EntityType, c.Task.EntityID)
	message := fmt.Sprintf("Pending for %.0fh, %.0fh past its escalation deadline.",
		now.Sub(c.Task.CreatedAt).Hours(), overdueHours)

	_, err := s.notifier.CreateNotification(ctx, core.Notification{
		Kind:       core.KindReviewEscalation,
		Severity:   c.Severity,
		Title:      title,
		Message:    message,
		EntityType: "review_task",
		EntityID:   c.Task.ID,
		ActionURL:  "/review/" + c.Task.ID,
		DedupKey:   alerting.DedupKey(c.Task.ID, core.KindReviewEscalation, []string{string(StateEscalated)}),
		Metadata: map[string]interface{}{
			"entity_type":   c.Task.EntityType,
			"entity_id":     c.Task.EntityID,
			"due_at":        c.Deadlines.DueAt,
			"escalate_at":   c.Deadlines.EscalateAt,
			"overdue_hours": overdueHours,
			"alert_count":   c.State.AlertCount + 1,
		},
	})
	if err != nil {
		logger.Error("Failed to create escalation notification", zap.Error(err))
		budget.Refund()
		summary.Errors++
		out.Outcome = alerting.OutcomeFailed
		return out
	}
	summary.AlertsCreated++
	out.Outcome = alerting.OutcomeAlerted

	update := core.EscalationState{AlertCount: c.State.AlertCount + 1, LastAlertAt: &now}
	if s.cfg.OpsEnabled {
		res := s.notifier.SendOpsAlert(ctx, core.OpsAlert{
			Severity: c.Severity,
			Title:    title,
			Message:  message,
			Details: map[string]interface{}{
				"task_id":       c.Task.ID,
				"entity":        c.Task.EntityType + "/" + c.Task.EntityID,
				"overdue_hours": fmt.Sprintf("%.1f", overdueHours),
				"alert_count":   update.AlertCount,
			},
		})
		if res.Delivered {
			summary.OpsDelivered++
			update.LastOpsAlertAt = &now
		} else {
			summary.OpsFailed++
		}
	}

	merged := MergeEscalationState(c.State, update)
	checklist, err := WriteState(c.Task.Checklist, merged)
	if err != nil {
		logger.Error("Failed to encode escalation state", zap.Error(err))
		summary.Errors++
		return out
	}
	ok, err := s.store.UpdateChecklistIfPending(ctx, c.Task.ID, checklist)
	switch {
	case err != nil:
		logger.Error("Failed to persist escalation state", zap.Error(err))
		summary.Errors++
	case !ok:
		logger.Info("Task decided during escalation; state not written")
		summary.Conflicts++
		out.Conflict = true
	}
	return out
}
