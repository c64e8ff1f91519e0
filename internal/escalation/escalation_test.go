package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/leozw/portfolio-guardian/internal/alerting"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func task(id string, created time.Time) core.ReviewTask {
	return core.ReviewTask{
		ID:                 id,
		EntityType:         "article",
		EntityID:           "art-" + id,
		Status:             core.ReviewStatusPending,
		CreatedAt:          created,
		SLAHours:           24,
		EscalateAfterHours: 48,
	}
}

func TestComputeDeadlines(t *testing.T) {
	tests := []struct {
		name         string
		sla, esc     float64
		wantDue      time.Duration
		wantEscalate time.Duration
	}{
		{"explicit", 12, 36, 12 * time.Hour, 36 * time.Hour},
		{"fallbacks", 0, 0, 24 * time.Hour, 48 * time.Hour},
		{"negative uses fallback", -5, -1, 24 * time.Hour, 48 * time.Hour},
		{"escalate clamped to due", 30, 10, 30 * time.Hour, 30 * time.Hour},
		{"fractional hours", 1.5, 2.5, 90 * time.Minute, 150 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := task("x", t0)
			tk.SLAHours, tk.EscalateAfterHours = tt.sla, tt.esc
			d := ComputeDeadlines(tk, 24*time.Hour, 48*time.Hour)
			if got := d.DueAt.Sub(t0); got != tt.wantDue {
				t.Errorf("due offset = %v, want %v", got, tt.wantDue)
			}
			if got := d.EscalateAt.Sub(t0); got != tt.wantEscalate {
				t.Errorf("escalate offset = %v, want %v", got, tt.wantEscalate)
			}
		})
	}
}

func TestStateAtAndSeverity(t *testing.T) {
	d := ComputeDeadlines(task("x", t0), 24*time.Hour, 48*time.Hour)
	tests := []struct {
		at    time.Duration
		state State
		sev   core.Severity
	}{
		{0, StateOnTime, core.SeverityHealthy},
		{23 * time.Hour, StateOnTime, core.SeverityHealthy},
		{24 * time.Hour, StateBreached, core.SeverityWarning},
		{47 * time.Hour, StateBreached, core.SeverityWarning},
		{48 * time.Hour, StateEscalated, core.SeverityWarning},
		{71 * time.Hour, StateEscalated, core.SeverityWarning},
		{72 * time.Hour, StateEscalated, core.SeverityCritical},
	}
	for _, tt := range tests {
		now := t0.Add(tt.at)
		if got := d.StateAt(now); got != tt.state {
			t.Errorf("T0+%v state = %s, want %s", tt.at, got, tt.state)
		}
		if got := d.Severity(now); got != tt.sev {
			t.Errorf("T0+%v severity = %s, want %s", tt.at, got, tt.sev)
		}
	}
}

func TestStateIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rank := map[State]int{StateOnTime: 0, StateBreached: 1, StateEscalated: 2}
	for i := 0; i < 1000; i++ {
		tk := task("x", t0)
		tk.SLAHours = rng.Float64()*100 - 10
		tk.EscalateAfterHours = rng.Float64()*200 - 10
		d := ComputeDeadlines(tk, 24*time.Hour, 48*time.Hour)

		a := t0.Add(time.Duration(rng.Int63n(int64(300 * time.Hour))))
		b := a.Add(time.Duration(rng.Int63n(int64(100 * time.Hour))))
		if rank[d.StateAt(a)] > rank[d.StateAt(b)] {
			t.Fatalf("state went backwards: %s at %v then %s at %v", d.StateAt(a), a, d.StateAt(b), b)
		}
	}
}

func TestReadWriteStatePreservesChecklist(t *testing.T) {
	checklist := json.RawMessage(`{"items":[{"label":"facts","done":true}],"notes":"ok"}`)
	st, err := ReadState(checklist)
	if err != nil {
		t.Fatal(err)
	}
	if st.AlertCount != 0 || st.LastAlertAt != nil {
		t.Fatalf("expected zero state, got %+v", st)
	}

	at := t0.Add(50 * time.Hour)
	out, err := WriteState(checklist, core.EscalationState{AlertCount: 2, LastAlertAt: &at})
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(out, "notes").String() != "ok" || !gjson.GetBytes(out, "items.0.done").Bool() {
		t.Fatalf("checklist fields lost: %s", out)
	}
	if gjson.GetBytes(out, "escalation.alertCount").Int() != 2 {
		t.Fatalf("alertCount not written: %s", out)
	}

	back, err := ReadState(out)
	if err != nil {
		t.Fatal(err)
	}
	if back.AlertCount != 2 || back.LastAlertAt == nil || !back.LastAlertAt.Equal(at) {
		t.Fatalf("read back %+v", back)
	}
}

func TestReadStateEdgeCases(t *testing.T) {
	if _, err := ReadState(json.RawMessage(`[1,2]`)); !errors.Is(err, ErrMalformedChecklist) {
		t.Errorf("array checklist: err = %v", err)
	}
	if _, err := ReadState(json.RawMessage(`{broken`)); !errors.Is(err, ErrMalformedChecklist) {
		t.Errorf("broken checklist: err = %v", err)
	}
	st, err := ReadState(json.RawMessage(`{"escalation":"nope"}`))
	if err != nil || st.AlertCount != 0 {
		t.Errorf("non-object escalation: %+v, %v", st, err)
	}
	st, err = ReadState(json.RawMessage(`{"escalation":{"alertCount":-3}}`))
	if err != nil || st.AlertCount != 0 {
		t.Errorf("negative count: %+v, %v", st, err)
	}
	for _, blank := range []string{"", "  \n", "null", " null "} {
		st, err := ReadState(json.RawMessage(blank))
		if err != nil || st.AlertCount != 0 || st.LastAlertAt != nil {
			t.Errorf("read %q: %+v, %v", blank, st, err)
		}
		out, err := WriteState(json.RawMessage(blank), core.EscalationState{AlertCount: 1})
		if err != nil || gjson.GetBytes(out, "escalation.alertCount").Int() != 1 || !gjson.ParseBytes(out).IsObject() {
			t.Errorf("write to %q checklist: %s, %v", blank, out, err)
		}
	}
}

func TestMergeEscalationStateIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ts := func() *time.Time {
		if rng.Intn(4) == 0 {
			return nil
		}
		v := t0.Add(time.Duration(rng.Intn(500)) * time.Hour)
		return &v
	}
	for i := 0; i < 1000; i++ {
		existing := core.EscalationState{AlertCount: rng.Intn(10), LastAlertAt: ts(), LastOpsAlertAt: ts()}
		update := core.EscalationState{AlertCount: rng.Intn(10), LastAlertAt: ts(), LastOpsAlertAt: ts()}
		m := MergeEscalationState(existing, update)

		if m.AlertCount < existing.AlertCount || m.AlertCount < update.AlertCount {
			t.Fatalf("count decreased: %d from %d/%d", m.AlertCount, existing.AlertCount, update.AlertCount)
		}
		for _, prev := range []*time.Time{existing.LastAlertAt, update.LastAlertAt} {
			if prev != nil && (m.LastAlertAt == nil || m.LastAlertAt.Before(*prev)) {
				t.Fatalf("lastAlertAt moved backwards: %v < %v", m.LastAlertAt, prev)
			}
		}
		for _, prev := range []*time.Time{existing.LastOpsAlertAt, update.LastOpsAlertAt} {
			if prev != nil && (m.LastOpsAlertAt == nil || m.LastOpsAlertAt.Before(*prev)) {
				t.Fatalf("lastOpsAlertAt moved backwards: %v < %v", m.LastOpsAlertAt, prev)
			}
		}
	}
}

type fakeStore struct {
	mu       sync.Mutex
	tasks    map[string]core.ReviewTask
	order    []string
	decided  map[string]bool
	writes   int
	listErr  error
	writeErr error
}

func newFakeStore(tasks ...core.ReviewTask) *fakeStore {
	f := &fakeStore{tasks: map[string]core.ReviewTask{}, decided: map[string]bool{}}
	for _, tk := range tasks {
		f.tasks[tk.ID] = tk
		f.order = append(f.order, tk.ID)
	}
	return f
}

func (f *fakeStore) ListPendingReviewTasks(_ context.Context, limit int) ([]core.ReviewTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []core.ReviewTask
	for _, id := range f.order {
		if len(out) == limit {
			break
		}
		out = append(out, f.tasks[id])
	}
	return out, nil
}

func (f *fakeStore) UpdateChecklistIfPending(_ context.Context, id string, checklist json.RawMessage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return false, f.writeErr
	}
	if f.decided[id] {
		return false, nil
	}
	tk := f.tasks[id]
	tk.Checklist = checklist
	f.tasks[id] = tk
	f.writes++
	return true, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	created   []core.Notification
	ops       []core.OpsAlert
	opsResult core.OpsResult
	createErr error
}

func (f *fakeNotifier) CreateNotification(_ context.Context, n core.Notification) (*core.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, n)
	return &n, nil
}

func (f *fakeNotifier) SendOpsAlert(_ context.Context, a core.OpsAlert) core.OpsResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, a)
	return f.opsResult
}

func newTestSweep(store *fakeStore, n *fakeNotifier, now *time.Time, mutate func(*config.ReviewSweep)) *Sweep {
	cfg := config.DefaultSweeps().Review
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewSweep(cfg, store, n, zap.NewNop())
	s.now = func() time.Time { return *now }
	return s
}

func TestSweepEscalatesOnceAfterDeadline(t *testing.T) {
	store := newFakeStore(task("t1", t0))
	n := &fakeNotifier{opsResult: core.OpsResult{Delivered: true}}
	now := t0.Add(47 * time.Hour)
	s := newTestSweep(store, n, &now, nil)

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.AlertsCreated != 0 || sum.Warning != 1 {
		t.Fatalf("T0+47h: %+v", sum)
	}

	now = t0.Add(49 * time.Hour)
	sum, outcomes, err := s.RunDetailed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.AlertsCreated != 1 || sum.OpsDelivered != 1 || len(outcomes) != 1 || outcomes[0].Outcome != alerting.OutcomeAlerted {
		t.Fatalf("T0+49h: %+v %+v", sum, outcomes)
	}
	if len(n.created) != 1 || n.created[0].Severity != core.SeverityWarning || n.created[0].Kind != core.KindReviewEscalation {
		t.Fatalf("notifications = %+v", n.created)
	}

	st, err := ReadState(store.tasks["t1"].Checklist)
	if err != nil {
		t.Fatal(err)
	}
	if st.AlertCount != 1 || st.LastAlertAt == nil || !st.LastAlertAt.Equal(now) || st.LastOpsAlertAt == nil {
		t.Fatalf("stored state = %+v", st)
	}

	// Inside the cooldown the task is skipped and the state left alone.
	now = t0.Add(60 * time.Hour)
	sum, err = s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.AlertsCreated != 0 || sum.SkippedCooldown != 1 {
		t.Fatalf("T0+60h: %+v", sum)
	}

	// After the cooldown it alerts again, now critical, with the count bumped.
	now = t0.Add(74 * time.Hour)
	sum, err = s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.AlertsCreated != 1 || n.created[1].Severity != core.SeverityCritical {
		t.Fatalf("T0+74h: %+v %+v", sum, n.created)
	}
	st, _ = ReadState(store.tasks["t1"].Checklist)
	if st.AlertCount != 2 {
		t.Fatalf("alertCount = %d, want 2", st.AlertCount)
	}
}

func TestSweepBudgetPicksMostOverdue(t *testing.T) {
	var tasks []core.ReviewTask
	for i := 0; i < 8; i++ {
		// t0 is the oldest and therefore the most overdue.
		tasks = append(tasks, task(fmt.Sprintf("t%d", i), t0.Add(time.Duration(i)*time.Hour)))
	}
	store := newFakeStore(tasks...)
	n := &fakeNotifier{}
	now := t0.Add(60 * time.Hour)
	s := newTestSweep(store, n, &now, func(c *config.ReviewSweep) {
		c.MaxAlerts = 3
		c.OpsEnabled = false
	})

	sum, outcomes, err := s.RunDetailed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.AlertsCreated != 3 || sum.SkippedCap != 5 || sum.OpsDelivered != 0 || sum.OpsFailed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	var alerted []string
	for _, o := range outcomes {
		if o.Outcome == alerting.OutcomeAlerted {
			alerted = append(alerted, o.TaskID)
		}
	}
	if fmt.Sprint(alerted) != "[t0 t1 t2]" {
		t.Fatalf("alerted = %v", alerted)
	}
	if store.writes != 3 {
		t.Fatalf("writes = %d, want 3", store.writes)
	}
}

func TestSweepCriticalRanksAheadOfWarning(t *testing.T) {
	old := task("old", t0)
	young := task("young", t0.Add(30*time.Hour))
	// Escalated only 3h before now.
	young.EscalateAfterHours = 40
	store := newFakeStore(young, old)
	n := &fakeNotifier{}
	now := t0.Add(73 * time.Hour)
	s := newTestSweep(store, n, &now, func(c *config.ReviewSweep) { c.MaxAlerts = 1 })

	_, outcomes, err := s.RunDetailed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 2 || outcomes[0].TaskID != "old" || outcomes[0].Severity != core.SeverityCritical || outcomes[1].Outcome != alerting.OutcomeCap {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}

func TestSweepEscalatesTaskWithNullChecklist(t *testing.T) {
	tk := task("t1", t0)
	tk.Checklist = json.RawMessage("null")
	store := newFakeStore(tk)
	n := &fakeNotifier{}
	now := t0.Add(49 * time.Hour)
	s := newTestSweep(store, n, &now, func(c *config.ReviewSweep) { c.OpsEnabled = false })

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.AlertsCreated != 1 || sum.Errors != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	st, err := ReadState(store.tasks["t1"].Checklist)
	if err != nil || st.AlertCount != 1 {
		t.Fatalf("stored state = %+v, %v (checklist %s)", st, err, store.tasks["t1"].Checklist)
	}
}

func TestSweepOpsFailureStillRecordsInAppAlert(t *testing.T) {
	store := newFakeStore(task("t1", t0))
	n := &fakeNotifier{opsResult: core.OpsResult{Reason: "http_status", StatusCode: 500}}
	now := t0.Add(50 * time.Hour)
	s := newTestSweep(store, n, &now, nil)

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.AlertsCreated != 1 || sum.OpsFailed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	st, _ := ReadState(store.tasks["t1"].Checklist)
	if st.AlertCount != 1 || st.LastOpsAlertAt != nil {
		t.Fatalf("state = %+v", st)
	}
}

func TestSweepConflictWhenTaskDecided(t *testing.T) {
	store := newFakeStore(task("t1", t0))
	store.decided["t1"] = true
	n := &fakeNotifier{}
	now := t0.Add(50 * time.Hour)
	s := newTestSweep(store, n, &now, func(c *config.ReviewSweep) { c.OpsEnabled = false })

	sum, outcomes, err := s.RunDetailed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Conflicts != 1 || sum.AlertsCreated != 1 || !outcomes[0].Conflict {
		t.Fatalf("summary = %+v outcomes = %+v", sum, outcomes)
	}
}

func TestSweepNotificationFailureRefundsBudget(t *testing.T) {
	store := newFakeStore(task("a", t0), task("b", t0.Add(time.Hour)))
	n := &fakeNotifier{createErr: errors.New("db down")}
	now := t0.Add(50 * time.Hour)
	s := newTestSweep(store, n, &now, func(c *config.ReviewSweep) { c.MaxAlerts = 1 })

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Errors != 2 || sum.SkippedCap != 0 || store.writes != 0 {
		t.Fatalf("summary = %+v writes = %d", sum, store.writes)
	}
}

func TestSweepListFailure(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("boom")
	now := t0
	s := newTestSweep(store, &fakeNotifier{}, &now, nil)
	sum, err := s.Run(context.Background())
	if err == nil || sum.Errors != 1 {
		t.Fatalf("sum = %+v err = %v", sum, err)
	}
}

func TestSummarize(t *testing.T) {
	now := t0.Add(100 * time.Hour)
	soon := task("soon", now.Add(-22*time.Hour))
	later := task("later", now.Add(-2*time.Hour))
	breached := task("breached", now.Add(-30*time.Hour))
	escalated := task("escalated", now.Add(-80*time.Hour))
	done := task("done", now.Add(-200*time.Hour))
	done.Status = "approved"

	sum := Summarize([]core.ReviewTask{later, breached, soon, escalated, done}, now, SummaryOptions{
		DefaultSLA:      24 * time.Hour,
		DefaultEscalate: 48 * time.Hour,
		DueSoon:         4 * time.Hour,
		TopOverdue:      5,
	})

	if sum.Pending != 4 || sum.OnTime != 2 || sum.Breached != 1 || sum.Escalated != 1 || sum.DueSoon != 1 {
		t.Fatalf("counts = %+v", sum)
	}
	if sum.NextDueAt == nil || !sum.NextDueAt.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("next due = %v", sum.NextDueAt)
	}
	if len(sum.TopOverdue) != 2 || sum.TopOverdue[0].TaskID != "escalated" || sum.TopOverdue[1].TaskID != "breached" {
		t.Fatalf("top overdue = %+v", sum.TopOverdue)
	}
	if got := sum.TopOverdue[0].DueInHours; got != -56 {
		t.Fatalf("due in hours = %v, want -56", got)
	}

	empty := Summarize(nil, now, SummaryOptions{})
	if empty.TopOverdue == nil || empty.NextDueAt != nil {
		t.Fatalf("empty summary = %+v", empty)
	}
}
