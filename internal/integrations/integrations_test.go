package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/leozw/portfolio-guardian/internal/notify"
	"go.uber.org/zap"
)

var (
	testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	testTh  = Thresholds{WarningAfter: 24 * time.Hour, CriticalAfter: 72 * time.Hour, NeverSyncedGrace: 24 * time.Hour}
)

func hoursAgo(h float64) *time.Time {
	t := testNow.Add(-time.Duration(h * float64(time.Hour)))
	return &t
}

func conn(id string) core.IntegrationConnection {
	return core.IntegrationConnection{
		ID:             id,
		Provider:       "cloudflare",
		Status:         core.ConnectionConnected,
		HasCredential:  true,
		LastSyncAt:     hoursAgo(1),
		LastSyncStatus: core.SyncSuccess,
		CreatedAt:      testNow.Add(-30 * 24 * time.Hour),
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *core.IntegrationConnection)
		severity core.Severity
		reasons  []string
	}{
		{"healthy", func(c *core.IntegrationConnection) {}, core.SeverityHealthy, nil},
		{"missing credential", func(c *core.IntegrationConnection) { c.HasCredential = false },
			core.SeverityWarning, []string{ReasonMissingCredential}},
		{"error status", func(c *core.IntegrationConnection) { c.Status = core.ConnectionError },
			core.SeverityCritical, []string{ReasonConnectionError}},
		{"error is not downgraded by a later warning", func(c *core.IntegrationConnection) {
			c.Status = core.ConnectionError
			c.LastSyncStatus = core.SyncFailed
		}, core.SeverityCritical, []string{ReasonConnectionError, ReasonLastSyncFailed}},
		{"stale warning", func(c *core.IntegrationConnection) { c.LastSyncAt = hoursAgo(30) },
			core.SeverityWarning, []string{ReasonSyncStale}},
		{"stale critical", func(c *core.IntegrationConnection) { c.LastSyncAt = hoursAgo(80) },
			core.SeverityCritical, []string{ReasonSyncStale}},
		{"never synced past grace", func(c *core.IntegrationConnection) {
			c.LastSyncAt = nil
			c.LastSyncStatus = core.SyncNever
		}, core.SeverityWarning, []string{ReasonNeverSynced}},
		{"never synced within grace", func(c *core.IntegrationConnection) {
			c.LastSyncAt = nil
			c.CreatedAt = testNow.Add(-2 * time.Hour)
		}, core.SeverityHealthy, nil},
		{"disabled skips credential, failure and age checks", func(c *core.IntegrationConnection) {
			c.Status = core.ConnectionDisabled
			c.HasCredential = false
			c.LastSyncStatus = core.SyncFailed
			c.LastSyncAt = hoursAgo(500)
		}, core.SeverityHealthy, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := conn("c1")
			tt.mutate(&c)
			a := Assess(c, testNow, testTh)
			if a.Signal.Severity != tt.severity {
				t.Fatalf("severity = %v, want %v (%v)", a.Signal.Severity, tt.severity, a.Signal.Reasons)
			}
			if len(a.Signal.Reasons) != len(tt.reasons) {
				t.Fatalf("reasons = %v, want %v", a.Signal.Reasons, tt.reasons)
			}
			for i := range tt.reasons {
				if a.Signal.Reasons[i] != tt.reasons[i] {
					t.Fatalf("reasons = %v, want %v", a.Signal.Reasons, tt.reasons)
				}
			}
		})
	}
}

func TestTopIssuesRanking(t *testing.T) {
	a := conn("A")
	a.Status = core.ConnectionError
	a.LastSyncAt = hoursAgo(100)

	b := conn("B")
	b.LastSyncStatus = core.SyncFailed
	b.LastSyncAt = hoursAgo(10)

	c := conn("C")
	c.LastSyncAt = hoursAgo(50)

	healthy := conn("D")

	var all []Assessment
	for _, x := range []core.IntegrationConnection{b, healthy, c, a} {
		all = append(all, Assess(x, testNow, testTh))
	}

	top := TopIssues(all, 2)
	if len(top) != 2 || top[0].Connection.ID != "A" || top[1].Connection.ID != "C" {
		ids := []string{}
		for _, x := range top {
			ids = append(ids, x.Connection.ID)
		}
		t.Fatalf("top issues = %v, want [A C]", ids)
	}
}

func shard(key, account, region string, success, limited, failed int64, penalty float64, cooldown time.Duration, updated time.Time) core.ShardHealthRecord {
	rec := core.ShardHealthRecord{
		Provider:         "cloudflare",
		ShardKey:         key,
		AccountID:        account,
		Region:           region,
		PenaltyScore:     penalty,
		SuccessCount:     success,
		RateLimitedCount: limited,
		FailureCount:     failed,
		UpdatedAt:        updated,
	}
	if cooldown != 0 {
		until := testNow.Add(cooldown)
		rec.CooldownUntil = &until
	}
	return rec
}

func TestMatchShardPrefersAccount(t *testing.T) {
	records := []core.ShardHealthRecord{
		shard("s1", "acct-a", "eu", 10, 0, 0, 0, 0, testNow.Add(-time.Hour)),
		shard("s1", "acct-b", "eu", 10, 0, 0, 0, 0, testNow),
		shard("s2", "acct-a", "us", 10, 0, 0, 0, 0, testNow),
	}

	rec := MatchShard("cloudflare", core.ShardHints{ShardKey: "s1", AccountID: "acct-a"}, records)
	if rec == nil || rec.AccountID != "acct-a" {
		t.Fatalf("expected exact account match, got %+v", rec)
	}
	rec = MatchShard("cloudflare", core.ShardHints{Shard: "s1", AccountID: "acct-z"}, records)
	if rec == nil || rec.AccountID != "acct-b" {
		t.Fatalf("expected most recent record, got %+v", rec)
	}
	if MatchShard("cloudflare", core.ShardHints{ShardKey: "s9"}, records) != nil {
		t.Fatal("unknown shard should not match")
	}
	if MatchShard("cloudflare", core.ShardHints{}, records) != nil {
		t.Fatal("connection without a shard hint should not match")
	}
}

func TestClassifyShard(t *testing.T) {
	tests := []struct {
		name string
		rec  core.ShardHealthRecord
		want core.Severity
	}{
		{"clean", shard("s", "", "eu", 100, 0, 0, 0, 0, testNow), core.SeverityHealthy},
		{"unstable", shard("s", "", "eu", 50, 30, 20, 0, 0, testNow), core.SeverityCritical},
		{"somewhat unstable", shard("s", "", "eu", 75, 20, 5, 0, 0, testNow), core.SeverityWarning},
		{"penalised", shard("s", "", "eu", 100, 0, 0, 85, 0, testNow), core.SeverityCritical},
		{"short cooldown", shard("s", "", "eu", 100, 0, 0, 0, 5*time.Minute, testNow), core.SeverityWarning},
		{"long cooldown", shard("s", "", "eu", 100, 0, 0, 0, time.Hour, testNow), core.SeverityCritical},
		{"expired cooldown", shard("s", "", "eu", 100, 0, 0, 0, -time.Hour, testNow), core.SeverityHealthy},
		{"no traffic", shard("s", "", "eu", 0, 0, 0, 0, 0, testNow), core.SeverityHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyShard(tt.rec, testNow).Severity; got != tt.want {
				t.Fatalf("severity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShardStatusJSONUsesSeconds(t *testing.T) {
	st := ShardStatus{Provider: "cloudflare", ShardKey: "s1", Region: "eu", CooldownRemaining: 90*time.Second + 400*time.Millisecond}
	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["cooldown_remaining_seconds"] != float64(90) {
		t.Fatalf("cooldown_remaining_seconds = %v in %s", got["cooldown_remaining_seconds"], raw)
	}
	if _, ok := got["cooldown_remaining"]; ok {
		t.Fatalf("raw duration leaked into JSON: %s", raw)
	}
	if got["shard_key"] != "s1" || got["region"] != "eu" {
		t.Fatalf("plain fields missing: %s", raw)
	}
}

func TestRollupRegions(t *testing.T) {
	shards := []ShardStatus{
		{Provider: "cloudflare", Region: "eu", ShardKey: "1", Severity: core.SeverityCritical},
		{Provider: "cloudflare", Region: "eu", ShardKey: "2", Severity: core.SeverityHealthy},
		{Provider: "cloudflare", Region: "us", ShardKey: "3", Severity: core.SeverityWarning, CooldownRemaining: time.Minute},
		{Provider: "cloudflare", Region: "us", ShardKey: "4", Severity: core.SeverityHealthy},
		{Provider: "cloudflare", Region: "us", ShardKey: "5", Severity: core.SeverityHealthy},
		{Provider: "cloudflare", Region: "ap", ShardKey: "6", Severity: core.SeverityHealthy},
	}

	regions := RollupRegions(shards, 5)
	if len(regions) != 2 {
		t.Fatalf("expected only non-healthy regions, got %+v", regions)
	}
	eu, us := regions[0], regions[1]
	if eu.Region != "eu" || eu.Severity != core.SeverityCritical || eu.CriticalRatio != 0.5 {
		t.Fatalf("unexpected eu rollup: %+v", eu)
	}
	if us.Region != "us" || us.Severity != core.SeverityWarning || us.Cooling != 1 || us.Shards != 3 {
		t.Fatalf("unexpected us rollup: %+v", us)
	}
	if got := eu.DedupKey(); got != "region:cloudflare:eu:critical:2/0/0/1" {
		t.Fatalf("dedup key = %q", got)
	}

	if regions := RollupRegions(shards, 1); len(regions) != 1 || regions[0].Region != "eu" {
		t.Fatalf("cap should keep the most severe region: %+v", regions)
	}
}

type fakeStore struct {
	conns         []core.IntegrationConnection
	shards        []core.ShardHealthRecord
	notifications []core.Notification
}

func (f *fakeStore) ListConnections(_ context.Context, limit int) ([]core.IntegrationConnection, error) {
	if len(f.conns) > limit {
		return f.conns[:limit], nil
	}
	return f.conns, nil
}

func (f *fakeStore) ListShardHealth(context.Context, []string) ([]core.ShardHealthRecord, error) {
	return f.shards, nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n *core.Notification) error {
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeStore) HasUnreadNotification(_ context.Context, q core.NotificationQuery) (bool, error) {
	for _, n := range f.notifications {
		if n.DedupKey == q.DedupKey && !n.CreatedAt.Before(q.Since) {
			return true, nil
		}
	}
	return false, nil
}

func withShard(c core.IntegrationConnection, key, region string) core.IntegrationConnection {
	c.Config = json.RawMessage(fmt.Sprintf(`{"shardKey":%q,"region":%q}`, key, region))
	return c
}

func newTestSweep(store *fakeStore, mutate func(*config.IntegrationSweep)) *Sweep {
	cfg := config.DefaultSweeps().Integrations
	if mutate != nil {
		mutate(&cfg)
	}
	svc := notify.NewService(store, nil, "test", zap.NewNop())
	s := NewSweep(cfg, store, svc, zap.NewNop())
	s.now = func() time.Time { return testNow }
	return s
}

func TestSweepSharesBudgetConnectionsFirst(t *testing.T) {
	var conns []core.IntegrationConnection
	for i := 0; i < 4; i++ {
		c := withShard(conn(fmt.Sprintf("c%d", i)), fmt.Sprintf("s%d", i), "eu")
		c.LastSyncAt = hoursAgo(float64(30 + i))
		conns = append(conns, c)
	}
	store := &fakeStore{
		conns: conns,
		shards: []core.ShardHealthRecord{
			shard("s0", "", "eu", 10, 10, 0, 0, 0, testNow),
			shard("s1", "", "eu", 10, 10, 0, 0, 0, testNow),
			shard("s2", "", "eu", 10, 0, 0, 0, 0, testNow),
			shard("s3", "", "eu", 10, 0, 0, 0, 0, testNow),
		},
	}

	sw := newTestSweep(store, func(c *config.IntegrationSweep) { c.MaxAlerts = 5 })
	sum, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Scanned != 4 || sum.Warning != 4 {
		t.Fatalf("unexpected counts: %+v", sum)
	}
	if sum.AlertsCreated != 5 || sum.SkippedCap != 0 {
		t.Fatalf("expected 4 connection alerts and 1 region alert: %+v", sum)
	}
	last := store.notifications[len(store.notifications)-1]
	if last.Kind != core.KindRegionSaturation || last.EntityID != "cloudflare:eu" {
		t.Fatalf("region alert should come last: %+v", last)
	}
	if store.notifications[0].EntityID != "c3" {
		t.Fatalf("stalest connection should alert first, got %s", store.notifications[0].EntityID)
	}

	// A smaller budget leaves nothing for the region.
	store.notifications = nil
	sw = newTestSweep(store, func(c *config.IntegrationSweep) { c.MaxAlerts = 3 })
	sum, _ = sw.Run(context.Background())
	if sum.AlertsCreated != 3 || sum.SkippedCap != 2 {
		t.Fatalf("budget 3 of 5 candidates: %+v", sum)
	}
	for _, n := range store.notifications {
		if n.Kind != core.KindIntegrationHealth {
			t.Fatalf("connections must win the budget: %+v", n)
		}
	}
}

func TestSweepDedupWithinAndAcrossRuns(t *testing.T) {
	c := conn("dup")
	c.Status = core.ConnectionError
	store := &fakeStore{conns: []core.IntegrationConnection{c, c}}

	sw := newTestSweep(store, nil)
	sum, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.AlertsCreated != 1 || sum.SkippedDuplicate != 1 {
		t.Fatalf("duplicate key in one run should be suppressed: %+v", sum)
	}

	store.notifications[0].CreatedAt = testNow.Add(-time.Hour)
	sum, _ = sw.Run(context.Background())
	if sum.AlertsCreated != 0 || sum.SkippedCooldown != 1 {
		t.Fatalf("same key inside the cooldown should be suppressed: %+v", sum)
	}

	store.notifications[0].CreatedAt = testNow.Add(-7 * time.Hour)
	sum, _ = sw.Run(context.Background())
	if sum.AlertsCreated != 1 {
		t.Fatalf("key outside the cooldown should alert again: %+v", sum)
	}
}
