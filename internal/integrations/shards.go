package integrations

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
)

// Shard saturation thresholds.
const (
	shardCriticalInstability = 0.5
	shardWarningInstability  = 0.2
	shardCriticalPenalty     = 80
	shardWarningPenalty      = 40
	shardCriticalCooldown    = 30 * time.Minute

	regionCriticalShareOfCritical = 0.5
	regionCriticalShareDegraded   = 0.75
)

// ShardStatus is the saturation judgement for one provider shard.
type ShardStatus struct {
	Provider          string        `json:"provider"`
	ShardKey          string        `json:"shard_key"`
	Region            string        `json:"region"`
	AccountID         string        `json:"account_id,omitempty"`
	Severity          core.Severity `json:"severity"`
	Instability       float64       `json:"instability"`
	PenaltyScore      float64       `json:"penalty_score"`
	CooldownRemaining time.Duration `json:"-"`
	Connections       int           `json:"connections"`
}

func (s ShardStatus) Cooling() bool { return s.CooldownRemaining > 0 }

// MarshalJSON reports the remaining cooldown in whole seconds.
func (s ShardStatus) MarshalJSON() ([]byte, error) {
	type plain ShardStatus
	return json.Marshal(struct {
		plain
		CooldownRemainingSeconds int64 `json:"cooldown_remaining_seconds"`
	}{plain(s), int64(s.CooldownRemaining / time.Second)})
}

// RegionRollup aggregates shard judgements for one provider region.
type RegionRollup struct {
	Provider      string        `json:"provider"`
	Region        string        `json:"region"`
	Severity      core.Severity `json:"severity"`
	Shards        int           `json:"shards"`
	Cooling       int           `json:"cooling"`
	Warning       int           `json:"warning"`
	Critical      int           `json:"critical"`
	CriticalRatio float64       `json:"critical_ratio"`
	DegradedRatio float64       `json:"degraded_ratio"`
}

// DedupKey identifies the rollup by region, severity and shard tallies, so a
// change in any tally alerts again.
func (r RegionRollup) DedupKey() string {
	return fmt.Sprintf("region:%s:%s:%s:%d/%d/%d/%d",
		r.Provider, r.Region, r.Severity, r.Shards, r.Cooling, r.Warning, r.Critical)
}

// Instability is the share of rate-limited and failed calls.
func Instability(rec core.ShardHealthRecord) float64 {
	bad := rec.RateLimitedCount + rec.FailureCount
	total := rec.SuccessCount + bad
	if total <= 0 {
		return 0
	}
	return float64(bad) / float64(total)
}

// MatchShard picks the record for a connection: the record of the same shard
// and account when there is one, otherwise the most recently updated record
// of the shard.
func MatchShard(provider string, hints core.ShardHints, records []core.ShardHealthRecord) *core.ShardHealthRecord {
	key := hints.Key()
	if key == "" {
		return nil
	}
	var latest *core.ShardHealthRecord
	for i := range records {
		rec := &records[i]
		if !strings.EqualFold(rec.Provider, provider) || rec.ShardKey != key {
			continue
		}
		if hints.AccountID != "" && rec.AccountID == hints.AccountID {
			return rec
		}
		if latest == nil || rec.UpdatedAt.After(latest.UpdatedAt) {
			latest = rec
		}
	}
	return latest
}

// ClassifyShard judges one shard record at now.
func ClassifyShard(rec core.ShardHealthRecord, now time.Time) ShardStatus {
	st := ShardStatus{
		Provider:     rec.Provider,
		ShardKey:     rec.ShardKey,
		Region:       rec.Region,
		AccountID:    rec.AccountID,
		Instability:  Instability(rec),
		PenaltyScore: rec.PenaltyScore,
	}
	if rec.CooldownUntil != nil && rec.CooldownUntil.After(now) {
		st.CooldownRemaining = rec.CooldownUntil.Sub(now)
	}

	switch {
	case st.Instability >= shardCriticalInstability,
		st.PenaltyScore >= shardCriticalPenalty,
		st.CooldownRemaining >= shardCriticalCooldown:
		st.Severity = core.SeverityCritical
	case st.Instability >= shardWarningInstability,
		st.PenaltyScore >= shardWarningPenalty,
		st.CooldownRemaining > 0:
		st.Severity = core.SeverityWarning
	}
	return st
}

// ShardStatuses joins shard-aware connections to their shard records. Each
// shard appears once, with the number of connections routed through it.
func ShardStatuses(conns []core.IntegrationConnection, records []core.ShardHealthRecord, providers []string, now time.Time) []ShardStatus {
	aware := make(map[string]bool, len(providers))
	for _, p := range providers {
		aware[strings.ToLower(p)] = true
	}

	index := make(map[string]int)
	var out []ShardStatus
	for _, c := range conns {
		provider := strings.ToLower(c.Provider)
		if !aware[provider] || c.Status == core.ConnectionDisabled {
			continue
		}
		hints := c.Hints()
		rec := MatchShard(provider, hints, records)
		if rec == nil {
			continue
		}

		st := ClassifyShard(*rec, now)
		st.Provider = provider
		if hints.Region != "" {
			st.Region = hints.Region
		}
		if st.Region == "" {
			st.Region = "unknown"
		}

		id := provider + "|" + st.Region + "|" + st.ShardKey
		if i, ok := index[id]; ok {
			out[i].Connections++
			continue
		}
		st.Connections = 1
		index[id] = len(out)
		out = append(out, st)
	}
	return out
}

// RollupRegions groups shards per provider region and returns only the
// non-healthy regions, most severe first, capped at limit.
func RollupRegions(shards []ShardStatus, limit int) []RegionRollup {
	byRegion := make(map[string]*RegionRollup)
	var order []string
	for _, s := range shards {
		id := s.Provider + "|" + s.Region
		r, ok := byRegion[id]
		if !ok {
			r = &RegionRollup{Provider: s.Provider, Region: s.Region}
			byRegion[id] = r
			order = append(order, id)
		}
		r.Shards++
		if s.Cooling() {
			r.Cooling++
		}
		switch s.Severity {
		case core.SeverityCritical:
			r.Critical++
		case core.SeverityWarning:
			r.Warning++
		}
	}

	var out []RegionRollup
	for _, id := range order {
		r := byRegion[id]
		r.CriticalRatio = float64(r.Critical) / float64(r.Shards)
		r.DegradedRatio = float64(r.Warning+r.Critical) / float64(r.Shards)

		switch {
		case r.Critical > 0 && r.CriticalRatio >= regionCriticalShareOfCritical,
			r.DegradedRatio >= regionCriticalShareDegraded:
			r.Severity = core.SeverityCritical
		case r.Cooling > 0 || r.Warning > 0 || r.Critical > 0:
			r.Severity = core.SeverityWarning
		default:
			continue
		}
		out = append(out, *r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		if out[i].DegradedRatio != out[j].DegradedRatio {
			return out[i].DegradedRatio > out[j].DegradedRatio
		}
		return out[i].Provider+out[i].Region < out[j].Provider+out[j].Region
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
