package core

import (
	"encoding/json"
	"testing"
)

func TestMaxSeverityIsOrderIndependent(t *testing.T) {
	orders := [][]Severity{
		{SeverityWarning, SeverityCritical, SeverityHealthy},
		{SeverityCritical, SeverityWarning},
		{SeverityHealthy, SeverityHealthy, SeverityCritical},
	}
	for _, levels := range orders {
		if got := MaxSeverity(levels...); got != SeverityCritical {
			t.Fatalf("MaxSeverity(%v) = %v, want critical", levels, got)
		}
	}
	if got := MaxSeverity(); got != SeverityHealthy {
		t.Fatalf("MaxSeverity() = %v, want healthy", got)
	}
}

func TestSignalRaiseNeverDowngrades(t *testing.T) {
	var s Signal
	s.Raise(SeverityCritical, "connection_error")
	s.Raise(SeverityWarning, "last_sync_failed")
	if s.Severity != SeverityCritical {
		t.Fatalf("severity = %v, want critical", s.Severity)
	}
	if len(s.Reasons) != 2 || s.Reasons[0] != "connection_error" {
		t.Fatalf("unexpected reasons: %v", s.Reasons)
	}
}

func TestSeverityJSON(t *testing.T) {
	data, err := json.Marshal(Signal{Severity: SeverityWarning, Reasons: []string{"x"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Signal
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Severity != SeverityWarning {
		t.Fatalf("round trip severity = %v", back.Severity)
	}
	if _, err := ParseSeverity("fatal"); err == nil {
		t.Fatal("expected error for unknown severity")
	}
}

func TestShardHintsKey(t *testing.T) {
	c := IntegrationConnection{Config: json.RawMessage(`{"shard":"cf-7","region":"eu"}`)}
	h := c.Hints()
	if h.Key() != "cf-7" || h.Region != "eu" {
		t.Fatalf("unexpected hints: %+v", h)
	}
	c.Config = json.RawMessage(`{"shardKey":"cf-1","shard":"cf-7"}`)
	if got := c.Hints().Key(); got != "cf-1" {
		t.Fatalf("shardKey should win, got %q", got)
	}
	c.Config = json.RawMessage(`not json`)
	if got := c.Hints().Key(); got != "" {
		t.Fatalf("malformed config should give empty key, got %q", got)
	}
	c.Config = json.RawMessage(`{"shardKey":"cf-1","region":42}`)
	if h := c.Hints(); h != (ShardHints{}) {
		t.Fatalf("mistyped config should give empty hints, got %+v", h)
	}
}
