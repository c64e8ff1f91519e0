package integrations

import (
	"time"

	"github.com/leozw/portfolio-guardian/internal/alerting"
	"github.com/leozw/portfolio-guardian/internal/core"
)

// Reason codes attached to connection signals.
const (
	ReasonMissingCredential = "missing_credential"
	ReasonConnectionError   = "connection_error"
	ReasonLastSyncFailed    = "last_sync_failed"
	ReasonSyncStale         = "sync_stale"
	ReasonNeverSynced       = "never_synced"
)

type Thresholds struct {
	WarningAfter     time.Duration
	CriticalAfter    time.Duration
	NeverSyncedGrace time.Duration
}

// Assessment is the judgement for one connection.
type Assessment struct {
	Connection core.IntegrationConnection `json:"connection"`
	Signal     core.Signal                `json:"signal"`
	// SyncAge is the time since the last sync, or since creation when the
	// connection never synced.
	SyncAge     time.Duration `json:"sync_age"`
	NeverSynced bool          `json:"never_synced"`
}

func (a Assessment) RankSeverity() core.Severity { return a.Signal.Severity }
func (a Assessment) RankOverdue() float64        { return a.SyncAge.Hours() }
func (a Assessment) RankID() string              { return a.Connection.ID }

// Assess evaluates one connection. Every rule only ever raises the severity,
// so rule order does not change the outcome.
func Assess(conn core.IntegrationConnection, now time.Time, th Thresholds) Assessment {
	var sig core.Signal
	disabled := conn.Status == core.ConnectionDisabled

	if !conn.HasCredential && !disabled {
		sig.Raise(core.SeverityWarning, ReasonMissingCredential)
	}
	if conn.Status == core.ConnectionError {
		sig.Raise(core.SeverityCritical, ReasonConnectionError)
	}
	if conn.LastSyncStatus == core.SyncFailed && !disabled {
		sig.Raise(core.SeverityWarning, ReasonLastSyncFailed)
	}

	a := Assessment{Connection: conn}
	if conn.LastSyncAt != nil {
		a.SyncAge = nonNegative(now.Sub(*conn.LastSyncAt))
		if !disabled {
			switch {
			case a.SyncAge >= th.CriticalAfter:
				sig.Raise(core.SeverityCritical, ReasonSyncStale)
			case a.SyncAge >= th.WarningAfter:
				sig.Raise(core.SeverityWarning, ReasonSyncStale)
			}
		}
	} else {
		a.NeverSynced = true
		a.SyncAge = nonNegative(now.Sub(conn.CreatedAt))
		if !disabled && a.SyncAge > th.NeverSyncedGrace {
			sig.Raise(core.SeverityWarning, ReasonNeverSynced)
		}
	}

	hours := a.SyncAge.Hours()
	sig.AgeHours = &hours
	a.Signal = sig
	return a
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// TopIssues keeps the non-healthy assessments, ranks them by severity then
// staleness, and caps the result at limit.
func TopIssues(all []Assessment, limit int) []Assessment {
	var issues []Assessment
	for _, a := range all {
		if !a.Signal.Healthy() {
			issues = append(issues, a)
		}
	}
	alerting.Rank(issues)
	return alerting.Top(issues, limit)
}
