package core

import (
	"sync"
	"time"
)

// Summary is the counts-only outcome of one sweep run.
type Summary struct {
	Sweep      string    `json:"sweep"`
	RunID      string    `json:"run_id"`
	Disabled   bool      `json:"disabled,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Scanned  int `json:"scanned"`
	Healthy  int `json:"healthy"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`

	AlertsCreated    int `json:"alerts_created"`
	SkippedCooldown  int `json:"skipped_cooldown"`
	SkippedCap       int `json:"skipped_cap"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	OpsDelivered     int `json:"ops_delivered"`
	OpsFailed        int `json:"ops_failed"`
	Conflicts        int `json:"conflicts"`
	Errors           int `json:"errors"`
}

// CountSeverity bumps the matching severity bucket.
func (s *Summary) CountSeverity(sev Severity) {
	switch sev {
	case SeverityCritical:
		s.Critical++
	case SeverityWarning:
		s.Warning++
	default:
		s.Healthy++
	}
}

// Tally guards a Summary shared by concurrent workers.
type Tally struct {
	mu sync.Mutex
	s  *Summary
}

func NewTally(s *Summary) *Tally {
	return &Tally{s: s}
}

// Update runs fn with exclusive access to the summary.
func (t *Tally) Update(fn func(s *Summary)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.s)
}
