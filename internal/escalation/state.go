package escalation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// State is derived from the deadlines, never stored.
type State string

const (
	StateOnTime    State = "on_time"
	StateBreached  State = "sla_breached"
	StateEscalated State = "escalated"
)

// checklistKey is where the escalation sub-object lives in the checklist.
const checklistKey = "escalation"

// criticalAfter is how long past escalateAt a task turns critical.
const criticalAfter = 24 * time.Hour

var ErrMalformedChecklist = errors.New("checklist is not a JSON object")

// Deadlines of one task.
type Deadlines struct {
	DueAt      time.Time `json:"due_at"`
	EscalateAt time.Time `json:"escalate_at"`
}

// ComputeDeadlines applies the fallback hours to unset or non-positive task
// values. EscalateAt is never earlier than DueAt.
func ComputeDeadlines(task core.ReviewTask, defaultSLA, defaultEscalate time.Duration) Deadlines {
	sla := defaultSLA
	if task.SLAHours > 0 {
		sla = hours(task.SLAHours)
	}
	esc := defaultEscalate
	if task.EscalateAfterHours > 0 {
		esc = hours(task.EscalateAfterHours)
	}

	d := Deadlines{
		DueAt:      task.CreatedAt.Add(sla),
		EscalateAt: task.CreatedAt.Add(esc),
	}
	if d.EscalateAt.Before(d.DueAt) {
		d.EscalateAt = d.DueAt
	}
	return d
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// StateAt is monotonic in now: once escalated, a later now is escalated too.
func (d Deadlines) StateAt(now time.Time) State {
	switch {
	case now.Before(d.DueAt):
		return StateOnTime
	case now.Before(d.EscalateAt):
		return StateBreached
	}
	return StateEscalated
}

// Severity of an escalated task: critical once it has been escalated for a
// day, warning before that.
func (d Deadlines) Severity(now time.Time) core.Severity {
	switch d.StateAt(now) {
	case StateEscalated:
		if now.Sub(d.EscalateAt) >= criticalAfter {
			return core.SeverityCritical
		}
		return core.SeverityWarning
	case StateBreached:
		return core.SeverityWarning
	}
	return core.SeverityHealthy
}

// emptyChecklist reports whether a checklist holds nothing: no bytes,
// whitespace only, or a JSON null.
func emptyChecklist(checklist json.RawMessage) bool {
	trimmed := bytes.TrimSpace(checklist)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ReadState extracts the escalation sub-object. An empty or null checklist,
// or one without the key, yields the zero state.
func ReadState(checklist json.RawMessage) (core.EscalationState, error) {
	var st core.EscalationState
	if emptyChecklist(checklist) {
		return st, nil
	}
	if !gjson.ValidBytes(checklist) || !gjson.ParseBytes(checklist).IsObject() {
		return st, ErrMalformedChecklist
	}

	sub := gjson.GetBytes(checklist, checklistKey)
	if !sub.Exists() || !sub.IsObject() {
		return st, nil
	}
	if err := json.Unmarshal([]byte(sub.Raw), &st); err != nil {
		return st, fmt.Errorf("failed to decode escalation state: %w", err)
	}
	if st.AlertCount < 0 {
		st.AlertCount = 0
	}
	return st, nil
}

// WriteState stores st under the escalation key, leaving every other
// checklist field untouched.
func WriteState(checklist json.RawMessage, st core.EscalationState) (json.RawMessage, error) {
	if emptyChecklist(checklist) {
		checklist = json.RawMessage(`{}`)
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	out, err := sjson.SetRawBytes(checklist, checklistKey, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to write escalation state: %w", err)
	}
	return out, nil
}

// MergeEscalationState combines a stored state with an update. The count
// never decreases and timestamps never move backwards.
func MergeEscalationState(existing, update core.EscalationState) core.EscalationState {
	merged := existing
	if update.AlertCount > merged.AlertCount {
		merged.AlertCount = update.AlertCount
	}
	merged.LastAlertAt = later(existing.LastAlertAt, update.LastAlertAt)
	merged.LastOpsAlertAt = later(existing.LastOpsAlertAt, update.LastOpsAlertAt)
	return merged
}

func later(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	}
	return a
}
