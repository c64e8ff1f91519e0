package escalation

import (
	"sort"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
)

type SummaryOptions struct {
	DefaultSLA      time.Duration
	DefaultEscalate time.Duration
	DueSoon         time.Duration
	TopOverdue      int
}

type OverdueItem struct {
	TaskID          string    `json:"task_id"`
	EntityType      string    `json:"entity_type"`
	EntityID        string    `json:"entity_id"`
	State           State     `json:"state"`
	DueAt           time.Time `json:"due_at"`
	EscalateAt      time.Time `json:"escalate_at"`
	DueInHours      float64   `json:"due_in_hours"`
	EscalateInHours float64   `json:"escalate_in_hours"`
}

// SLASummary is the dashboard view of pending review work.
type SLASummary struct {
	Pending    int           `json:"pending"`
	OnTime     int           `json:"on_time"`
	Breached   int           `json:"breached"`
	Escalated  int           `json:"escalated"`
	DueSoon    int           `json:"due_soon"`
	NextDueAt  *time.Time    `json:"next_due_at,omitempty"`
	TopOverdue []OverdueItem `json:"top_overdue"`
}

// Summarize computes SLA metrics over pending tasks. It does not modify
// anything.
func Summarize(tasks []core.ReviewTask, now time.Time, opts SummaryOptions) SLASummary {
	var out SLASummary
	var overdue []OverdueItem

	for _, t := range tasks {
		if t.Status != core.ReviewStatusPending {
			continue
		}
		out.Pending++

		d := ComputeDeadlines(t, opts.DefaultSLA, opts.DefaultEscalate)
		state := d.StateAt(now)
		switch state {
		case StateOnTime:
			out.OnTime++
			if d.DueAt.Sub(now) <= opts.DueSoon {
				out.DueSoon++
			}
			if out.NextDueAt == nil || d.DueAt.Before(*out.NextDueAt) {
				due := d.DueAt
				out.NextDueAt = &due
			}
			continue
		case StateBreached:
			out.Breached++
		case StateEscalated:
			out.Escalated++
		}

		overdue = append(overdue, OverdueItem{
			TaskID:          t.ID,
			EntityType:      t.EntityType,
			EntityID:        t.EntityID,
			State:           state,
			DueAt:           d.DueAt,
			EscalateAt:      d.EscalateAt,
			DueInHours:      d.DueAt.Sub(now).Hours(),
			EscalateInHours: d.EscalateAt.Sub(now).Hours(),
		})
	}

	sort.SliceStable(overdue, func(i, j int) bool {
		a, b := minRemaining(overdue[i]), minRemaining(overdue[j])
		if a != b {
			return a < b
		}
		return overdue[i].TaskID < overdue[j].TaskID
	})
	if opts.TopOverdue > 0 && len(overdue) > opts.TopOverdue {
		overdue = overdue[:opts.TopOverdue]
	}
	out.TopOverdue = overdue
	if out.TopOverdue == nil {
		out.TopOverdue = []OverdueItem{}
	}
	return out
}

func minRemaining(it OverdueItem) float64 {
	if it.EscalateInHours < it.DueInHours {
		return it.EscalateInHours
	}
	return it.DueInHours
}
