package core

import (
	"encoding/json"
	"time"
)

const ReviewStatusPending = "pending"

type ReviewTask struct {
	ID                 string          `json:"id" db:"id"`
	EntityType         string          `json:"entity_type" db:"entity_type"`
	EntityID           string          `json:"entity_id" db:"entity_id"`
	Status             string          `json:"status" db:"status"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	SLAHours           float64         `json:"sla_hours" db:"sla_hours"`
	EscalateAfterHours float64         `json:"escalate_after_hours" db:"escalate_after_hours"`
	Checklist          json.RawMessage `json:"checklist,omitempty" db:"checklist"`
}

// EscalationState lives inside the task checklist under the "escalation" key.
// AlertCount never decreases and LastAlertAt only moves forward.
type EscalationState struct {
	AlertCount     int        `json:"alertCount"`
	LastAlertAt    *time.Time `json:"lastAlertAt,omitempty"`
	LastOpsAlertAt *time.Time `json:"lastOpsAlertAt,omitempty"`
}
