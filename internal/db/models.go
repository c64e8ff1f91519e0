package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
)

var ErrNotFound = errors.New("not found")

// JSONB maps a jsonb column to a generic object.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	return json.Unmarshal(raw, j)
}

// notificationRow is the stored form of core.Notification; severity is kept
// as text so the table stays readable.
type notificationRow struct {
	ID         string     `db:"id"`
	Kind       string     `db:"kind"`
	Severity   string     `db:"severity"`
	Title      string     `db:"title"`
	Message    string     `db:"message"`
	EntityType string     `db:"entity_type"`
	EntityID   string     `db:"entity_id"`
	ActionURL  string     `db:"action_url"`
	DedupKey   string     `db:"dedup_key"`
	Metadata   JSONB      `db:"metadata"`
	ReadAt     *time.Time `db:"read_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

func newNotificationRow(n *core.Notification) notificationRow {
	return notificationRow{
		ID:         n.ID,
		Kind:       n.Kind,
		Severity:   n.Severity.String(),
		Title:      n.Title,
		Message:    n.Message,
		EntityType: n.EntityType,
		EntityID:   n.EntityID,
		ActionURL:  n.ActionURL,
		DedupKey:   n.DedupKey,
		Metadata:   JSONB(n.Metadata),
		CreatedAt:  n.CreatedAt,
	}
}

func (r notificationRow) toCore() core.Notification {
	sev, _ := core.ParseSeverity(r.Severity)
	return core.Notification{
		ID:         r.ID,
		Kind:       r.Kind,
		Severity:   sev,
		Title:      r.Title,
		Message:    r.Message,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		ActionURL:  r.ActionURL,
		DedupKey:   r.DedupKey,
		Metadata:   map[string]interface{}(r.Metadata),
		CreatedAt:  r.CreatedAt,
	}
}

type contentStats struct {
	Published    int     `db:"published"`
	ContentTypes int     `db:"content_types"`
	AvgWordCount float64 `db:"avg_word_count"`
}
