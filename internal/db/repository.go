package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/lib/pq"
)

type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	maxOpen := cfg.MaxConnections
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen / 2
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Domains

func (r *Repository) ListStaleDomains(ctx context.Context, staleBefore time.Time, limit int) ([]core.Domain, error) {
	domains := []core.Domain{}
	query := `
		SELECT * FROM domains
		WHERE deleted = FALSE
		AND (health_updated_at IS NULL OR health_updated_at < $1)
		ORDER BY health_updated_at ASC NULLS FIRST, id ASC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &domains, query, staleBefore, limit)
	return domains, err
}

func (r *Repository) ListDeployedDomains(ctx context.Context) ([]core.Domain, error) {
	domains := []core.Domain{}
	query := `
		SELECT * FROM domains
		WHERE deleted = FALSE AND deployed = TRUE
		ORDER BY name ASC`

	err := r.db.SelectContext(ctx, &domains, query)
	return domains, err
}

func (r *Repository) GetDomain(ctx context.Context, id string) (*core.Domain, error) {
	var d core.Domain
	err := r.db.GetContext(ctx, &d, `SELECT * FROM domains WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("domain %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) UpdateDomainHealth(ctx context.Context, domainID string, score int, at time.Time) error {
	query := `UPDATE domains SET health_score = $2, health_updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, domainID, score, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("domain %s: %w", domainID, ErrNotFound)
	}
	return nil
}

// GetHealthInputs gathers everything the scorer reads. Traffic, revenue and
// expenses cover [since, now).
func (r *Repository) GetHealthInputs(ctx context.Context, domainID string, since time.Time) (*core.HealthInputs, error) {
	d, err := r.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()

	var stats contentStats
	statsQuery := `
		SELECT COUNT(*) AS published,
		       COUNT(DISTINCT content_type) AS content_types,
		       COALESCE(AVG(word_count), 0) AS avg_word_count
		FROM content_pages
		WHERE domain_id = $1 AND status = 'published'`
	if err := r.db.GetContext(ctx, &stats, statsQuery, domainID); err != nil {
		return nil, fmt.Errorf("failed to load content stats: %w", err)
	}

	traffic, err := r.SumTraffic(ctx, domainID, since, now)
	if err != nil {
		return nil, err
	}
	revenue, err := r.SumRevenue(ctx, domainID, since, now)
	if err != nil {
		return nil, err
	}

	var expenses float64
	expenseQuery := `
		SELECT COALESCE(SUM(amount), 0) FROM expenses
		WHERE domain_id = $1 AND incurred_at >= $2 AND incurred_at < $3`
	if err := r.db.GetContext(ctx, &expenses, expenseQuery, domainID, since, now); err != nil {
		return nil, fmt.Errorf("failed to sum expenses: %w", err)
	}

	in := &core.HealthInputs{
		Domain:         *d,
		PublishedCount: stats.Published,
		ContentTypes:   stats.ContentTypes,
		AvgWordCount:   stats.AvgWordCount,
		Traffic:        traffic,
		Revenue:        revenue,
		Expenses:       expenses,
	}

	snaps, err := r.LatestBacklinkSnapshots(ctx, domainID, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) > 0 {
		in.LatestBacklinks = &snaps[0]
	}
	return in, nil
}

// Metric snapshots

func (r *Repository) SumTraffic(ctx context.Context, domainID string, from, to time.Time) (core.TrafficTotals, error) {
	var t core.TrafficTotals
	query := `
		SELECT COALESCE(SUM(pageviews), 0) AS pageviews,
		       COALESCE(SUM(clicks), 0) AS clicks,
		       COALESCE(SUM(impressions), 0) AS impressions,
		       COALESCE(AVG(NULLIF(avg_position, 0)), 0) AS avg_position
		FROM metric_snapshots
		WHERE domain_id = $1 AND date >= $2 AND date < $3`

	if err := r.db.GetContext(ctx, &t, query, domainID, from, to); err != nil {
		return t, fmt.Errorf("failed to sum traffic: %w", err)
	}
	return t, nil
}

func (r *Repository) SumRevenue(ctx context.Context, domainID string, from, to time.Time) (float64, error) {
	var total float64
	query := `
		SELECT COALESCE(SUM(revenue), 0) FROM metric_snapshots
		WHERE domain_id = $1 AND date >= $2 AND date < $3`

	if err := r.db.GetContext(ctx, &total, query, domainID, from, to); err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return total, nil
}

// LatestBacklinkSnapshots returns up to n days that carry backlink data,
// newest first.
func (r *Repository) LatestBacklinkSnapshots(ctx context.Context, domainID string, n int) ([]core.BacklinkSnapshot, error) {
	snaps := []core.BacklinkSnapshot{}
	query := `
		SELECT date, referring_domains, backlinks FROM metric_snapshots
		WHERE domain_id = $1 AND (referring_domains > 0 OR backlinks > 0)
		ORDER BY date DESC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &snaps, query, domainID, n); err != nil {
		return nil, fmt.Errorf("failed to load backlink snapshots: %w", err)
	}
	return snaps, nil
}

func (r *Repository) ListPublishedPages(ctx context.Context, domainID string) ([]core.ContentPage, error) {
	pages := []core.ContentPage{}
	query := `
		SELECT id, content_type, word_count, fingerprint, interactive
		FROM content_pages
		WHERE domain_id = $1 AND status = 'published'
		ORDER BY id`

	err := r.db.SelectContext(ctx, &pages, query, domainID)
	return pages, err
}

// Integrations

func (r *Repository) ListConnections(ctx context.Context, limit int) ([]core.IntegrationConnection, error) {
	conns := []core.IntegrationConnection{}
	query := `
		SELECT id, user_id, domain_id, provider, category, status, has_credential,
		       last_sync_at, last_sync_status, created_at,
		       COALESCE(config, '{}'::jsonb) AS config
		FROM integration_connections
		ORDER BY created_at ASC, id ASC
		LIMIT $1`

	err := r.db.SelectContext(ctx, &conns, query, limit)
	return conns, err
}

func (r *Repository) ListShardHealth(ctx context.Context, providers []string) ([]core.ShardHealthRecord, error) {
	records := []core.ShardHealthRecord{}
	if len(providers) == 0 {
		return records, nil
	}
	query := `
		SELECT * FROM shard_health
		WHERE provider = ANY($1)
		ORDER BY provider, region, shard_key, updated_at DESC`

	err := r.db.SelectContext(ctx, &records, query, pq.Array(providers))
	return records, err
}

// Review tasks

func (r *Repository) ListPendingReviewTasks(ctx context.Context, limit int) ([]core.ReviewTask, error) {
	tasks := []core.ReviewTask{}
	query := `
		SELECT id, entity_type, entity_id, status, created_at, sla_hours,
		       escalate_after_hours, COALESCE(checklist, '{}'::jsonb) AS checklist
		FROM review_tasks
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT $1`

	err := r.db.SelectContext(ctx, &tasks, query, limit)
	return tasks, err
}

func (r *Repository) UpdateChecklistIfPending(ctx context.Context, taskID string, checklist json.RawMessage) (bool, error) {
	query := `
		UPDATE review_tasks SET checklist = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	res, err := r.db.ExecContext(ctx, query, taskID, []byte(checklist))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Notifications

func (r *Repository) CreateNotification(ctx context.Context, n *core.Notification) error {
	query := `
		INSERT INTO notifications (
			id, kind, severity, title, message, entity_type, entity_id,
			action_url, dedup_key, metadata, created_at
		) VALUES (
			:id, :kind, :severity, :title, :message, :entity_type, :entity_id,
			:action_url, :dedup_key, :metadata, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, newNotificationRow(n))
	return err
}

func (r *Repository) HasUnreadNotification(ctx context.Context, q core.NotificationQuery) (bool, error) {
	query, args := unreadQuery(q)
	var found bool
	if err := r.db.GetContext(ctx, &found, query, args...); err != nil {
		return false, fmt.Errorf("failed to query notifications: %w", err)
	}
	return found, nil
}

func (r *Repository) ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]core.Notification, error) {
	rows := []notificationRow{}
	query := `SELECT * FROM notifications`
	if unreadOnly {
		query += ` WHERE read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, err
	}
	out := make([]core.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCore())
	}
	return out, nil
}

// unreadQuery builds the existence check behind the alert throttle. Empty
// query fields are not filtered on.
func unreadQuery(q core.NotificationQuery) (string, []interface{}) {
	conds := []string{"read_at IS NULL"}
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !q.Since.IsZero() {
		add("created_at >= $%d", q.Since)
	}
	if q.Kind != "" {
		add("kind = $%d", q.Kind)
	}
	if q.Severity != nil {
		add("severity = $%d", q.Severity.String())
	}
	if q.EntityID != "" {
		add("entity_id = $%d", q.EntityID)
	}
	if q.DedupKey != "" {
		add("dedup_key = $%d", q.DedupKey)
	}

	return "SELECT EXISTS (SELECT 1 FROM notifications WHERE " + strings.Join(conds, " AND ") + ")", args
}
