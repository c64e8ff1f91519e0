package core

import (
	"time"
)

// Notification kinds emitted by the sweeps.
const (
	KindSSLExpiry          = "ssl_expiry"
	KindDNSFailure         = "dns_failure"
	KindDomainExpiry       = "domain_expiry"
	KindTrafficDrop        = "traffic_drop"
	KindRevenueAnomaly     = "revenue_anomaly"
	KindSiteDown           = "site_down"
	KindBacklinkLoss       = "backlink_loss"
	KindThinContent        = "thin_content"
	KindDuplicateContent   = "duplicate_content"
	KindIndexingWeakness   = "indexing_weakness"
	KindVisibilityCollapse = "visibility_collapse"
	KindIntegrationHealth  = "integration_health"
	KindRegionSaturation   = "region_saturation"
	KindReviewEscalation   = "review_escalation"
)

// Notification is an in-app notification. EntityType/EntityID identify the
// target; DedupKey, when set, is what cross-run throttling matches on.
type Notification struct {
	ID         string                 `json:"id"`
	Kind       string                 `json:"kind"`
	Severity   Severity               `json:"severity"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	EntityType string                 `json:"entity_type,omitempty"`
	EntityID   string                 `json:"entity_id,omitempty"`
	ActionURL  string                 `json:"action_url,omitempty"`
	DedupKey   string                 `json:"dedup_key,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NotificationQuery selects unread notifications for throttling. Empty
// fields are not filtered on.
type NotificationQuery struct {
	Kind     string
	Severity *Severity
	EntityID string
	DedupKey string
	Since    time.Time
}

// OpsAlert is a message for the external operations channel.
type OpsAlert struct {
	Source   string                 `json:"source"`
	Severity Severity               `json:"severity"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

type OpsResult struct {
	Delivered  bool   `json:"delivered"`
	Reason     string `json:"reason,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}
