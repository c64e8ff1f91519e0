package core

import (
	"time"
)

type Domain struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	Deployed        bool       `json:"deployed" db:"deployed"`
	Deleted         bool       `json:"deleted" db:"deleted"`
	RepoLinked      bool       `json:"repo_linked" db:"repo_linked"`
	Niche           string     `json:"niche" db:"niche"`
	RenewalDate     *time.Time `json:"renewal_date,omitempty" db:"renewal_date"`
	HealthScore     *int       `json:"health_score,omitempty" db:"health_score"`
	HealthUpdatedAt *time.Time `json:"health_updated_at,omitempty" db:"health_updated_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// AgeDays is the number of whole days since the domain was created.
func (d Domain) AgeDays(now time.Time) int {
	if d.CreatedAt.IsZero() || now.Before(d.CreatedAt) {
		return 0
	}
	return int(now.Sub(d.CreatedAt).Hours() / 24)
}

// MetricSnapshot is one day of collected metrics for a domain. The sweeps only
// aggregate ranges of these rows.
type MetricSnapshot struct {
	DomainID         string    `json:"domain_id" db:"domain_id"`
	Date             time.Time `json:"date" db:"date"`
	Pageviews        int64     `json:"pageviews" db:"pageviews"`
	Clicks           int64     `json:"clicks" db:"clicks"`
	Impressions      int64     `json:"impressions" db:"impressions"`
	AvgPosition      float64   `json:"avg_position" db:"avg_position"`
	Revenue          float64   `json:"revenue" db:"revenue"`
	ReferringDomains int64     `json:"referring_domains" db:"referring_domains"`
	Backlinks        int64     `json:"backlinks" db:"backlinks"`
}

// TrafficTotals sums snapshot traffic over a window.
type TrafficTotals struct {
	Pageviews   int64   `json:"pageviews" db:"pageviews"`
	Clicks      int64   `json:"clicks" db:"clicks"`
	Impressions int64   `json:"impressions" db:"impressions"`
	AvgPosition float64 `json:"avg_position" db:"avg_position"`
}

type BacklinkSnapshot struct {
	Date             time.Time `json:"date" db:"date"`
	ReferringDomains int64     `json:"referring_domains" db:"referring_domains"`
	Backlinks        int64     `json:"backlinks" db:"backlinks"`
}

// ContentPage is a published article as seen by the search-quality checks.
type ContentPage struct {
	ID          string `json:"id" db:"id"`
	ContentType string `json:"content_type" db:"content_type"`
	WordCount   int    `json:"word_count" db:"word_count"`
	Fingerprint string `json:"fingerprint" db:"fingerprint"`
	Interactive bool   `json:"interactive" db:"interactive"`
}

// HealthInputs is everything the composite scorer reads for one domain.
type HealthInputs struct {
	Domain          Domain            `json:"domain"`
	PublishedCount  int               `json:"published_count"`
	ContentTypes    int               `json:"content_types"`
	AvgWordCount    float64           `json:"avg_word_count"`
	Traffic         TrafficTotals     `json:"traffic"`
	Revenue         float64           `json:"revenue"`
	Expenses        float64           `json:"expenses"`
	LatestBacklinks *BacklinkSnapshot `json:"latest_backlinks,omitempty"`
}
