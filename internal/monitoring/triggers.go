package monitoring

import (
	"fmt"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
)

const day = 24 * time.Hour

// Thresholds used by the triggers.
const (
	trafficNoiseFloor   = 10
	trafficCriticalDrop = 50.0
	trafficWarningDrop  = 30.0

	revenueBaselineFloor = 1.0
	revenueWarningDrop   = 40.0

	backlinkPriorFloor  = 5
	backlinkWarningDrop = 10.0

	thinMinPages     = 4
	thinWordLimit    = 500
	thinWarningShare = 0.35

	duplicateMinArticles = 2

	indexingMinAgeDays     = 21
	indexingMinPages       = 3
	indexingMaxImpressions = 20

	visibilityPriorFloor   = 1000
	visibilityCollapseRate = 0.10
)

// PctDelta returns the percentage change from previous to current. It is 0
// when both are 0 and undefined (ok=false) when only previous is 0.
func PctDelta(current, previous float64) (float64, bool) {
	if previous == 0 {
		if current == 0 {
			return 0, true
		}
		return 0, false
	}
	return (current - previous) / previous * 100, true
}

// Finding is one alert-worthy result of a trigger for one domain.
type Finding struct {
	Kind     string
	Severity core.Severity
	Reasons  []string
	Title    string
	Message  string
	Metadata map[string]interface{}
}

// EvaluateTrafficDrop compares the trailing 7-day pageviews to the 7 days
// before.
func EvaluateTrafficDrop(domain string, recent, prior int64) *Finding {
	if prior <= trafficNoiseFloor {
		return nil
	}
	delta, ok := PctDelta(float64(recent), float64(prior))
	if !ok {
		return nil
	}
	drop := -delta

	var sev core.Severity
	switch {
	case drop >= trafficCriticalDrop:
		sev = core.SeverityCritical
	case drop >= trafficWarningDrop:
		sev = core.SeverityWarning
	default:
		return nil
	}
	return &Finding{
		Kind:     core.KindTrafficDrop,
		Severity: sev,
		Reasons:  []string{"pageviews_drop"},
		Title:    fmt.Sprintf("Traffic dropped %.0f%% on %s", drop, domain),
		Message:  fmt.Sprintf("Pageviews fell from %d to %d week over week.", prior, recent),
		Metadata: map[string]interface{}{"recent": recent, "prior": prior, "drop_pct": drop},
	}
}

// EvaluateRevenueAnomaly compares 7-day revenue to seven days of the 30-day
// average.
func EvaluateRevenueAnomaly(domain string, last7, last30 float64) *Finding {
	baseline := last30 / 30 * 7
	if baseline <= revenueBaselineFloor {
		return nil
	}
	delta, _ := PctDelta(last7, baseline)
	if -delta < revenueWarningDrop {
		return nil
	}
	return &Finding{
		Kind:     core.KindRevenueAnomaly,
		Severity: core.SeverityWarning,
		Reasons:  []string{"revenue_below_baseline"},
		Title:    fmt.Sprintf("Revenue %.0f%% below baseline on %s", -delta, domain),
		Message:  fmt.Sprintf("Last 7 days earned %.2f against an expected %.2f.", last7, baseline),
		Metadata: map[string]interface{}{"last7": last7, "baseline": baseline, "drop_pct": -delta},
	}
}

// EvaluateSiteHealth turns a HEAD probe into a finding.
func EvaluateSiteHealth(domain string, res *core.ProbeResult) *Finding {
	if res.Success {
		return nil
	}
	reason := "unreachable"
	meta := map[string]interface{}{"error": res.Error, "url": res.Target}
	if res.HTTP != nil {
		reason = "http_status"
		meta["status_code"] = res.HTTP.StatusCode
	}
	return &Finding{
		Kind:     core.KindSiteDown,
		Severity: core.SeverityCritical,
		Reasons:  []string{reason},
		Title:    fmt.Sprintf("%s is not responding", domain),
		Message:  res.Error,
		Metadata: meta,
	}
}

// EvaluateBacklinkLoss compares the two most recent snapshots, newest first.
func EvaluateBacklinkLoss(domain string, snaps []core.BacklinkSnapshot) *Finding {
	if len(snaps) < 2 {
		return nil
	}
	latest, prior := snaps[0], snaps[1]
	if prior.ReferringDomains <= backlinkPriorFloor {
		return nil
	}
	delta, _ := PctDelta(float64(latest.ReferringDomains), float64(prior.ReferringDomains))
	if -delta < backlinkWarningDrop {
		return nil
	}
	return &Finding{
		Kind:     core.KindBacklinkLoss,
		Severity: core.SeverityWarning,
		Reasons:  []string{"referring_domains_drop"},
		Title:    fmt.Sprintf("%s lost %.0f%% of referring domains", domain, -delta),
		Message: fmt.Sprintf("Referring domains went from %d to %d between %s and %s.",
			prior.ReferringDomains, latest.ReferringDomains,
			prior.Date.Format("2006-01-02"), latest.Date.Format("2006-01-02")),
		Metadata: map[string]interface{}{
			"latest": latest.ReferringDomains,
			"prior":  prior.ReferringDomains,
		},
	}
}

// QualityInputs feeds the search-quality guardrails for one domain.
type QualityInputs struct {
	Domain            core.Domain
	Pages             []core.ContentPage
	ImpressionsRecent int64 // last 30 days
	ImpressionsPrior  int64 // 30 to 60 days ago
	Now               time.Time
}

// EvaluateSearchQuality runs the four guardrails together.
func EvaluateSearchQuality(in QualityInputs) []Finding {
	var out []Finding
	name := in.Domain.Name

	var longForm, thin int
	groups := make(map[string]int)
	for _, p := range in.Pages {
		if !p.Interactive && p.WordCount > 0 {
			longForm++
			if p.WordCount < thinWordLimit {
				thin++
			}
		}
		if p.Fingerprint != "" {
			groups[p.Fingerprint]++
		}
	}

	if longForm >= thinMinPages && float64(thin)/float64(longForm) >= thinWarningShare {
		share := float64(thin) / float64(longForm)
		out = append(out, Finding{
			Kind:     core.KindThinContent,
			Severity: core.SeverityWarning,
			Reasons:  []string{"thin_content"},
			Title:    fmt.Sprintf("%.0f%% of articles on %s are thin", share*100, name),
			Message:  fmt.Sprintf("%d of %d long-form articles have fewer than %d words.", thin, longForm, thinWordLimit),
			Metadata: map[string]interface{}{"thin": thin, "long_form": longForm},
		})
	}

	var dupArticles, dupGroups int
	for _, n := range groups {
		if n >= 2 {
			dupGroups++
			dupArticles += n
		}
	}
	if dupArticles >= duplicateMinArticles {
		out = append(out, Finding{
			Kind:     core.KindDuplicateContent,
			Severity: core.SeverityWarning,
			Reasons:  []string{"duplicate_fingerprints"},
			Title:    fmt.Sprintf("Duplicate content detected on %s", name),
			Message:  fmt.Sprintf("%d articles share content across %d groups.", dupArticles, dupGroups),
			Metadata: map[string]interface{}{"duplicate_articles": dupArticles, "duplicate_groups": dupGroups},
		})
	}

	if in.Domain.AgeDays(in.Now) >= indexingMinAgeDays && len(in.Pages) >= indexingMinPages &&
		in.ImpressionsRecent <= indexingMaxImpressions {
		out = append(out, Finding{
			Kind:     core.KindIndexingWeakness,
			Severity: core.SeverityWarning,
			Reasons:  []string{"low_impressions"},
			Title:    fmt.Sprintf("%s is barely visible in search", name),
			Message: fmt.Sprintf("%d published pages earned %d impressions in 30 days.",
				len(in.Pages), in.ImpressionsRecent),
			Metadata: map[string]interface{}{"impressions": in.ImpressionsRecent, "pages": len(in.Pages)},
		})
	}

	if in.ImpressionsPrior >= visibilityPriorFloor &&
		float64(in.ImpressionsRecent) <= float64(in.ImpressionsPrior)*visibilityCollapseRate {
		out = append(out, Finding{
			Kind:     core.KindVisibilityCollapse,
			Severity: core.SeverityCritical,
			Reasons:  []string{"impressions_collapse"},
			Title:    fmt.Sprintf("Search visibility collapsed on %s", name),
			Message: fmt.Sprintf("Impressions fell from %d to %d; check for a manual action or de-indexing.",
				in.ImpressionsPrior, in.ImpressionsRecent),
			Metadata: map[string]interface{}{"recent": in.ImpressionsRecent, "prior": in.ImpressionsPrior},
		})
	}

	return out
}
