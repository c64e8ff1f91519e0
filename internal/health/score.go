package health

import (
	"fmt"
	"math"

	"github.com/leozw/portfolio-guardian/internal/core"
)

const (
	weightContent        = 0.20
	weightTraffic        = 0.25
	weightRevenue        = 0.20
	weightSEO            = 0.20
	weightInfrastructure = 0.15

	healthyFloor = 70
	warningFloor = 40

	maxRecommendations = 5
)

// Breakdown holds the five category scores, each in [0,100].
type Breakdown struct {
	Content        int `json:"content"`
	Traffic        int `json:"traffic"`
	Revenue        int `json:"revenue"`
	SEO            int `json:"seo"`
	Infrastructure int `json:"infrastructure"`
}

// ratio returns v/target capped to [0,1].
func ratio(v, target float64) float64 {
	if target <= 0 || v <= 0 || math.IsNaN(v) {
		return 0
	}
	return math.Min(v/target, 1)
}

func clampScore(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}

func contentScore(in core.HealthInputs) int {
	return clampScore(40*ratio(float64(in.PublishedCount), 20) +
		30*ratio(float64(in.ContentTypes), 5) +
		30*ratio(in.AvgWordCount, 1500))
}

func trafficScore(in core.HealthInputs) int {
	return clampScore(60*ratio(float64(in.Traffic.Pageviews), 10000) +
		20*ratio(float64(in.Traffic.Clicks), 500) +
		20*ratio(float64(in.Traffic.Impressions), 10000))
}

func revenueScore(in core.HealthInputs) int {
	if in.Revenue <= 0 {
		return 0
	}
	margin := (in.Revenue - in.Expenses) / in.Revenue
	return clampScore(50*ratio(in.Revenue, 1000) + 50*math.Max(0, math.Min(margin, 1)))
}

// positionPoints gives 30 points for a top-10 average position, falling
// linearly to 0 at position 50.
func positionPoints(pos float64) float64 {
	switch {
	case pos <= 0 || math.IsNaN(pos):
		return 0
	case pos <= 10:
		return 30
	case pos >= 50:
		return 0
	}
	return 30 * (50 - pos) / 40
}

func seoScore(in core.HealthInputs) int {
	var total float64
	if bl := in.LatestBacklinks; bl != nil {
		total += 50*ratio(float64(bl.ReferringDomains), 100) + 20*ratio(float64(bl.Backlinks), 1000)
	}
	total += positionPoints(in.Traffic.AvgPosition)
	return clampScore(total)
}

func infrastructureScore(d core.Domain) int {
	total := 0
	if d.Deployed {
		total += 40
	}
	if d.RepoLinked {
		total += 20
	}
	if d.RenewalDate != nil {
		total += 20
	}
	if d.Niche != "" {
		total += 20
	}
	return total
}

// ComputeBreakdown scores every category independently.
func ComputeBreakdown(in core.HealthInputs) Breakdown {
	return Breakdown{
		Content:        contentScore(in),
		Traffic:        trafficScore(in),
		Revenue:        revenueScore(in),
		SEO:            seoScore(in),
		Infrastructure: infrastructureScore(in.Domain),
	}
}

// Composite is the weighted sum of the breakdown, rounded into [0,100].
func Composite(b Breakdown) int {
	return clampScore(weightContent*float64(b.Content) +
		weightTraffic*float64(b.Traffic) +
		weightRevenue*float64(b.Revenue) +
		weightSEO*float64(b.SEO) +
		weightInfrastructure*float64(b.Infrastructure))
}

// StatusFor maps a composite score to a severity: healthy from 70, warning
// from 40, critical below.
func StatusFor(score int) core.Severity {
	switch {
	case score >= healthyFloor:
		return core.SeverityHealthy
	case score >= warningFloor:
		return core.SeverityWarning
	}
	return core.SeverityCritical
}

type rule struct {
	when func(core.HealthInputs) bool
	text func(core.HealthInputs) string
}

func fixed(s string) func(core.HealthInputs) string {
	return func(core.HealthInputs) string { return s }
}

// Rules per category, in category order. Only the first matching rule of a
// category produces a recommendation.
var recommendationRules = [][]rule{
	{ // content
		{
			when: func(in core.HealthInputs) bool { return in.PublishedCount == 0 },
			text: fixed("Publish your first articles to start building content depth"),
		},
		{
			when: func(in core.HealthInputs) bool { return in.PublishedCount < 20 },
			text: func(in core.HealthInputs) string {
				return fmt.Sprintf("Publish %d more articles to reach 20 published pieces", 20-in.PublishedCount)
			},
		},
		{
			when: func(in core.HealthInputs) bool { return in.ContentTypes < 5 },
			text: func(in core.HealthInputs) string {
				return fmt.Sprintf("Diversify content formats (%d of 5 content types in use)", in.ContentTypes)
			},
		},
		{
			when: func(in core.HealthInputs) bool { return in.AvgWordCount < 1500 },
			text: func(in core.HealthInputs) string {
				return fmt.Sprintf("Expand articles toward 1500 words on average (currently %.0f)", in.AvgWordCount)
			},
		},
	},
	{ // traffic
		{
			when: func(in core.HealthInputs) bool { return in.Traffic.Pageviews == 0 },
			text: fixed("No pageviews in the last 30 days; verify analytics tracking"),
		},
		{
			when: func(in core.HealthInputs) bool { return in.Traffic.Pageviews < 10000 },
			text: func(in core.HealthInputs) string {
				return fmt.Sprintf("Grow traffic: %d pageviews in 30 days against a 10000 target", in.Traffic.Pageviews)
			},
		},
		{
			when: func(in core.HealthInputs) bool { return in.Traffic.Clicks < 500 },
			text: func(in core.HealthInputs) string {
				return fmt.Sprintf("Improve search click-through (%d of 500 clicks)", in.Traffic.Clicks)
			},
		},
	},
	{ // revenue
		{
			when: func(in core.HealthInputs) bool { return in.Revenue <= 0 },
			text: fixed("Add a monetization source; no revenue in the last 30 days"),
		},
		{
			when: func(in core.HealthInputs) bool { return in.Expenses > in.Revenue },
			text: func(in core.HealthInputs) string {
				return fmt.Sprintf("Expenses (%.2f) exceed revenue (%.2f) over 30 days", in.Expenses, in.Revenue)
			},
		},
		{
			when: func(in core.HealthInputs) bool { return in.Revenue < 1000 },
			text: fixed("Grow 30-day revenue toward 1000"),
		},
	},
	{ // seo
		{
			when: func(in core.HealthInputs) bool { return in.LatestBacklinks == nil },
			text: fixed("Start tracking backlinks to measure domain authority"),
		},
		{
			when: func(in core.HealthInputs) bool { return in.LatestBacklinks.ReferringDomains < 100 },
			text: func(in core.HealthInputs) string {
				return fmt.Sprintf("Build referring domains (%d of 100)", in.LatestBacklinks.ReferringDomains)
			},
		},
		{
			when: func(in core.HealthInputs) bool {
				return in.Traffic.AvgPosition <= 0 || in.Traffic.AvgPosition > 10
			},
			text: fixed("Improve average search position into the top 10"),
		},
	},
	{ // infrastructure
		{
			when: func(in core.HealthInputs) bool { return !in.Domain.Deployed },
			text: fixed("Deploy the site"),
		},
		{
			when: func(in core.HealthInputs) bool { return !in.Domain.RepoLinked },
			text: fixed("Link a source repository"),
		},
		{
			when: func(in core.HealthInputs) bool { return in.Domain.RenewalDate == nil },
			text: fixed("Set the domain renewal date"),
		},
		{
			when: func(in core.HealthInputs) bool { return in.Domain.Niche == "" },
			text: fixed("Assign a niche to the domain"),
		},
	},
}

// Recommendations returns at most five suggestions, one per category at most,
// in the order content, traffic, revenue, seo, infrastructure.
func Recommendations(in core.HealthInputs) []string {
	var out []string
	for _, category := range recommendationRules {
		for _, r := range category {
			if r.when(in) {
				out = append(out, r.text(in))
				break
			}
		}
		if len(out) == maxRecommendations {
			break
		}
	}
	return out
}
