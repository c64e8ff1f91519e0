package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sweeps holds the tunables of every sweep. Each sweep constructor receives
// its own section; nothing reads thresholds from package state.
type Sweeps struct {
	Health       HealthSweep
	Monitoring   MonitoringSweep
	Integrations IntegrationSweep
	Review       ReviewSweep
}

type HealthSweep struct {
	Enabled          bool
	Schedule         string
	StaleAfter       time.Duration
	MaxDomains       int
	ProbeTimeout     time.Duration
	ThrottleWindow   time.Duration
	Concurrency      int
	SSLWarningDays   int
	SSLCriticalDays  int
	WhoisEnabled     bool
	WhoisWarningDays int
}

type MonitoringSweep struct {
	Enabled        bool
	Schedule       string
	ThrottleWindow time.Duration
	ProbeTimeout   time.Duration
	ProbeRPS       float64
	Concurrency    int
}

type IntegrationSweep struct {
	Enabled          bool
	Schedule         string
	WarningAfter     time.Duration
	CriticalAfter    time.Duration
	NeverSyncedGrace time.Duration
	MaxConnections   int
	MaxAlerts        int
	TopIssueLimit    int
	TopRegionLimit   int
	Cooldown         time.Duration
	ShardProviders   []string
}

type ReviewSweep struct {
	Enabled         bool
	Schedule        string
	DefaultSLA      time.Duration
	DefaultEscalate time.Duration
	Cooldown        time.Duration
	MaxTasks        int
	MaxAlerts       int
	OpsEnabled      bool
	DueSoon         time.Duration
	TopOverdue      int
}

type intRange struct{ def, min, max int }

type floatRange struct{ def, min, max float64 }

var intRanges = map[string]intRange{
	"sweeps.health.stale_hours":                    {6, 1, 168},
	"sweeps.health.max_domains":                    {50, 1, 500},
	"sweeps.health.probe_timeout_seconds":          {10, 1, 60},
	"sweeps.health.throttle_hours":                 {6, 1, 72},
	"sweeps.health.concurrency":                    {4, 1, 32},
	"sweeps.health.ssl_warning_days":               {14, 1, 90},
	"sweeps.health.ssl_critical_days":              {7, 0, 60},
	"sweeps.health.whois_warning_days":             {30, 1, 365},
	"sweeps.monitoring.throttle_hours":             {24, 1, 168},
	"sweeps.monitoring.probe_timeout_seconds":      {10, 1, 60},
	"sweeps.monitoring.concurrency":                {4, 1, 32},
	"sweeps.integrations.warning_hours":            {24, 1, 720},
	"sweeps.integrations.critical_hours":           {72, 2, 2160},
	"sweeps.integrations.never_synced_grace_hours": {24, 1, 720},
	"sweeps.integrations.max_connections":          {500, 10, 5000},
	"sweeps.integrations.max_alerts":               {10, 1, 100},
	"sweeps.integrations.top_issue_limit":          {10, 1, 100},
	"sweeps.integrations.top_region_limit":         {5, 1, 50},
	"sweeps.integrations.cooldown_hours":           {6, 1, 168},
	"sweeps.review.default_sla_hours":              {24, 1, 720},
	"sweeps.review.default_escalate_hours":         {48, 1, 1440},
	"sweeps.review.cooldown_hours":                 {24, 1, 168},
	"sweeps.review.max_tasks":                      {200, 1, 2000},
	"sweeps.review.max_alerts":                     {20, 1, 200},
	"sweeps.review.due_soon_hours":                 {4, 1, 72},
	"sweeps.review.top_overdue":                    {5, 1, 50},
}

var floatRanges = map[string]floatRange{
	"sweeps.monitoring.probe_rps": {5, 0.1, 100},
}

var sweepDefaults = map[string]interface{}{
	"sweeps.health.enabled":               true,
	"sweeps.health.schedule":              "*/30 * * * *",
	"sweeps.health.whois_enabled":         false,
	"sweeps.monitoring.enabled":           true,
	"sweeps.monitoring.schedule":          "0 * * * *",
	"sweeps.integrations.enabled":         true,
	"sweeps.integrations.schedule":        "*/15 * * * *",
	"sweeps.integrations.shard_providers": "cloudflare",
	"sweeps.review.enabled":               true,
	"sweeps.review.schedule":              "*/10 * * * *",
	"sweeps.review.ops_enabled":           true,
}

func init() {
	for key, r := range intRanges {
		sweepDefaults[key] = r.def
	}
	for key, r := range floatRanges {
		sweepDefaults[key] = r.def
	}
}

// DefaultSweeps returns the sweep settings used when nothing is configured.
func DefaultSweeps() Sweeps {
	v := viper.New()
	for key, value := range sweepDefaults {
		v.SetDefault(key, value)
	}
	return loadSweeps(v)
}

func loadSweeps(v *viper.Viper) Sweeps {
	num := func(key string) int {
		r := intRanges[key]
		return IntInRange(v.GetString(key), r.def, r.min, r.max)
	}
	hours := func(key string) time.Duration {
		return time.Duration(num(key)) * time.Hour
	}
	seconds := func(key string) time.Duration {
		return time.Duration(num(key)) * time.Second
	}
	flag := func(key string) bool {
		return BoolOr(v.GetString(key), sweepDefaults[key].(bool))
	}
	schedule := func(key string) string {
		if s := strings.TrimSpace(v.GetString(key)); s != "" {
			return s
		}
		return sweepDefaults[key].(string)
	}

	s := Sweeps{
		Health: HealthSweep{
			Enabled:          flag("sweeps.health.enabled"),
			Schedule:         schedule("sweeps.health.schedule"),
			StaleAfter:       hours("sweeps.health.stale_hours"),
			MaxDomains:       num("sweeps.health.max_domains"),
			ProbeTimeout:     seconds("sweeps.health.probe_timeout_seconds"),
			ThrottleWindow:   hours("sweeps.health.throttle_hours"),
			Concurrency:      num("sweeps.health.concurrency"),
			SSLWarningDays:   num("sweeps.health.ssl_warning_days"),
			SSLCriticalDays:  num("sweeps.health.ssl_critical_days"),
			WhoisEnabled:     flag("sweeps.health.whois_enabled"),
			WhoisWarningDays: num("sweeps.health.whois_warning_days"),
		},
		Monitoring: MonitoringSweep{
			Enabled:        flag("sweeps.monitoring.enabled"),
			Schedule:       schedule("sweeps.monitoring.schedule"),
			ThrottleWindow: hours("sweeps.monitoring.throttle_hours"),
			ProbeTimeout:   seconds("sweeps.monitoring.probe_timeout_seconds"),
			ProbeRPS: FloatInRange(v.GetString("sweeps.monitoring.probe_rps"),
				floatRanges["sweeps.monitoring.probe_rps"].def,
				floatRanges["sweeps.monitoring.probe_rps"].min,
				floatRanges["sweeps.monitoring.probe_rps"].max),
			Concurrency: num("sweeps.monitoring.concurrency"),
		},
		Integrations: IntegrationSweep{
			Enabled:          flag("sweeps.integrations.enabled"),
			Schedule:         schedule("sweeps.integrations.schedule"),
			WarningAfter:     hours("sweeps.integrations.warning_hours"),
			CriticalAfter:    hours("sweeps.integrations.critical_hours"),
			NeverSyncedGrace: hours("sweeps.integrations.never_synced_grace_hours"),
			MaxConnections:   num("sweeps.integrations.max_connections"),
			MaxAlerts:        num("sweeps.integrations.max_alerts"),
			TopIssueLimit:    num("sweeps.integrations.top_issue_limit"),
			TopRegionLimit:   num("sweeps.integrations.top_region_limit"),
			Cooldown:         hours("sweeps.integrations.cooldown_hours"),
			ShardProviders:   List(v.GetStringSlice("sweeps.integrations.shard_providers")...),
		},
		Review: ReviewSweep{
			Enabled:         flag("sweeps.review.enabled"),
			Schedule:        schedule("sweeps.review.schedule"),
			DefaultSLA:      hours("sweeps.review.default_sla_hours"),
			DefaultEscalate: hours("sweeps.review.default_escalate_hours"),
			Cooldown:        hours("sweeps.review.cooldown_hours"),
			MaxTasks:        num("sweeps.review.max_tasks"),
			MaxAlerts:       num("sweeps.review.max_alerts"),
			OpsEnabled:      flag("sweeps.review.ops_enabled"),
			DueSoon:         hours("sweeps.review.due_soon_hours"),
			TopOverdue:      num("sweeps.review.top_overdue"),
		},
	}

	// A critical threshold below the warning threshold would make warning unreachable.
	if s.Integrations.CriticalAfter < s.Integrations.WarningAfter {
		s.Integrations.CriticalAfter = s.Integrations.WarningAfter
	}
	if s.Review.DefaultEscalate < s.Review.DefaultSLA {
		s.Review.DefaultEscalate = s.Review.DefaultSLA
	}
	if s.Health.SSLCriticalDays > s.Health.SSLWarningDays {
		s.Health.SSLCriticalDays = s.Health.SSLWarningDays
	}
	return s
}
