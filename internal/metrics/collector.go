package metrics

import (
	"time"

	"github.com/leozw/portfolio-guardian/internal/alerting"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	config   *config.MimirConfig
	gatherer prometheus.Gatherer
	client   *MimirClient

	// Sweep metrics
	sweepRuns        *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	sweepLastSuccess *prometheus.GaugeVec
	sweepScanned     *prometheus.GaugeVec
	sweepErrors      *prometheus.CounterVec
	sweepConflicts   *prometheus.CounterVec

	// Alert metrics
	alertsTotal *prometheus.CounterVec
	opsAlerts   *prometheus.CounterVec

	// Domain metrics
	domainHealthScore  *prometheus.GaugeVec
	sslDaysUntilExpiry *prometheus.GaugeVec
}

// NewCollector registers every metric on reg. A nil reg uses a fresh
// registry, which keeps tests independent of the default one.
func NewCollector(cfg config.MimirConfig, reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	c := &Collector{
		config:   &cfg,
		gatherer: reg,

		sweepRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_sweep_runs_total",
				Help: "Total number of sweep runs by result",
			},
			[]string{"sweep", "status"},
		),

		sweepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guardian_sweep_duration_seconds",
				Help:    "Duration of sweep runs in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"sweep"},
		),

		sweepLastSuccess: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guardian_sweep_last_success_timestamp_seconds",
				Help: "Unix time of the last sweep run that completed without a fetch error",
			},
			[]string{"sweep"},
		),

		sweepScanned: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guardian_sweep_scanned_entities",
				Help: "Entities evaluated by the last sweep run, by severity",
			},
			[]string{"sweep", "severity"},
		),

		sweepErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_sweep_errors_total",
				Help: "Per-entity errors counted by sweep runs",
			},
			[]string{"sweep"},
		),

		sweepConflicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_sweep_conflicts_total",
				Help: "State writes skipped because the entity changed during the run",
			},
			[]string{"sweep"},
		),

		alertsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_alerts_total",
				Help: "Alert decisions by outcome",
			},
			[]string{"sweep", "outcome"},
		),

		opsAlerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_ops_alerts_total",
				Help: "Operations channel deliveries by result",
			},
			[]string{"sweep", "result"},
		),

		domainHealthScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guardian_domain_health_score",
				Help: "Composite health score of a domain (0-100)",
			},
			[]string{"domain"},
		),

		sslDaysUntilExpiry: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guardian_ssl_cert_days_until_expiry",
				Help: "Days until the served certificate expires",
			},
			[]string{"domain"},
		),
	}

	if cfg.URL != "" {
		c.client = NewMimirClient(cfg)
	}
	return c
}

// Gatherer exposes the collector's registry to the /metrics handler.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// ObserveSweep records one finished run. runErr is the batch fetch error
// returned by the sweep, if any.
func (c *Collector) ObserveSweep(summary *core.Summary, elapsed time.Duration, runErr error) {
	if summary == nil {
		return
	}
	name := summary.Sweep

	status := "success"
	switch {
	case summary.Disabled:
		status = "disabled"
	case runErr != nil:
		status = "error"
	}
	c.sweepRuns.WithLabelValues(name, status).Inc()
	if summary.Disabled {
		return
	}

	c.sweepDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if runErr == nil {
		c.sweepLastSuccess.WithLabelValues(name).Set(float64(summary.FinishedAt.Unix()))
	}

	c.sweepScanned.WithLabelValues(name, core.SeverityHealthy.String()).Set(float64(summary.Healthy))
	c.sweepScanned.WithLabelValues(name, core.SeverityWarning.String()).Set(float64(summary.Warning))
	c.sweepScanned.WithLabelValues(name, core.SeverityCritical.String()).Set(float64(summary.Critical))

	c.sweepErrors.WithLabelValues(name).Add(float64(summary.Errors))
	c.sweepConflicts.WithLabelValues(name).Add(float64(summary.Conflicts))

	c.alertsTotal.WithLabelValues(name, string(alerting.OutcomeAlerted)).Add(float64(summary.AlertsCreated))
	c.alertsTotal.WithLabelValues(name, string(alerting.OutcomeCooldown)).Add(float64(summary.SkippedCooldown))
	c.alertsTotal.WithLabelValues(name, string(alerting.OutcomeCap)).Add(float64(summary.SkippedCap))
	c.alertsTotal.WithLabelValues(name, string(alerting.OutcomeDuplicate)).Add(float64(summary.SkippedDuplicate))

	c.opsAlerts.WithLabelValues(name, "delivered").Add(float64(summary.OpsDelivered))
	c.opsAlerts.WithLabelValues(name, "failed").Add(float64(summary.OpsFailed))
}

func (c *Collector) ObserveDomainHealth(domain string, score int) {
	c.domainHealthScore.WithLabelValues(domain).Set(float64(score))
}

func (c *Collector) ObserveCertificateDays(domain string, days int) {
	c.sslDaysUntilExpiry.WithLabelValues(domain).Set(float64(days))
}
