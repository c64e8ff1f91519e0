package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
)

func TestObserveSweep(t *testing.T) {
	c := NewCollector(config.MimirConfig{}, nil)

	summary := &core.Summary{
		Sweep:           "review",
		FinishedAt:      time.Unix(1700000000, 0),
		Healthy:         4,
		Warning:         2,
		Critical:        1,
		AlertsCreated:   3,
		SkippedCooldown: 2,
		SkippedCap:      1,
		OpsDelivered:    2,
		OpsFailed:       1,
		Conflicts:       1,
		Errors:          1,
	}
	c.ObserveSweep(summary, 2*time.Second, nil)
	c.ObserveSweep(summary, time.Second, errors.New("list failed"))

	if got := testutil.ToFloat64(c.sweepRuns.WithLabelValues("review", "success")); got != 1 {
		t.Errorf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(c.sweepRuns.WithLabelValues("review", "error")); got != 1 {
		t.Errorf("error runs = %v", got)
	}
	if got := testutil.ToFloat64(c.alertsTotal.WithLabelValues("review", "alerted")); got != 6 {
		t.Errorf("alerted = %v", got)
	}
	if got := testutil.ToFloat64(c.alertsTotal.WithLabelValues("review", "cap_skipped")); got != 2 {
		t.Errorf("cap skipped = %v", got)
	}
	if got := testutil.ToFloat64(c.opsAlerts.WithLabelValues("review", "failed")); got != 2 {
		t.Errorf("ops failed = %v", got)
	}
	if got := testutil.ToFloat64(c.sweepScanned.WithLabelValues("review", "warning")); got != 2 {
		t.Errorf("scanned warning = %v", got)
	}
	if got := testutil.ToFloat64(c.sweepLastSuccess.WithLabelValues("review")); got != 1700000000 {
		t.Errorf("last success = %v", got)
	}
	if got := testutil.CollectAndCount(c.sweepDuration); got != 1 {
		t.Errorf("duration series = %d", got)
	}
}

func TestObserveSweepDisabled(t *testing.T) {
	c := NewCollector(config.MimirConfig{}, nil)
	c.ObserveSweep(&core.Summary{Sweep: "health", Disabled: true}, 0, nil)

	if got := testutil.ToFloat64(c.sweepRuns.WithLabelValues("health", "disabled")); got != 1 {
		t.Errorf("disabled runs = %v", got)
	}
	if got := testutil.CollectAndCount(c.alertsTotal); got != 0 {
		t.Errorf("alert series = %d, want none", got)
	}
	c.ObserveSweep(nil, 0, nil)
}

func TestDomainGauges(t *testing.T) {
	c := NewCollector(config.MimirConfig{}, prometheus.NewRegistry())
	c.ObserveDomainHealth("example.com", 82)
	c.ObserveCertificateDays("example.com", 9)

	if got := testutil.ToFloat64(c.domainHealthScore.WithLabelValues("example.com")); got != 82 {
		t.Errorf("health = %v", got)
	}
	if got := testutil.ToFloat64(c.sslDaysUntilExpiry.WithLabelValues("example.com")); got != 9 {
		t.Errorf("cert days = %v", got)
	}
}

func TestRemoteWritePushesRegistry(t *testing.T) {
	var (
		gotTenant string
		gotAuth   string
		req       prompb.WriteRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/push" || r.Header.Get("Content-Encoding") != "snappy" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		gotTenant = r.Header.Get("X-Scope-OrgID")
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		data, err := snappy.Decode(nil, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := req.Unmarshal(data); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewCollector(config.MimirConfig{
		URL:          srv.URL,
		TenantHeader: "X-Scope-OrgID",
		Tenant:       "portfolio",
		AuthToken:    "secret",
		BatchSize:    1000,
	}, nil)
	c.ObserveDomainHealth("example.com", 70)

	if err := c.writeToMimir(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotTenant != "portfolio" || gotAuth != "Bearer secret" {
		t.Fatalf("tenant = %q auth = %q", gotTenant, gotAuth)
	}

	found := false
	for _, ts := range req.Timeseries {
		var name, domain string
		for _, l := range ts.Labels {
			switch l.Name {
			case "__name__":
				name = l.Value
			case "domain":
				domain = l.Value
			}
		}
		if name == "guardian_domain_health_score" && domain == "example.com" && ts.Samples[0].Value == 70 {
			found = true
		}
	}
	if !found {
		t.Fatalf("health score series missing from %d series", len(req.Timeseries))
	}
}

func TestRemoteWriteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewMimirClient(config.MimirConfig{URL: srv.URL})
	err := client.Push(context.Background(), []prompb.TimeSeries{{
		Labels:  []prompb.Label{{Name: "__name__", Value: "up"}},
		Samples: []prompb.Sample{{Value: 1, Timestamp: 1}},
	}})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if err := client.Push(context.Background(), nil); err != nil {
		t.Fatalf("empty push: %v", err)
	}
}

func TestMetricsToSeriesExpandsHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "probe_seconds", Buckets: []float64{1, 5}})
	reg.MustRegister(h)
	h.Observe(2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]int{}
	for _, ts := range metricsToSeries(mfs, time.Unix(0, 0)) {
		names[ts.Labels[0].Value]++
	}
	// Two configured buckets plus +Inf.
	if names["probe_seconds_bucket"] != 3 || names["probe_seconds_sum"] != 1 || names["probe_seconds_count"] != 1 {
		t.Fatalf("series = %v", names)
	}
}
