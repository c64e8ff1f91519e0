package metrics

import (
	"context"
	"fmt"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"
)

// StartRemoteWrite pushes the registry to Mimir every flush interval until
// ctx is done. It returns immediately when no Mimir URL is configured.
func (c *Collector) StartRemoteWrite(ctx context.Context, logger *zap.Logger) {
	if c.client == nil {
		return
	}
	interval := c.config.FlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeToMimir(ctx); err != nil {
				logger.Warn("Remote write failed", zap.Error(err))
			}
		}
	}
}

func (c *Collector) writeToMimir(ctx context.Context) error {
	mfs, err := c.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	series := metricsToSeries(mfs, time.Now())
	batchSize := c.config.BatchSize
	if batchSize <= 0 {
		batchSize = len(series)
	}

	for i := 0; i < len(series); i += batchSize {
		end := i + batchSize
		if end > len(series) {
			end = len(series)
		}
		if err := c.client.Push(ctx, series[i:end]); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}
	return nil
}

func metricsToSeries(mfs []*dto.MetricFamily, now time.Time) []prompb.TimeSeries {
	ts := now.UnixNano() / int64(time.Millisecond)
	var series []prompb.TimeSeries

	sample := func(name string, base []prompb.Label, value float64, extra ...prompb.Label) {
		labels := make([]prompb.Label, 0, len(base)+len(extra)+1)
		labels = append(labels, prompb.Label{Name: "__name__", Value: name})
		labels = append(labels, base...)
		labels = append(labels, extra...)
		series = append(series, prompb.TimeSeries{
			Labels:  labels,
			Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
		})
	}

	for _, mf := range mfs {
		name := mf.GetName()
		for _, m := range mf.Metric {
			labels := make([]prompb.Label, 0, len(m.Label))
			for _, l := range m.Label {
				labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
			}

			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				sample(name, labels, m.Counter.GetValue())
			case dto.MetricType_GAUGE:
				sample(name, labels, m.Gauge.GetValue())
			case dto.MetricType_HISTOGRAM:
				hist := m.Histogram
				for _, bucket := range hist.Bucket {
					sample(name+"_bucket", labels, float64(bucket.GetCumulativeCount()),
						prompb.Label{Name: "le", Value: fmt.Sprintf("%g", bucket.GetUpperBound())})
				}
				sample(name+"_bucket", labels, float64(hist.GetSampleCount()), prompb.Label{Name: "le", Value: "+Inf"})
				sample(name+"_sum", labels, hist.GetSampleSum())
				sample(name+"_count", labels, float64(hist.GetSampleCount()))
			}
		}
	}
	return series
}
