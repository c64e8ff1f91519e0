package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/snappy"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/prometheus/prometheus/prompb"
)

// MimirClient pushes series over the Prometheus remote write protocol.
type MimirClient struct {
	url          string
	tenantHeader string
	tenant       string
	authToken    string
	client       *http.Client
}

func NewMimirClient(cfg config.MimirConfig) *MimirClient {
	header := cfg.TenantHeader
	if header == "" {
		header = "X-Scope-OrgID"
	}
	return &MimirClient{
		url:          cfg.URL,
		tenantHeader: header,
		tenant:       cfg.Tenant,
		authToken:    cfg.AuthToken,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (m *MimirClient) Push(ctx context.Context, timeseries []prompb.TimeSeries) error {
	if len(timeseries) == 0 {
		return nil
	}
	req := &prompb.WriteRequest{
		Timeseries: timeseries,
	}

	data, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url+"/api/v1/push", bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if m.tenant != "" {
		httpReq.Header.Set(m.tenantHeader, m.tenant)
	}
	if m.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.authToken)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("remote write failed with status %d", resp.StatusCode)
	}

	return nil
}
