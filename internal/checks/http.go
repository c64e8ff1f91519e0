package checks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
)

// HTTPChecker issues a HEAD request and expects a 2xx answer.
type HTTPChecker struct {
	client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// Check expects a full URL.
func (h *HTTPChecker) Check(ctx context.Context, target string) *core.ProbeResult {
	result := &core.ProbeResult{
		Target:    target,
		CheckType: TypeHTTP,
		CheckedAt: time.Now().UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		result.Error = fmt.Sprintf("Failed to create request: %v", err)
		return result
	}
	req.Header.Set("User-Agent", "portfolio-guardian/1.0")

	start := time.Now()
	resp, err := h.client.Do(req)
	result.ResponseTime = float64(time.Since(start).Milliseconds())
	if err != nil {
		result.Error = fmt.Sprintf("Request failed: %v", err)
		return result
	}
	defer resp.Body.Close()

	result.HTTP = &core.HTTPCheckDetails{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Error = fmt.Sprintf("Unexpected status code: %d", resp.StatusCode)
		return result
	}

	result.Success = true
	return result
}
