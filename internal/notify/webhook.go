package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/core"
)

const (
	SignatureHeader = "X-Guardian-Signature"
	TimestampHeader = "X-Guardian-Timestamp"
)

// Sign returns the hex HMAC-SHA256 of "timestamp.method.path.body" under
// secret.
func Sign(secret []byte, timestamp int64, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write([]byte(method))
	mac.Write([]byte{'.'})
	mac.Write([]byte(path))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value produced for the same inputs.
func Verify(secret []byte, timestamp int64, method, path string, body []byte, header string) bool {
	want := "sha256=" + Sign(secret, timestamp, method, path, body)
	return hmac.Equal([]byte(want), []byte(header))
}

// WebhookChannel posts ops alerts as JSON to a generic endpoint. Requests are
// signed when a secret is configured.
type WebhookChannel struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

func NewWebhookChannel(endpoint, secret string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		url:    endpoint,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, alert core.OpsAlert) core.OpsResult {
	body, err := json.Marshal(alert)
	if err != nil {
		return core.OpsResult{Reason: fmt.Sprintf("encode: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return core.OpsResult{Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	if len(w.secret) > 0 {
		ts := w.now().Unix()
		path := "/"
		if u, err := url.Parse(w.url); err == nil && u.EscapedPath() != "" {
			path = u.EscapedPath()
		}
		req.Header.Set(TimestampHeader, strconv.FormatInt(ts, 10))
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.secret, ts, http.MethodPost, path, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return core.OpsResult{Reason: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.OpsResult{Reason: "http_status", StatusCode: resp.StatusCode}
	}
	return core.OpsResult{Delivered: true, StatusCode: resp.StatusCode}
}

// NewOpsChannel picks the configured ops channel. Slack wins over the generic
// webhook; nil means none is configured.
func NewOpsChannel(cfg config.OpsConfig) OpsChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	switch {
	case cfg.SlackWebhookURL != "":
		return NewSlackChannel(cfg.SlackWebhookURL, cfg.SlackChannel, timeout)
	case cfg.WebhookURL != "":
		return NewWebhookChannel(cfg.WebhookURL, cfg.WebhookSecret, timeout)
	}
	return nil
}
