package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/slack-go/slack"
)

// SlackChannel posts ops alerts to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
	channel    string
	client     *http.Client
}

func NewSlackChannel(webhookURL, channel string, timeout time.Duration) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		channel:    channel,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, alert core.OpsAlert) core.OpsResult {
	msg := &slack.WebhookMessage{
		Channel: s.channel,
		Text:    fmt.Sprintf("[%s] %s", alert.Severity, alert.Title),
		Attachments: []slack.Attachment{{
			Color:  severityColor(alert.Severity),
			Title:  alert.Title,
			Text:   alert.Message,
			Fields: detailFields(alert.Details),
			Footer: alert.Source,
			Ts:     json.Number(strconv.FormatInt(time.Now().Unix(), 10)),
		}},
	}

	err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, msg)
	if err == nil {
		return core.OpsResult{Delivered: true, StatusCode: http.StatusOK}
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return core.OpsResult{Reason: "http_status", StatusCode: statusErr.Code}
	}
	return core.OpsResult{Reason: err.Error()}
}

func severityColor(sev core.Severity) string {
	switch sev {
	case core.SeverityCritical:
		return "danger"
	case core.SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}

func detailFields(details map[string]interface{}) []slack.AttachmentField {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]slack.AttachmentField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slack.AttachmentField{
			Title: k,
			Value: fmt.Sprint(details[k]),
			Short: true,
		})
	}
	return fields
}
