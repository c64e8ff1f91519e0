package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/likexian/whois"
)

var expiryPrefixes = []string{
	"registry expiry date:",
	"registrar registration expiration date:",
	"expiry date:",
	"expiration date:",
	"expires on:",
	"expires:",
	"expiry:",
	"paid-till:",
}

var expiryLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.0Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
}

// WhoisChecker reads the registration expiry date from WHOIS.
type WhoisChecker struct {
	lookup func(domain string) (string, error)
	now    func() time.Time
}

func NewWhoisChecker(timeout time.Duration) *WhoisChecker {
	client := whois.NewClient().SetTimeout(timeout)
	return &WhoisChecker{
		lookup: func(domain string) (string, error) { return client.Whois(domain) },
		now:    time.Now,
	}
}

func (w *WhoisChecker) Check(ctx context.Context, target string) *core.ProbeResult {
	result := &core.ProbeResult{
		Target:    target,
		CheckType: TypeWHOIS,
		CheckedAt: w.now().UTC(),
	}

	type answer struct {
		raw string
		err error
	}
	done := make(chan answer, 1)

	start := time.Now()
	go func() {
		raw, err := w.lookup(Hostname(target))
		done <- answer{raw, err}
	}()

	var ans answer
	select {
	case ans = <-done:
	case <-ctx.Done():
		ans.err = ctx.Err()
	}
	result.ResponseTime = float64(time.Since(start).Milliseconds())

	if ans.err != nil {
		result.Error = fmt.Sprintf("WHOIS lookup failed: %v", ans.err)
		return result
	}

	expiry := ExtractExpiryDate(ans.raw)
	if expiry.IsZero() {
		result.Error = "Could not extract expiry date from WHOIS data"
		return result
	}

	result.WHOIS = &core.WHOISCheckDetails{
		DomainExpiry: &expiry,
		DaysToExpiry: int(expiry.Sub(w.now()).Hours() / 24),
	}
	result.Success = true
	return result
}

// ExtractExpiryDate finds the first parseable expiry line in a WHOIS answer.
func ExtractExpiryDate(raw string) time.Time {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		for _, prefix := range expiryPrefixes {
			if !strings.HasPrefix(lower, prefix) {
				continue
			}
			value := strings.TrimSpace(line[len(prefix):])
			for _, layout := range expiryLayouts {
				if t, err := time.Parse(layout, value); err == nil {
					return t.UTC()
				}
			}
		}
	}
	return time.Time{}
}
