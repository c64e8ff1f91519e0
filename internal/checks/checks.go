package checks

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/leozw/portfolio-guardian/internal/core"
)

const (
	TypeSSL   = "ssl"
	TypeDNS   = "dns"
	TypeHTTP  = "http"
	TypeWHOIS = "whois"
)

var ErrNoCertificates = errors.New("no peer certificates")

// Checker probes one target. Failures are reported in the result, never as
// an error, so a sweep can turn them into signals.
type Checker interface {
	Check(ctx context.Context, target string) *core.ProbeResult
}

// Hostname strips scheme, path and port from a domain or URL.
func Hostname(target string) string {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "://") {
		if u, err := url.Parse(target); err == nil {
			return u.Hostname()
		}
	}
	target = strings.Split(target, "/")[0]
	if host, _, err := net.SplitHostPort(target); err == nil {
		return host
	}
	return target
}
