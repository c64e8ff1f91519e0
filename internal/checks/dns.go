package checks

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/miekg/dns"
)

const fallbackResolver = "8.8.8.8:53"

// DNSChecker resolves A records against a single resolver.
type DNSChecker struct {
	server string
	client *dns.Client
}

// NewDNSChecker queries server ("host:port"). An empty server means the
// first nameserver from /etc/resolv.conf, or Google DNS when none is found.
func NewDNSChecker(server string, timeout time.Duration) *DNSChecker {
	if server == "" {
		server = systemResolver()
	}
	return &DNSChecker{
		server: server,
		client: &dns.Client{Timeout: timeout},
	}
}

func systemResolver() string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return fallbackResolver
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

func (d *DNSChecker) Check(ctx context.Context, target string) *core.ProbeResult {
	result := &core.ProbeResult{
		Target:    target,
		CheckType: TypeDNS,
		CheckedAt: time.Now().UTC(),
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(Hostname(target)), dns.TypeA)

	start := time.Now()
	r, _, err := d.client.ExchangeContext(ctx, m, d.server)
	result.ResponseTime = float64(time.Since(start).Milliseconds())

	details := &core.DNSCheckDetails{Server: d.server}
	result.DNS = details

	if err != nil {
		result.Error = fmt.Sprintf("DNS query failed: %v", err)
		return result
	}

	details.Rcode = dns.RcodeToString[r.Rcode]
	if r.Rcode != dns.RcodeSuccess {
		result.Error = fmt.Sprintf("DNS query failed with code: %s", details.Rcode)
		return result
	}

	for _, ans := range r.Answer {
		if a, ok := ans.(*dns.A); ok {
			details.ARecords = append(details.ARecords, a.A.String())
		}
	}
	if len(details.ARecords) == 0 {
		result.Error = "No A records found"
		return result
	}

	result.Success = true
	return result
}
