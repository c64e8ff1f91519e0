package checks

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
)

// SSLChecker reads the peer certificate of a TLS endpoint. The handshake does
// not verify the chain so that expired or self-signed certificates still
// report their dates; trust is evaluated afterwards and reported separately.
type SSLChecker struct {
	timeout time.Duration
	roots   *x509.CertPool
	now     func() time.Time
}

func NewSSLChecker(timeout time.Duration) *SSLChecker {
	return &SSLChecker{timeout: timeout, now: time.Now}
}

// WithRoots replaces the system roots used to decide Trusted.
func (s *SSLChecker) WithRoots(roots *x509.CertPool) *SSLChecker {
	s.roots = roots
	return s
}

// Check accepts a hostname, host:port or URL. Port 443 is assumed.
func (s *SSLChecker) Check(ctx context.Context, target string) *core.ProbeResult {
	result := &core.ProbeResult{
		Target:    target,
		CheckType: TypeSSL,
		CheckedAt: s.now().UTC(),
	}

	hostname := Hostname(target)
	addr := target
	if _, _, err := net.SplitHostPort(target); err != nil {
		addr = net.JoinHostPort(hostname, "443")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.timeout},
		Config: &tls.Config{
			ServerName:         hostname,
			InsecureSkipVerify: true, // chain is verified below
		},
	}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	result.ResponseTime = float64(time.Since(start).Milliseconds())
	if err != nil {
		result.Error = fmt.Sprintf("handshake failed: %v", err)
		return result
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	certs := state.PeerCertificates
	if len(certs) == 0 {
		result.Error = ErrNoCertificates.Error()
		return result
	}

	cert := certs[0]
	now := s.now()
	details := &core.SSLCheckDetails{
		DaysRemaining: int(cert.NotAfter.Sub(now).Hours() / 24),
		Issuer:        cert.Issuer.String(),
		Subject:       cert.Subject.String(),
		ValidFrom:     cert.NotBefore,
		ValidTo:       cert.NotAfter,
		Protocol:      tls.VersionName(state.Version),
	}

	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}
	_, verr := cert.Verify(x509.VerifyOptions{
		DNSName:       hostname,
		Roots:         s.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
	})
	details.Trusted = verr == nil

	result.SSL = details
	result.Success = true
	return result
}
