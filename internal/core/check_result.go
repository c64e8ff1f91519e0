package core

import (
	"time"
)

// ProbeResult is what a network probe reports. Probes never return errors;
// a failed probe has Success=false and Error set.
type ProbeResult struct {
	Target       string    `json:"target"`
	CheckType    string    `json:"check_type"`
	Success      bool      `json:"success"`
	ResponseTime float64   `json:"response_time_ms"`
	Error        string    `json:"error,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`

	SSL   *SSLCheckDetails   `json:"ssl,omitempty"`
	DNS   *DNSCheckDetails   `json:"dns,omitempty"`
	HTTP  *HTTPCheckDetails  `json:"http,omitempty"`
	WHOIS *WHOISCheckDetails `json:"whois,omitempty"`
}

type SSLCheckDetails struct {
	DaysRemaining int       `json:"days_remaining"`
	Trusted       bool      `json:"trusted"`
	Issuer        string    `json:"issuer"`
	Subject       string    `json:"subject"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidTo       time.Time `json:"valid_to"`
	Protocol      string    `json:"protocol"`
}

type DNSCheckDetails struct {
	ARecords []string `json:"a_records"`
	Rcode    string   `json:"rcode"`
	Server   string   `json:"server"`
}

type HTTPCheckDetails struct {
	StatusCode int    `json:"status_code"`
	FinalURL   string `json:"final_url"`
}

type WHOISCheckDetails struct {
	DomainExpiry *time.Time `json:"domain_expiry,omitempty"`
	DaysToExpiry int        `json:"days_to_expiry"`
}
