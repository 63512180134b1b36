package proxy

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Proxy is one egress relay and its health record. Address is the unique key
// within a pool.
type Proxy struct {
	Address      string    `json:"address"` // scheme://host:port
	Protocol     string    `json:"protocol"`
	Country      string    `json:"country,omitempty"`
	Anonymity    string    `json:"anonymity,omitempty"`
	Working      bool      `json:"is_working"`
	FailCount    int       `json:"fail_count"`
	SuccessCount int       `json:"success_count"`
	LastChecked  time.Time `json:"last_checked,omitempty"`
}

// URL parses the proxy address for use in an http.Transport
func (p *Proxy) URL() (*url.URL, error) {
	u, err := url.Parse(p.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", p.Address, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy address %q: missing scheme or host", p.Address)
	}
	return u, nil
}

// Candidate is an unvalidated proxy offered by a source
type Candidate struct {
	Address   string
	Protocol  string
	Country   string
	Anonymity string
}

// normalizeAddress builds the canonical scheme://host:port form, defaulting
// the scheme to http.
func normalizeAddress(raw, protocol string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("empty proxy address")
	}

	if !strings.Contains(raw, "://") {
		if protocol == "" {
			protocol = "http"
		}
		raw = protocol + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid proxy address %q: %w", raw, err)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return "", "", fmt.Errorf("proxy address %q must include host and port", raw)
	}
	return u.Scheme + "://" + u.Host, u.Scheme, nil
}
