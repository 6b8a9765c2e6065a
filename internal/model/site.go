package model

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxDomainLen is the longest hostname accepted (RFC 1035).
const MaxDomainLen = 253

// Site is a diagnosed domain. Long-lived state (agent health, result history)
// hangs off the site, not off individual runs.
type Site struct {
	ID        uuid.UUID `json:"site_id"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

// RootURL is the canonical landing URL used when a finding has no page.
func (s Site) RootURL() string {
	return "https://" + s.Domain + "/"
}

// privateIPRanges is the set of CIDR blocks considered non-public.
var privateIPRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // link-local
		"::1/128",
		"fc00::/7",  // unique-local IPv6
		"fe80::/10", // link-local IPv6
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil {
			privateIPRanges = append(privateIPRanges, network)
		}
	}
}

// NormalizeDomain reduces user input ("https://WWW.Example.com:443/path") to
// the bare lowercase host ("example.com") and validates it as a public
// hostname. The result is what idempotency keys and site rows are built from.
func NormalizeDomain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("domain is required")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid domain: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("domain must be a host or http(s) URL (got scheme %q)", u.Scheme)
	}
	if u.User != nil {
		return "", fmt.Errorf("domain must not include credentials")
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	if err := ValidateDomain(host); err != nil {
		return "", err
	}
	return host, nil
}

// ValidateDomain checks that host is a publicly routable DNS name.
func ValidateDomain(host string) error {
	if host == "" {
		return fmt.Errorf("domain must include a host")
	}
	if len(host) > MaxDomainLen {
		return fmt.Errorf("domain exceeds maximum length of %d characters", MaxDomainLen)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("domain must not point to localhost")
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, r := range privateIPRanges {
			if r.Contains(ip) {
				return fmt.Errorf("domain must not point to a private or loopback address")
			}
		}
		return nil
	}
	if !strings.Contains(host, ".") {
		return fmt.Errorf("domain %q must contain a dot", host)
	}
	for _, label := range strings.Split(host, ".") {
		if err := validateLabel(label); err != nil {
			return fmt.Errorf("domain %q: %w", host, err)
		}
	}
	return nil
}

func validateLabel(label string) error {
	if len(label) == 0 || len(label) > 63 {
		return fmt.Errorf("label length must be 1-63 characters")
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Errorf("label %q must not start or end with a hyphen", label)
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return fmt.Errorf("label %q contains invalid character %q", label, c)
		}
	}
	return nil
}
