package scrape

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so the visited set catches duplicates.
// It lowercases the scheme and host, removes default ports and fragments,
// strips a trailing slash from non-root paths, and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// URLHost returns the lowercased host of a URL, without a default port.
func URLHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return host
}

// DomainAllowed reports whether host falls inside the allowed set. An empty
// set allows everything. A domain matches itself and any subdomain.
func DomainAllowed(host string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
