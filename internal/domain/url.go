package domain

import (
	"errors"
	"net/netip"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned for input that cannot be turned into an
// http(s) URL with a host.
var ErrInvalidURL = errors.New("invalid url")

const maxURLLength = 8192

// NormalizeURL returns the canonical form used as the reputation key:
//   - "https://" is prepended when no scheme is given
//   - scheme and host are lower-cased, default ports and fragments dropped
//   - an empty path becomes "/"
//
// Examples:
//   - "Example.COM" -> "https://example.com/"
//   - "http://example.com:80/a?b=1#top" -> "http://example.com/a?b=1"
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxURLLength {
		return "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" || strings.ContainsAny(host, " \t") {
		return "", ErrInvalidURL
	}

	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}

	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// ExtractDomain returns the lower-cased hostname of a URL without port.
// Input without a scheme is treated like NormalizeURL does.
func ExtractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// IsIPHost reports whether the host is an IPv4 or IPv6 literal.
func IsIPHost(host string) bool {
	_, err := netip.ParseAddr(strings.Trim(host, "[]"))
	return err == nil
}

// ParentDomain drops the left-most label: "a.b.example.com" -> "b.example.com".
// Returns "" when host has two labels or fewer.
func ParentDomain(host string) string {
	if strings.Count(host, ".") < 2 {
		return ""
	}
	return host[strings.Index(host, ".")+1:]
}
