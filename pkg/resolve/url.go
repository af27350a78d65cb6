// Package resolve follows search-result redirect links to their real
// destinations. Result pages hand out tracking URLs that bounce through one
// or more HTTP redirects before landing on the actual page; the resolver
// walks those chains manually so every hop can be bounded, retried, and
// cached independently.
package resolve

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"search-scraper/pkg/utils"
)

// IsValidURL reports whether raw is an absolute URL with both a scheme and
// a host.
func IsValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// FixURL repairs a relative or scheme-less URL by joining it against base.
// URLs that already carry an http(s) scheme pass through untouched. The
// base must itself be a valid absolute URL or ErrInvalidBaseURL is
// returned. An empty input yields an empty output with no error.
func FixURL(raw, base string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw, nil
	}
	if !IsValidURL(base) {
		return "", fmt.Errorf("%w: %q", utils.ErrInvalidBaseURL, base)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", utils.ErrInvalidBaseURL, base, err)
	}
	joined, err := baseURL.Parse(raw)
	if err != nil {
		// Joining failed; hand back the input unchanged.
		return raw, nil
	}
	return joined.String(), nil
}

// NormalizeURL canonicalizes a URL for deduplication: scheme and host are
// lowercased, a leading "www." is stripped, trailing slashes are trimmed
// (an empty path becomes "/"), and the query string is optionally dropped.
// Relative inputs are first repaired against base. Inputs that cannot be
// parsed are returned as-is.
func NormalizeURL(raw, base string, stripParams bool) string {
	if raw == "" {
		return ""
	}
	u := raw
	if !IsValidURL(u) {
		fixed, err := FixURL(u, base)
		if err != nil {
			return u
		}
		u = fixed
		if !IsValidURL(u) {
			return u
		}
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")

	path := strings.TrimRight(parsed.Path, "/")
	if path == "" {
		path = "/"
	}

	normalized := scheme + "://" + host + path
	if !stripParams && parsed.RawQuery != "" {
		normalized += "?" + parsed.RawQuery
	}
	return normalized
}

// FilterValidProxies parses a raw proxy list, dropping empty lines, comment
// lines starting with '#', and entries that do not parse as absolute URLs.
// The number of dropped entries is logged once.
func FilterValidProxies(raw []string, log *logrus.Entry) []*url.URL {
	if len(raw) == 0 {
		return nil
	}
	valid := make([]*url.URL, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		u, err := url.Parse(p)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		valid = append(valid, u)
	}
	if dropped := len(raw) - len(valid); dropped > 0 && log != nil {
		log.Warnf("Filtered out %d invalid proxy entries", dropped)
	}
	return valid
}
