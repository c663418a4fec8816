// Package hostmatch implements host extraction and same-domain checks.
package hostmatch

import (
	"net/url"
	"strings"
)

// Host returns the lower-cased host name of u (the authority without any
// port), or "", false if u has no parseable host.
func Host(u string) (string, bool) {
	if u == "" {
		return "", false
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Hostname()), true
}

// SameDomain reports whether linkHost is the seed host itself or a strict
// dot-suffixed subdomain of it. No public-suffix-list logic is performed;
// the caller is responsible for passing a sensible seed authority.
func SameDomain(seedHost, linkHost string) bool {
	if seedHost == "" || linkHost == "" {
		return false
	}
	if linkHost == seedHost {
		return true
	}
	idx := len(linkHost) - len(seedHost) - 1
	return idx >= 0 && linkHost[idx] == '.' && strings.HasSuffix(linkHost, seedHost)
}
