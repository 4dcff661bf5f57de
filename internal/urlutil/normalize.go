// Package urlutil normalizes URLs to a canonical form, guards against
// SSRF targets, and provides the hashing and host-matching helpers
// shared by the fetcher, cache, and crawler.
package urlutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// trackingParamPrefixes are query-key prefixes stripped during
// normalization because they vary per click/referrer but never change
// the resource a URL identifies (e.g. utm_source, utm_id, mc_cid).
var trackingParamPrefixes = []string{"utm_", "mc_"}

// trackingParams are exact query keys stripped alongside the prefix match.
var trackingParams = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
	"ref":    {},
	"source": {},
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if _, blocked := trackingParams[key]; blocked {
		return true
	}
	for _, prefix := range trackingParamPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Normalize resolves rawURL against an optional base, then rewrites it
// into a canonical form: lowercase scheme/host, stripped "www." prefix,
// default port removed, fragment dropped, tracking query params
// removed, remaining query keys sorted, and trailing slash collapsed
// (except for the root path).
func Normalize(rawURL string, base *url.URL) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is missing scheme or host", rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", scheme)
	}
	u.Scheme = scheme

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		values := u.Query()
		for key := range values {
			if isTrackingParam(key) {
				values.Del(key)
			}
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		encoded := make([]string, 0, len(keys))
		for _, k := range keys {
			for _, v := range values[k] {
				encoded = append(encoded, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(encoded, "&")
	}

	if u.Path == "" {
		u.Path = "/"
	} else if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// Hash returns the hex-encoded SHA-256 digest of a normalized URL,
// used as the Page table's primary key (url_hash).
func Hash(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])
}

// Host returns the lowercase, "www."-stripped host of a URL string,
// used for host-confinement comparisons in the crawler and the
// per-domain rate limiter/throttle.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www."), nil
}

// SameHost reports whether two URLs share the same normalized host,
// ignoring a "www." prefix on either side.
func SameHost(a, b string) bool {
	ha, errA := Host(a)
	hb, errB := Host(b)
	if errA != nil || errB != nil {
		return false
	}
	return ha != "" && ha == hb
}
