// Package urlnorm canonicalizes crawl URLs and holds the path rules shared by
// the frontier, the page classifier and the link harvester.
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// Canonicalizer turns raw URLs into CanonicalURLs. Safe for concurrent use
// after construction.
type Canonicalizer struct {
	exact    map[string]struct{}
	prefixes []string
}

// New creates a Canonicalizer that drops the given tracking query keys.
// A key ending in "*" matches every key with that prefix.
func New(trackingParams []string) *Canonicalizer {
	c := &Canonicalizer{exact: make(map[string]struct{}, len(trackingParams))}
	for _, p := range trackingParams {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			c.prefixes = append(c.prefixes, strings.TrimSuffix(p, "*"))
			continue
		}
		c.exact[p] = struct{}{}
	}
	return c
}

// Canonicalize normalizes a URL for identity:
// - requires an http(s) scheme and a host
// - lowercases scheme and host
// - drops userinfo
// - removes default ports (80 for http, 443 for https)
// - removes fragment and tracking query keys
// - sorts the remaining query parameters; pairs with malformed escapes are
//   kept verbatim
// - removes trailing slash (except root), keeping encoded path bytes such
//   as %2F
func (c *Canonicalizer) Canonicalize(rawURL string) (types.CanonicalURL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", types.ErrInvalidURL, rawURL, err)
	}
	return c.canonicalize(u, rawURL)
}

// Resolve resolves href against base and canonicalizes the result.
func (c *Canonicalizer) Resolve(base *url.URL, href string) (types.CanonicalURL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", types.ErrInvalidURL, href, err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return c.canonicalize(ref, href)
}

func (c *Canonicalizer) canonicalize(src *url.URL, rawURL string) (types.CanonicalURL, error) {
	u := *src
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q: scheme must be http or https", types.ErrInvalidURL, rawURL)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q: missing host", types.ErrInvalidURL, rawURL)
	}

	u.Host = strings.ToLower(u.Host)
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") || port == "" {
		u.Host = host
		if strings.Contains(host, ":") {
			u.Host = "[" + host + "]"
		}
	}

	u.RawQuery = c.cleanQuery(u.RawQuery)
	u.ForceQuery = false

	if p := u.EscapedPath(); p != "/" && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
		// p came from EscapedPath, so it unescapes cleanly.
		u.Path, _ = url.PathUnescape(p)
		u.RawPath = p
	}
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	return types.CanonicalURL(u.String()), nil
}

type queryPair struct {
	key, value string
	encoded    string
}

func (c *Canonicalizer) cleanQuery(raw string) string {
	if raw == "" {
		return ""
	}
	var pairs []queryPair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, kerr := url.QueryUnescape(k)
		value, verr := url.QueryUnescape(v)
		if kerr != nil || verr != nil {
			if !c.isTracking(k) {
				pairs = append(pairs, queryPair{key: k, value: v, encoded: part})
			}
			continue
		}
		if c.isTracking(key) {
			continue
		}
		pairs = append(pairs, queryPair{key: key, value: value, encoded: url.QueryEscape(key) + "=" + url.QueryEscape(value)})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	sorted := make([]string, len(pairs))
	for i, p := range pairs {
		sorted[i] = p.encoded
	}
	return strings.Join(sorted, "&")
}

func (c *Canonicalizer) isTracking(key string) bool {
	key = strings.ToLower(key)
	if _, ok := c.exact[key]; ok {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Hash creates a compact hash of a canonical URL.
func Hash(u types.CanonicalURL) string {
	h := sha256.Sum256([]byte(u))
	return hex.EncodeToString(h[:16]) // 128-bit hash
}
