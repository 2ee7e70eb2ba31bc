package types

import (
	"net/url"
	"time"
)

// Priority tiers for frontier scheduling (lower = served first).
const (
	PriorityCatalog = 0
	PriorityNormal  = 1
)

// CanonicalURL is a URL that has been through the canonicalizer. Two pages
// with equal CanonicalURLs are the same page for crawl purposes.
type CanonicalURL string

// String returns the URL text.
func (c CanonicalURL) String() string { return string(c) }

// Parse returns the parsed form. Canonical URLs always parse.
func (c CanonicalURL) Parse() *url.URL {
	u, err := url.Parse(string(c))
	if err != nil {
		return &url.URL{}
	}
	return u
}

// Request is a frontier entry waiting to be visited.
type Request struct {
	// URL is the canonical target.
	URL CanonicalURL

	// Depth is the link distance from the seed URL.
	Depth int

	// Priority is the frontier tier this request was queued in.
	Priority int

	// ParentURL tracks which page this request was discovered on.
	ParentURL CanonicalURL

	// CreatedAt is when this request was queued.
	CreatedAt time.Time
}

// NewRequest creates a Request for an already canonical URL.
func NewRequest(u CanonicalURL, depth, priority int) *Request {
	return &Request{
		URL:       u,
		Depth:     depth,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	return r.URL.Parse().Hostname()
}
