package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/IshaanNene/ShopStalk/internal/fetcher"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

// maxNesting bounds how deep sitemap indexes are followed.
const maxNesting = 3

// URL represents a URL entry from a sitemap.
type URL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// document is either a urlset or a sitemapindex; both decode into it.
type document struct {
	URLs     []URL `xml:"url"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Reader fetches and parses sitemaps.
type Reader struct {
	client fetcher.HTTPClient
	limit  int
	logger *slog.Logger
}

// NewReader creates a reader that returns at most limit page URLs
// (0 means no limit).
func NewReader(client fetcher.HTTPClient, limit int, logger *slog.Logger) *Reader {
	return &Reader{
		client: client,
		limit:  limit,
		logger: logger.With("component", "sitemap"),
	}
}

// Candidates lists sitemap locations for a site: the ones robots.txt
// declares, then the conventional paths.
func Candidates(site *url.URL, declared []string) []string {
	root := site.Scheme + "://" + site.Host
	out := append([]string(nil), declared...)
	for _, p := range []string{"/sitemap.xml", "/sitemap_index.xml"} {
		out = append(out, root+p)
	}
	seen := make(map[string]struct{}, len(out))
	uniq := out[:0]
	for _, u := range out {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		uniq = append(uniq, u)
	}
	return uniq
}

// Read fetches a sitemap and follows sitemap indexes. Product sitemaps in
// an index are read before the others.
func (r *Reader) Read(ctx context.Context, sitemapURL string) ([]string, error) {
	var locs []string
	visited := make(map[string]struct{})
	if err := r.read(ctx, sitemapURL, 0, visited, &locs); err != nil {
		return nil, err
	}
	r.logger.Info("sitemap read", "url", sitemapURL, "urls", len(locs))
	return locs, nil
}

func (r *Reader) read(ctx context.Context, sitemapURL string, depth int, visited map[string]struct{}, locs *[]string) error {
	if _, ok := visited[sitemapURL]; ok {
		return nil
	}
	visited[sitemapURL] = struct{}{}

	doc, err := r.fetch(ctx, sitemapURL)
	if err != nil {
		return err
	}

	for _, u := range doc.URLs {
		if r.full(*locs) {
			return nil
		}
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			*locs = append(*locs, loc)
		}
	}

	if depth >= maxNesting {
		return nil
	}
	subs := make([]string, 0, len(doc.Sitemaps))
	for _, s := range doc.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			subs = append(subs, loc)
		}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return isProductSitemap(subs[i]) && !isProductSitemap(subs[j])
	})
	for _, sub := range subs {
		if r.full(*locs) || ctx.Err() != nil {
			return nil
		}
		if err := r.read(ctx, sub, depth+1, visited, locs); err != nil {
			r.logger.Warn("sub-sitemap error", "url", sub, "error", err)
		}
	}
	return nil
}

func (r *Reader) fetch(ctx context.Context, sitemapURL string) (*document, error) {
	resp, err := r.client.Get(ctx, sitemapURL, http.Header{"Accept": {"application/xml,text/xml"}})
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &types.FetchError{URL: sitemapURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body := resp.Body
	// .xml.gz files arrive compressed without a Content-Encoding header.
	if len(body) > 2 && body[0] == 0x1f && body[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gunzip sitemap: %w", err)
		}
		defer gz.Close()
		if body, err = io.ReadAll(gz); err != nil {
			return nil, fmt.Errorf("gunzip sitemap: %w", err)
		}
	}

	var doc document
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	return &doc, nil
}

func (r *Reader) full(locs []string) bool {
	return r.limit > 0 && len(locs) >= r.limit
}

func isProductSitemap(loc string) bool {
	return strings.Contains(strings.ToLower(loc), "product")
}
