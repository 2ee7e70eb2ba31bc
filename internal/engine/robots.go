package engine

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/IshaanNene/ShopStalk/internal/fetcher"
)

// RobotsManager handles robots.txt fetching, parsing, and enforcement.
// Robots errors fail open.
type RobotsManager struct {
	enabled   bool
	client    fetcher.HTTPClient
	userAgent string
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsManager creates a new RobotsManager.
func NewRobotsManager(enabled bool, client fetcher.HTTPClient, userAgent string, logger *slog.Logger) *RobotsManager {
	if userAgent == "" {
		userAgent = "ShopStalk"
	}
	return &RobotsManager{
		enabled:   enabled,
		client:    client,
		userAgent: userAgent,
		logger:    logger.With("component", "robots"),
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed checks if a URL is allowed by the host's robots.txt.
func (rm *RobotsManager) IsAllowed(ctx context.Context, target *url.URL) bool {
	if !rm.enabled || rm.client == nil || target == nil {
		return true
	}
	data := rm.robotsData(ctx, target)
	if data == nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return data.TestAgent(path, rm.userAgent)
}

// CrawlDelay returns the crawl-delay declared for our agent, if cached.
func (rm *RobotsManager) CrawlDelay(target *url.URL) time.Duration {
	rm.mu.RLock()
	data := rm.cache[cacheKey(target)]
	rm.mu.RUnlock()
	if data == nil {
		return 0
	}
	if group := data.FindGroup(rm.userAgent); group != nil {
		return group.CrawlDelay
	}
	return 0
}

// Sitemaps returns the Sitemap: URLs the host's robots.txt declares.
func (rm *RobotsManager) Sitemaps(ctx context.Context, target *url.URL) []string {
	if !rm.enabled || rm.client == nil || target == nil {
		return nil
	}
	data := rm.robotsData(ctx, target)
	if data == nil {
		return nil
	}
	return data.Sitemaps
}

// robotsData fetches and caches robots.txt for a host. A failed fetch is
// cached as nil so it is not retried during the crawl.
func (rm *RobotsManager) robotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	key := cacheKey(target)

	rm.mu.RLock()
	data, ok := rm.cache[key]
	rm.mu.RUnlock()
	if ok {
		return data
	}

	data = rm.fetch(ctx, key+"/robots.txt")

	rm.mu.Lock()
	rm.cache[key] = data
	rm.mu.Unlock()
	return data
}

func (rm *RobotsManager) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	resp, err := rm.client.Get(ctx, robotsURL, nil)
	if err != nil {
		rm.logger.Debug("robots.txt unavailable", "url", robotsURL, "error", err)
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		rm.logger.Debug("robots.txt unparsable", "url", robotsURL, "error", err)
		return nil
	}
	return data
}

func cacheKey(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
