// Package shopstalk provides a public SDK for embedding ShopStalk as a library.
//
// Example usage:
//
//	crawler := shopstalk.NewCrawler(
//	    shopstalk.WithMaxPages(50),
//	    shopstalk.WithDelay(500*time.Millisecond),
//	    shopstalk.WithOutput("jsonl", "./output"),
//	)
//
//	crawler.OnProduct(func(p *shopstalk.Product) {
//	    fmt.Println(p.Name, p.MainPrice)
//	})
//
//	result, err := crawler.Crawl(ctx, "https://shop.example/")
package shopstalk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/engine"
	"github.com/IshaanNene/ShopStalk/internal/fetcher"
	"github.com/IshaanNene/ShopStalk/internal/storage"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

// Result types re-exported for callers.
type (
	Product = types.ProductRecord
	Page    = types.PageRecord
	Result  = types.CrawlResult
	Price   = types.PriceQuote
	Variant = types.Option
)

// ProductCallback is called once for every deduplicated product of a crawl.
type ProductCallback func(p *Product)

// Crawler is the high-level API for using ShopStalk as a library.
type Crawler struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     bool
	callbacks []ProductCallback
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler)

// WithMaxPages sets the page budget.
func WithMaxPages(n int) CrawlerOption {
	return func(c *Crawler) { c.cfg.Engine.MaxPages = n }
}

// WithMaxDepth sets the maximum link depth. 0 means unlimited.
func WithMaxDepth(depth int) CrawlerOption {
	return func(c *Crawler) { c.cfg.Engine.MaxDepth = depth }
}

// WithDelay sets the politeness delay between pages.
func WithDelay(d time.Duration) CrawlerOption {
	return func(c *Crawler) { c.cfg.Engine.PolitenessDelay = d }
}

// WithSitemap seeds the frontier from the store's sitemaps, keeping at most
// limit URLs (0 means all).
func WithSitemap(limit int) CrawlerOption {
	return func(c *Crawler) {
		c.cfg.Engine.UseSitemap = true
		c.cfg.Engine.SitemapLimit = limit
	}
}

// WithTimeout sets the per-page timeout.
func WithTimeout(d time.Duration) CrawlerOption {
	return func(c *Crawler) { c.cfg.Engine.RequestTimeout = d }
}

// WithOutput writes results to path. format adds jsonl, csv or mongo output
// next to the JSON files.
func WithOutput(format, path string) CrawlerOption {
	return func(c *Crawler) {
		c.cfg.Storage.Type = format
		c.cfg.Storage.OutputPath = path
		c.store = true
	}
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) CrawlerOption {
	return func(c *Crawler) { c.cfg.Engine.UserAgents = []string{ua} }
}

// WithRobotsRespect enables/disables robots.txt compliance.
func WithRobotsRespect(respect bool) CrawlerOption {
	return func(c *Crawler) { c.cfg.Engine.RespectRobotsTxt = respect }
}

// WithBrowser renders pages in headless Chromium instead of plain HTTP.
func WithBrowser(headless bool) CrawlerOption {
	return func(c *Crawler) {
		c.cfg.Fetcher.Type = "browser"
		c.cfg.Fetcher.Headless = headless
	}
}

// WithPlatformAPI enables/disables platform product documents and probing.
func WithPlatformAPI(enabled bool) CrawlerOption {
	return func(c *Crawler) {
		c.cfg.Platform.APIEnabled = enabled
		c.cfg.Platform.Probe = enabled
	}
}

// WithCurrencySymbols maps extra currency markers to ISO codes.
func WithCurrencySymbols(symbols map[string]string) CrawlerOption {
	return func(c *Crawler) { c.cfg.Extraction.CurrencySymbols = symbols }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CrawlerOption {
	return func(c *Crawler) { c.logger = logger }
}

// WithVerbose enables debug-level logging.
func WithVerbose() CrawlerOption {
	return func(c *Crawler) { c.cfg.Logging.Level = "debug" }
}

// NewCrawler creates a new Crawler with the given options.
func NewCrawler(opts ...CrawlerOption) *Crawler {
	c := &Crawler{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		level := slog.LevelInfo
		if c.cfg.Logging.Level == "debug" {
			level = slog.LevelDebug
		}
		c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return c
}

// OnProduct registers a callback for each product of a finished crawl.
func (c *Crawler) OnProduct(cb ProductCallback) {
	c.callbacks = append(c.callbacks, cb)
}

// Crawl runs one crawl from seed. Partial results are returned when ctx is
// cancelled.
func (c *Crawler) Crawl(ctx context.Context, seed string) (*Result, error) {
	eng, closeFn, err := c.build()
	if err != nil {
		return nil, err
	}
	defer closeFn()

	if c.store {
		store, err := storage.New(c.cfg.Storage, c.logger)
		if err != nil {
			return nil, fmt.Errorf("create storage: %w", err)
		}
		defer store.Close()
		eng.SetStorage(store)
	}

	result, err := eng.Run(ctx, seed)
	if result != nil {
		for i := range result.Products {
			for _, cb := range c.callbacks {
				cb(&result.Products[i])
			}
		}
	}
	return result, err
}

// Inspect classifies and extracts a single page without following links.
func (c *Crawler) Inspect(ctx context.Context, pageURL string) (*Page, error) {
	eng, closeFn, err := c.build()
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return eng.Inspect(ctx, pageURL)
}

func (c *Crawler) build() (*engine.Engine, func(), error) {
	if err := config.Validate(c.cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	client := fetcher.NewHTTPFetcher(c.cfg, c.logger)
	renderer, err := fetcher.NewRenderer(c.cfg, client, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create renderer: %w", err)
	}
	closeFn := func() {
		if err := renderer.Close(); err != nil {
			c.logger.Error("renderer close error", "error", err)
		}
	}
	return engine.New(c.cfg, renderer, client, c.logger), closeFn, nil
}
