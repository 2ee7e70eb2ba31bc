package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/ShopStalk/internal/classifier"
	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/extract"
	"github.com/IshaanNene/ShopStalk/internal/fetcher"
	"github.com/IshaanNene/ShopStalk/internal/observability"
	"github.com/IshaanNene/ShopStalk/internal/parser"
	"github.com/IshaanNene/ShopStalk/internal/pipeline"
	"github.com/IshaanNene/ShopStalk/internal/platform"
	"github.com/IshaanNene/ShopStalk/internal/sitemap"
	"github.com/IshaanNene/ShopStalk/internal/storage"
	"github.com/IshaanNene/ShopStalk/internal/types"
	"github.com/IshaanNene/ShopStalk/internal/urlnorm"
)

// Engine is the crawl orchestrator. It visits pages strictly one at a time
// and runs one crawl at a time.
type Engine struct {
	cfg        *config.Config
	logger     *slog.Logger
	renderer   fetcher.Renderer
	canon      *urlnorm.Canonicalizer
	rules      *urlnorm.Rules
	robots     *RobotsManager
	detector   *platform.Detector
	classifier *classifier.Classifier
	chain      *extract.Chain
	products   *pipeline.Pipeline
	harvester  *parser.LinkHarvester
	sitemaps   *sitemap.Reader
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	storage    storage.Storage

	hint     platform.Hint
	detected bool
}

// New creates an Engine. client is used for robots.txt, platform probes and
// platform documents; it must not share cookies with the renderer.
func New(cfg *config.Config, renderer fetcher.Renderer, client fetcher.HTTPClient, logger *slog.Logger) *Engine {
	logger = logger.With("component", "engine")
	metrics := observability.NewMetrics(logger)
	rules := urlnorm.NewRules(cfg.URL.RegionalSegments)
	canon := urlnorm.New(cfg.URL.TrackingParams)

	var counted fetcher.HTTPClient
	var sitemaps *sitemap.Reader
	if client != nil {
		counted = &countingClient{next: client, count: &metrics.PlatformRequests}
		sitemaps = sitemap.NewReader(client, cfg.Engine.SitemapLimit, logger)
	}

	return &Engine{
		cfg:        cfg,
		logger:     logger,
		renderer:   renderer,
		canon:      canon,
		rules:      rules,
		robots:     NewRobotsManager(cfg.Engine.RespectRobotsTxt, client, "ShopStalk", logger),
		detector:   platform.NewDetector(nil, counted, cfg.Platform.Probe, cfg.Platform.Timeout, logger),
		classifier: classifier.New(rules, logger),
		chain:      extract.NewDefaultChain(cfg, counted, rules, logger),
		products:   pipeline.Default(cfg.Extraction, logger),
		harvester:  parser.NewLinkHarvester(canon, rules, cfg.Engine.LinksPerPage, logger),
		sitemaps:   sitemaps,
		limiter:    newLimiter(cfg.Engine.PolitenessDelay),
		metrics:    metrics,
	}
}

// SetStorage sets the backend the crawl result is written to.
func (e *Engine) SetStorage(s storage.Storage) {
	e.storage = s
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *observability.Metrics {
	return e.metrics
}

// Run crawls from seed until the page budget is spent, the frontier is
// empty or ctx is cancelled. Only an invalid seed is fatal; a storage error
// is returned together with the result.
func (e *Engine) Run(ctx context.Context, seed string) (*types.CrawlResult, error) {
	canonical, err := e.canon.Canonicalize(seed)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	frontier, err := NewFrontier(canonical, e.cfg.Engine.MaxPages, e.cfg.Engine.MaxDepth, e.rules)
	if err != nil {
		return nil, err
	}
	if err := frontier.PushSeed(canonical); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if e.cfg.Engine.UseSitemap {
		e.seedFromSitemaps(ctx, frontier, canonical)
	}

	e.resetPlatform()
	dedup := pipeline.NewDedupMiddleware()
	result := &types.CrawlResult{
		CrawlID:   uuid.NewString(),
		Seed:      canonical.String(),
		CrawlTime: time.Now(),
		Pages:     []types.PageRecord{},
		Products:  []types.ProductRecord{},
	}

	e.logger.Info("crawl starting",
		"crawl_id", result.CrawlID,
		"seed", result.Seed,
		"max_pages", e.cfg.Engine.MaxPages,
		"max_depth", e.cfg.Engine.MaxDepth,
		"renderer", e.renderer.Type(),
	)

	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info("crawl stopped", "reason", err)
			break
		}
		req, ok := frontier.Pop()
		if !ok {
			break
		}
		if err := e.limiter.Wait(ctx); err != nil {
			e.logger.Info("crawl stopped", "reason", err)
			break
		}
		if err := frontier.MarkVisited(req.URL); err != nil {
			continue
		}

		page, products, links := e.visit(ctx, req)
		result.Pages = append(result.Pages, page)

		for _, p := range products {
			if kept, _ := dedup.Process(p); kept != nil {
				result.Products = append(result.Products, *kept)
			}
		}

		for _, link := range links {
			e.enqueue(frontier, link, req.Depth+1, req.URL)
		}
		e.metrics.QueueDepth.Store(int64(frontier.Len()))
	}

	e.summarize(result)

	if e.storage != nil {
		if err := e.storage.Store(context.WithoutCancel(ctx), result); err != nil {
			e.logger.Error("storage error", "backend", e.storage.Name(), "error", err)
			return result, err
		}
	}
	return result, nil
}

// enqueue pushes a discovered link and counts the outcome.
func (e *Engine) enqueue(frontier *Frontier, link types.CanonicalURL, depth int, parent types.CanonicalURL) bool {
	err := frontier.PushFrom(link, depth, parent)
	switch {
	case err == nil:
		e.metrics.LinksEnqueued.Add(1)
		return true
	case isRoutineRefusal(err):
		e.metrics.LinksFiltered.Add(1)
	default:
		e.logger.Warn("frontier push failed", "url", link, "error", err)
	}
	return false
}

// seedFromSitemaps queues the URLs of the first sitemap that yields any, one
// level below the seed. Sitemap errors never fail the crawl.
func (e *Engine) seedFromSitemaps(ctx context.Context, frontier *Frontier, seed types.CanonicalURL) {
	if e.sitemaps == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, e.cfg.Engine.RequestTimeout)
	defer cancel()

	seedURL := seed.Parse()
	for _, candidate := range sitemap.Candidates(seedURL, e.robots.Sitemaps(sctx, seedURL)) {
		locs, err := e.sitemaps.Read(sctx, candidate)
		if err != nil {
			e.logger.Debug("sitemap unavailable", "url", candidate, "error", err)
			continue
		}
		if len(locs) == 0 {
			continue
		}

		queued := 0
		for _, loc := range locs {
			link, err := e.canon.Canonicalize(loc)
			if err != nil {
				e.metrics.LinksFiltered.Add(1)
				continue
			}
			if e.enqueue(frontier, link, 1, seed) {
				queued++
			}
		}
		e.metrics.QueueDepth.Store(int64(frontier.Len()))
		e.logger.Info("frontier seeded from sitemap", "sitemap", candidate, "urls", len(locs), "queued", queued)
		return
	}
}

// Inspect visits a single page without following its links.
func (e *Engine) Inspect(ctx context.Context, rawURL string) (*types.PageRecord, error) {
	canonical, err := e.canon.Canonicalize(rawURL)
	if err != nil {
		return nil, err
	}
	e.resetPlatform()
	page, _, _ := e.visit(ctx, types.NewRequest(canonical, 0, types.PriorityNormal))
	return &page, nil
}

// visit runs the per-page steps. It never returns an error: every failure
// is recorded on the PageRecord, and a panic marks the page failed.
func (e *Engine) visit(ctx context.Context, req *types.Request) (page types.PageRecord, products []*types.ProductRecord, links []types.CanonicalURL) {
	pageCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Engine.RequestTimeout)
	defer cancel()

	u := req.URL.Parse()
	log := e.logger.With("url", req.URL.String())
	page = types.PageRecord{
		URL:        req.URL.String(),
		Status:     types.PageOK,
		Depth:      req.Depth,
		CrawledAt:  time.Now(),
		Products:   []types.ProductRecord{},
		LinksFound: []string{},
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("page visit panicked", "panic", r)
			page.Status = types.PageFailed
			page.Error = fmt.Sprintf("panic: %v", r)
			page.Products = []types.ProductRecord{}
			products, links = nil, nil
			e.metrics.PagesFailed.Add(1)
		}
	}()

	if !e.robots.IsAllowed(pageCtx, u) {
		log.Info("page blocked by robots.txt")
		page.Status = types.PageSkipped
		page.Error = types.ErrBlocked.Error()
		e.metrics.PagesSkipped.Add(1)
		return page, nil, nil
	}
	e.applyCrawlDelay(u)

	resp, err := e.renderer.Render(pageCtx, req.URL.String(), e.waitPolicy())
	if err != nil {
		log.Warn("render failed", "error", err)
		return e.failed(page, err), nil, nil
	}
	e.metrics.PagesVisited.Add(1)
	e.metrics.BytesRendered.Add(int64(len(resp.Body)))
	page.Title = resp.Title

	doc, err := resp.Document()
	if err != nil {
		log.Warn("html parse failed", "error", err)
		return e.failed(page, err), nil, nil
	}

	hint := e.platformHint(pageCtx, u, doc)
	page.Platform = hint.Name()

	verdict := e.classifier.Classify(u, doc, hint)
	page.IsProductPage = verdict.IsProduct
	page.Reason = verdict.Reason
	log.Debug("page classified", "is_product", verdict.IsProduct, "reason", verdict.Reason, "signals", verdict.Signals)

	if verdict.IsProduct {
		e.metrics.ProductPages.Add(1)
		products = e.extractProducts(pageCtx, log, &page, u, resp, doc, hint)
		e.captureScreenshot(pageCtx, log, req.URL.String())
	}

	links = e.harvester.Harvest(req.URL, doc, resp.Links)
	limit := e.cfg.Engine.StoredLinksPerPage
	for i, link := range links {
		if limit > 0 && i >= limit {
			break
		}
		page.LinksFound = append(page.LinksFound, link.String())
	}

	log.Info("page visited",
		"depth", req.Depth,
		"product", verdict.IsProduct,
		"products", len(products),
		"links", len(links),
	)
	return page, products, links
}

func (e *Engine) extractProducts(ctx context.Context, log *slog.Logger, page *types.PageRecord, u *url.URL, resp *types.Response, doc *goquery.Document, hint platform.Hint) []*types.ProductRecord {
	outcome, err := e.chain.Extract(ctx, &extract.Input{URL: u, Page: resp, Doc: doc, Hint: hint})
	if err != nil {
		e.metrics.ExtractionFailures.Add(1)
		page.Error = err.Error()
		var ee *types.ExtractionError
		if errors.As(err, &ee) {
			log.Info("no product extracted", "attempts", len(ee.Attempts), "error", err)
		} else {
			log.Warn("extraction error", "error", err)
		}
		return nil
	}

	e.metrics.RecordStrategy(outcome.Strategy)
	products := e.products.ProcessAll(outcome.Products)
	for _, p := range products {
		page.Products = append(page.Products, *p)
	}
	e.metrics.ProductsExtracted.Add(int64(len(products)))
	log.Debug("products extracted", "strategy", outcome.Strategy, "count", len(products))
	return products
}

// platformHint detects the platform on the first rendered page and reuses
// it for the rest of the crawl with each page's own currency.
func (e *Engine) platformHint(ctx context.Context, u *url.URL, doc *goquery.Document) platform.Hint {
	if !e.detected {
		e.hint = e.detector.Detect(ctx, u, doc)
		e.detected = true
		return e.hint
	}
	return e.hint.WithCurrency(platform.PageCurrency(doc))
}

func (e *Engine) resetPlatform() {
	e.hint = platform.Hint{}
	e.detected = false
}

func (e *Engine) captureScreenshot(ctx context.Context, log *slog.Logger, rawURL string) {
	if !e.cfg.Engine.CaptureScreenshots {
		return
	}
	shot, err := e.renderer.Screenshot(ctx, rawURL)
	if err != nil {
		log.Debug("screenshot unavailable", "error", err)
		return
	}
	log.Info("screenshot captured", "bytes", len(shot))
}

func (e *Engine) failed(page types.PageRecord, err error) types.PageRecord {
	page.Status = types.PageFailed
	page.Error = err.Error()
	e.metrics.PagesFailed.Add(1)
	return page
}

// applyCrawlDelay slows the limiter down when robots.txt asks for more than
// the configured politeness delay.
func (e *Engine) applyCrawlDelay(u *url.URL) {
	delay := e.robots.CrawlDelay(u)
	if delay <= e.cfg.Engine.PolitenessDelay {
		return
	}
	if limit := rate.Every(delay); limit < e.limiter.Limit() {
		e.limiter.SetLimit(limit)
		e.logger.Info("using robots.txt crawl-delay", "delay", delay)
	}
}

func (e *Engine) waitPolicy() fetcher.WaitPolicy {
	wait := fetcher.WaitPolicy{
		Stable:   e.cfg.Fetcher.WaitStable,
		Selector: e.cfg.Fetcher.WaitSelector,
	}
	if e.cfg.Fetcher.Scroll {
		wait.ScrollSteps = e.cfg.Fetcher.ScrollSteps
	}
	return wait
}

func (e *Engine) summarize(result *types.CrawlResult) {
	result.FinishedAt = time.Now()
	result.Platform = e.hint.Name()
	result.TotalPages = len(result.Pages)
	result.TotalProducts = len(result.Products)
	for _, p := range result.Pages {
		if p.IsProductPage {
			result.ProductPageCount++
		}
		if p.Status == types.PageFailed {
			result.FailedPages++
		}
	}

	e.logger.Info("crawl finished",
		"crawl_id", result.CrawlID,
		"pages", result.TotalPages,
		"product_page_count", result.ProductPageCount,
		"products", result.TotalProducts,
		"failed", result.FailedPages,
		"platform", result.Platform,
		"elapsed", result.FinishedAt.Sub(result.CrawlTime).String(),
	)
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// countingClient counts the requests issued for platform detection and
// platform documents.
type countingClient struct {
	next  fetcher.HTTPClient
	count *atomic.Int64
}

func (c *countingClient) Get(ctx context.Context, rawURL string, headers http.Header) (*types.Response, error) {
	c.count.Add(1)
	return c.next.Get(ctx, rawURL, headers)
}
