package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

const collectLinksJS = `() => Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`

const scrollJS = `() => window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`

// BrowserRenderer implements Renderer using a headless browser via Rod.
type BrowserRenderer struct {
	browser    *rod.Browser
	cfg        *config.Config
	logger     *slog.Logger
	pagePool   chan *rod.Page
	userAgents []string
	uaIndex    atomic.Int64
}

// NewBrowserRenderer launches Chromium and connects to it.
func NewBrowserRenderer(cfg *config.Config, logger *slog.Logger) (*BrowserRenderer, error) {
	br := &BrowserRenderer{
		cfg:        cfg,
		logger:     logger.With("component", "browser_renderer"),
		pagePool:   make(chan *rod.Page, 2),
		userAgents: cfg.Engine.UserAgents,
	}

	launchURL, err := br.launchBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	br.browser = browser

	br.logger.Info("browser renderer ready", "headless", cfg.Fetcher.Headless)
	return br, nil
}

// launchBrowser starts a Chromium instance with appropriate flags.
func (br *BrowserRenderer) launchBrowser() (string, error) {
	l := launcher.New().
		Headless(br.cfg.Fetcher.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox")
	return l.Launch()
}

// Render navigates to a URL and returns the rendered page content, its title
// and every anchor href the browser resolved.
func (br *BrowserRenderer) Render(ctx context.Context, rawURL string, wait WaitPolicy) (*types.Response, error) {
	start := time.Now()

	page, err := br.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	defer br.putPage(page)

	p := page.Context(ctx)

	if ua := br.nextUserAgent(); ua != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			br.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if err := p.Navigate(rawURL); err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}

	stable := wait.Stable
	if stable <= 0 {
		stable = 300 * time.Millisecond
	}
	if err := p.WaitStable(stable); err != nil {
		br.logger.Warn("page stability timeout, continuing", "url", rawURL, "error", err)
	}

	if wait.Selector != "" {
		el, err := p.Timeout(10 * time.Second).Element(wait.Selector)
		if err == nil {
			err = el.WaitVisible()
		}
		if err != nil {
			br.logger.Warn("wait selector timeout", "selector", wait.Selector, "error", err)
		}
	}

	for i := 0; i < wait.ScrollSteps; i++ {
		if _, err := p.Eval(scrollJS); err != nil {
			br.logger.Debug("scroll failed", "url", rawURL, "error", err)
			break
		}
		if err := p.WaitStable(stable); err != nil {
			break
		}
	}

	html, err := p.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}

	finalURL, title := rawURL, ""
	if info, err := p.Info(); err == nil && info != nil {
		finalURL = info.URL
		title = info.Title
	}

	var links []string
	if res, err := p.Eval(collectLinksJS); err == nil && res != nil {
		for _, v := range res.Value.Arr() {
			links = append(links, v.Str())
		}
	}

	duration := time.Since(start)
	resp := types.NewBrowserResponse(rawURL, finalURL, title, []byte(html), links, duration)

	br.logger.Debug("render complete",
		"url", rawURL,
		"final_url", finalURL,
		"size", len(html),
		"links", len(links),
		"duration", duration,
	)

	return resp, nil
}

// Screenshot captures a full-page PNG.
func (br *BrowserRenderer) Screenshot(ctx context.Context, rawURL string) ([]byte, error) {
	page, err := br.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	defer br.putPage(page)

	p := page.Context(ctx)
	if err := p.Navigate(rawURL); err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	_ = p.WaitStable(300 * time.Millisecond)
	return p.Screenshot(true, nil)
}

// Close shuts down the browser and releases resources.
func (br *BrowserRenderer) Close() error {
	close(br.pagePool)
	for page := range br.pagePool {
		_ = page.Close()
	}
	if br.browser != nil {
		return br.browser.Close()
	}
	return nil
}

// Type returns the renderer type identifier.
func (br *BrowserRenderer) Type() string {
	return "browser"
}

func (br *BrowserRenderer) nextUserAgent() string {
	if len(br.userAgents) == 0 {
		return ""
	}
	idx := br.uaIndex.Add(1) % int64(len(br.userAgents))
	return br.userAgents[idx]
}

// getPage retrieves a page from the pool or creates a new one.
func (br *BrowserRenderer) getPage() (*rod.Page, error) {
	select {
	case page := <-br.pagePool:
		return page, nil
	default:
		return br.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
}

// putPage returns a page to the pool.
func (br *BrowserRenderer) putPage(page *rod.Page) {
	// Navigate to blank to free memory from the last page
	_ = page.Navigate("about:blank")

	select {
	case br.pagePool <- page:
	default:
		_ = page.Close() // Pool full, close the page
	}
}
