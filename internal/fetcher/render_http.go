package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

// HTTPRenderer is a Renderer that fetches server-rendered HTML without a
// browser. Client-side rendered storefronts need BrowserRenderer instead.
type HTTPRenderer struct {
	client *HTTPFetcher
	logger *slog.Logger
}

// NewHTTPRenderer wraps an HTTPFetcher.
func NewHTTPRenderer(client *HTTPFetcher, logger *slog.Logger) *HTTPRenderer {
	return &HTTPRenderer{
		client: client,
		logger: logger.With("component", "http_renderer"),
	}
}

// Render fetches the page and fills in its title. Links are left empty; the
// harvester reads anchors from the document itself. A non-2xx status is an
// error because there is no page to classify.
func (r *HTTPRenderer) Render(ctx context.Context, rawURL string, _ WaitPolicy) (*types.Response, error) {
	resp, err := r.client.Get(ctx, rawURL, http.Header{"Accept": {"text/html,application/xhtml+xml"}})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if len(resp.Body) == 0 {
		return nil, &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: types.ErrEmptyResponse}
	}

	doc, err := resp.Document()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("parse html: %w", err)}
	}
	resp.Title = strings.TrimSpace(doc.Find("title").First().Text())

	r.logger.Debug("render complete", "url", rawURL, "status", resp.StatusCode, "size", len(resp.Body))
	return resp, nil
}

// Screenshot is not available without a browser.
func (r *HTTPRenderer) Screenshot(_ context.Context, _ string) ([]byte, error) {
	return nil, types.ErrScreenshotUnsupported
}

// Close releases the underlying client.
func (r *HTTPRenderer) Close() error { return r.client.Close() }

// Type returns the renderer type identifier.
func (r *HTTPRenderer) Type() string { return "http" }

// NewRenderer builds the renderer selected by fetcher.type.
func NewRenderer(cfg *config.Config, client *HTTPFetcher, logger *slog.Logger) (Renderer, error) {
	switch cfg.Fetcher.Type {
	case "", "http":
		return NewHTTPRenderer(client, logger), nil
	case "browser":
		return NewBrowserRenderer(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", cfg.Fetcher.Type)
	}
}
