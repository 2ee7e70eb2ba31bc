package fetcher

import (
	"context"
	"net/http"
	"time"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// WaitPolicy tells a renderer when a page counts as loaded.
type WaitPolicy struct {
	// Stable is how long the DOM must stay unchanged.
	Stable time.Duration

	// Selector, when set, must appear before the page is captured.
	Selector string

	// ScrollSteps is the number of scroll-to-bottom passes for lazy content.
	ScrollSteps int
}

// Renderer loads a page the way a browser would and returns its HTML.
type Renderer interface {
	// Render fetches and renders the page at url.
	Render(ctx context.Context, url string, wait WaitPolicy) (*types.Response, error)

	// Screenshot captures the page at url as PNG bytes.
	Screenshot(ctx context.Context, url string) ([]byte, error)

	// Close releases any resources held by the renderer.
	Close() error

	// Type returns the renderer type identifier.
	Type() string
}

// HTTPClient performs plain GET requests. Implementations must not carry
// browser session cookies.
type HTTPClient interface {
	Get(ctx context.Context, url string, headers http.Header) (*types.Response, error)
}
