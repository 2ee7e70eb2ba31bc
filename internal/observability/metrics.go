package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// Metrics tracks operational metrics for a crawl.
type Metrics struct {
	// Page metrics
	PagesVisited atomic.Int64
	PagesFailed  atomic.Int64
	PagesSkipped atomic.Int64
	ProductPages atomic.Int64

	// Extraction metrics
	ProductsExtracted  atomic.Int64
	ExtractionFailures atomic.Int64
	PlatformWins       atomic.Int64
	StructuredWins     atomic.Int64
	HeuristicWins      atomic.Int64

	// Fetch metrics
	PlatformRequests atomic.Int64
	BytesRendered    atomic.Int64

	// Frontier metrics
	LinksEnqueued atomic.Int64
	LinksFiltered atomic.Int64
	QueueDepth    atomic.Int64

	server atomic.Pointer[http.Server]
	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// RecordStrategy counts a winning extraction strategy.
func (m *Metrics) RecordStrategy(kind string) {
	switch kind {
	case types.StrategyPlatformAPI:
		m.PlatformWins.Add(1)
	case types.StrategyStructuredData:
		m.StructuredWins.Add(1)
	case types.StrategyHeuristicDOM:
		m.HeuristicWins.Add(1)
	}
}

type sample struct {
	name  string
	help  string
	kind  string
	value int64
}

func (m *Metrics) samples() []sample {
	return []sample{
		{"shopstalk_pages_visited_total", "Total pages visited", "counter", m.PagesVisited.Load()},
		{"shopstalk_pages_failed_total", "Total pages that failed", "counter", m.PagesFailed.Load()},
		{"shopstalk_pages_skipped_total", "Total pages skipped by robots.txt", "counter", m.PagesSkipped.Load()},
		{"shopstalk_product_pages_total", "Total pages classified as product pages", "counter", m.ProductPages.Load()},
		{"shopstalk_products_extracted_total", "Total product records extracted", "counter", m.ProductsExtracted.Load()},
		{"shopstalk_extraction_failures_total", "Total product pages where every strategy failed", "counter", m.ExtractionFailures.Load()},
		{"shopstalk_strategy_platform_api_total", "Product pages won by the platform API strategy", "counter", m.PlatformWins.Load()},
		{"shopstalk_strategy_structured_data_total", "Product pages won by the structured data strategy", "counter", m.StructuredWins.Load()},
		{"shopstalk_strategy_heuristic_dom_total", "Product pages won by the heuristic DOM strategy", "counter", m.HeuristicWins.Load()},
		{"shopstalk_platform_requests_total", "Total platform API and probe requests", "counter", m.PlatformRequests.Load()},
		{"shopstalk_bytes_rendered_total", "Total rendered HTML bytes", "counter", m.BytesRendered.Load()},
		{"shopstalk_links_enqueued_total", "Total links accepted by the frontier", "counter", m.LinksEnqueued.Load()},
		{"shopstalk_links_filtered_total", "Total links refused by the frontier", "counter", m.LinksFiltered.Load()},
		{"shopstalk_queue_depth", "Current frontier depth", "gauge", m.QueueDepth.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, metric := range m.samples() {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Handler returns the metrics and /health routes.
func (m *Metrics) Handler(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

// StartServer starts the metrics HTTP server in the background.
func (m *Metrics) StartServer(port int, path string) error {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	srv := &http.Server{Handler: m.Handler(path), ReadHeaderTimeout: 5 * time.Second}
	m.server.Store(srv)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	srv := m.server.Load()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	for _, s := range m.samples() {
		out[s.name] = s.value
	}
	return out
}
