package shopstalk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestCrawlerCrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><body><a href="/products/mug">Mug</a></body></html>`)
		case "/products/mug":
			fmt.Fprint(w, `<html><head><title>Mug</title>
				<script type="application/ld+json">{"@type":"Product","name":"Stoneware Mug","sku":"MUG-1","offers":{"price":"14.00","priceCurrency":"EUR"}}</script>
				</head><body><h1>Stoneware Mug</h1></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	crawler := NewCrawler(
		WithMaxPages(5),
		WithDelay(0),
		WithRobotsRespect(false),
		WithPlatformAPI(false),
		WithOutput("json", dir),
		WithLogger(testLogger),
	)

	var names []string
	crawler.OnProduct(func(p *Product) { names = append(names, p.Name) })

	result, err := crawler.Crawl(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if result.TotalProducts != 1 || len(names) != 1 || names[0] != "Stoneware Mug" {
		t.Fatalf("products = %d, callbacks = %v", result.TotalProducts, names)
	}
	if result.Products[0].ID != "sku:MUG-1" {
		t.Errorf("id = %q", result.Products[0].ID)
	}
	if _, err := os.Stat(filepath.Join(dir, "products.json")); err != nil {
		t.Errorf("products.json not written: %v", err)
	}
}

func TestCrawlerInvalidConfig(t *testing.T) {
	crawler := NewCrawler(WithMaxPages(0), WithLogger(testLogger))
	if _, err := crawler.Crawl(context.Background(), "https://shop.example/"); err == nil {
		t.Error("expected invalid config error")
	}
}
