package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(config.DefaultConfig(), testLogger)
}

func TestHTTPFetcherBrotliAndGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		switch r.URL.Path {
		case "/br":
			bw := brotli.NewWriter(&buf)
			bw.Write([]byte("hello brotli"))
			bw.Close()
			w.Header().Set("Content-Encoding", "br")
		case "/gz":
			gw := gzip.NewWriter(&buf)
			gw.Write([]byte("hello gzip"))
			gw.Close()
			w.Header().Set("Content-Encoding", "gzip")
		}
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := newTestFetcher()
	defer f.Close()

	for path, want := range map[string]string{"/br": "hello brotli", "/gz": "hello gzip"} {
		resp, err := f.Get(context.Background(), srv.URL+path, nil)
		if err != nil {
			t.Fatalf("Get %s: %v", path, err)
		}
		if string(resp.Body) != want {
			t.Errorf("%s: expected %q, got %q", path, want, resp.Body)
		}
	}
}

func TestHTTPFetcherStatusHandling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/boom":
			http.Error(w, "boom", http.StatusBadGateway)
		case "/slow":
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	f := newTestFetcher()

	resp, err := f.Get(context.Background(), srv.URL+"/missing", nil)
	if err != nil {
		t.Fatalf("404 should be a response, got error %v", err)
	}
	if !resp.IsClientError() {
		t.Errorf("expected 4xx, got %d", resp.StatusCode)
	}

	_, err = f.Get(context.Background(), srv.URL+"/boom", nil)
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected FetchError with 502, got %v", err)
	}
	if !errors.Is(err, types.ErrFetchFailed) {
		t.Error("FetchError should match ErrFetchFailed")
	}

	_, err = f.Get(context.Background(), srv.URL+"/slow", nil)
	if !errors.As(err, &fe) || fe.RetryAfter.Seconds() != 7 {
		t.Fatalf("expected retry-after 7s, got %v", err)
	}
}

func TestHTTPFetcherSendsNoCookies(t *testing.T) {
	var sawCookie bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "" {
			sawCookie = true
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	for i := 0; i < 2; i++ {
		if _, err := f.Get(context.Background(), srv.URL+"/", nil); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if sawCookie {
		t.Error("fetcher must not replay cookies")
	}
	if f.Requests() != 2 {
		t.Errorf("expected 2 requests, got %d", f.Requests())
	}
}

func TestHTTPFetcherCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("Accept") + "|" + r.Header.Get("X-Requested-With")))
	}))
	defer srv.Close()

	resp, err := newTestFetcher().Get(context.Background(), srv.URL, http.Header{
		"Accept":           {"application/json"},
		"X-Requested-With": {"XMLHttpRequest"},
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Body) != "application/json|XMLHttpRequest" {
		t.Errorf("headers not applied: %q", resp.Body)
	}
}

func TestHTTPRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title> Widget Shop </title></head><body><a href="/products/a">A</a></body></html>`))
	}))
	defer srv.Close()

	r := NewHTTPRenderer(newTestFetcher(), testLogger)
	defer r.Close()

	resp, err := r.Render(context.Background(), srv.URL+"/", WaitPolicy{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if resp.Title != "Widget Shop" {
		t.Errorf("expected title, got %q", resp.Title)
	}
	if resp.Doc == nil {
		t.Error("expected parsed document to be cached")
	}
	if len(resp.Links) != 0 {
		t.Errorf("links should come from the document, got %v", resp.Links)
	}

	if _, err := r.Render(context.Background(), srv.URL+"/gone", WaitPolicy{}); !errors.Is(err, types.ErrFetchFailed) {
		t.Errorf("expected fetch error for 404, got %v", err)
	}

	if _, err := r.Screenshot(context.Background(), srv.URL); !errors.Is(err, types.ErrScreenshotUnsupported) {
		t.Errorf("expected ErrScreenshotUnsupported, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter(""); got.Seconds() != 5 {
		t.Errorf("default should be 5s, got %s", got)
	}
	if got := parseRetryAfter("600"); got.Minutes() != 2 {
		t.Errorf("should cap at 2m, got %s", got)
	}
}
