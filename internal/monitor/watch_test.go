package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// scriptedCrawler returns one canned result per call.
type scriptedCrawler struct {
	mu      sync.Mutex
	results []*types.CrawlResult
	calls   int
	onRun   func(call int)
}

func (s *scriptedCrawler) Run(_ context.Context, seed string) (*types.CrawlResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.onRun != nil {
		s.onRun(s.calls)
	}
	if s.calls > len(s.results) {
		return nil, errors.New("no more results")
	}
	r := s.results[s.calls-1]
	r.Seed = seed
	return r, nil
}

func crawlOf(products ...types.ProductRecord) *types.CrawlResult {
	return &types.CrawlResult{Products: products, TotalProducts: len(products)}
}

func TestWatcherDiffsEveryRound(t *testing.T) {
	cd, err := NewChangeDetector(t.TempDir(), testLogger)
	if err != nil {
		t.Fatalf("NewChangeDetector: %v", err)
	}
	crawler := &scriptedCrawler{results: []*types.CrawlResult{
		crawlOf(product("a", "Alpha", "10.00"), product("b", "Beta", "5.00")),
		crawlOf(product("a", "Alpha", "8.50"), product("b", "Beta", "5.00")),
		crawlOf(product("a", "Alpha", "8.50")),
	}}
	w, err := NewWatcher(crawler, cd, time.Millisecond, 3, testLogger)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	var rounds []Round
	if err := w.Watch(context.Background(), "https://shop.example/", func(r Round) { rounds = append(rounds, r) }); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(rounds) != 3 {
		t.Fatalf("rounds = %d, want 3", len(rounds))
	}

	want := []map[ChangeType]int{
		{ChangeAdded: 2},
		{ChangeModified: 1},
		{ChangeRemoved: 1},
	}
	for i, r := range rounds {
		if r.Err != nil {
			t.Errorf("round %d: %v", r.N, r.Err)
		}
		sum := Summary(r.Changes)
		for typ, n := range want[i] {
			if sum[typ] != n {
				t.Errorf("round %d: %s = %d, want %d (changes %+v)", r.N, typ, sum[typ], n, r.Changes)
			}
		}
		if len(r.Changes) != len(want[i]) {
			t.Errorf("round %d: %d changes, want %d", r.N, len(r.Changes), len(want[i]))
		}
	}
}

func TestWatcherSkipsInterruptedCrawl(t *testing.T) {
	dir := t.TempDir()
	cd, err := NewChangeDetector(dir, testLogger)
	if err != nil {
		t.Fatalf("NewChangeDetector: %v", err)
	}
	if _, err := cd.Detect(&types.CrawlResult{
		Seed:     "https://shop.example/",
		Products: []types.ProductRecord{product("a", "Alpha", "10.00"), product("b", "Beta", "5.00")},
	}); err != nil {
		t.Fatalf("Detect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	crawler := &scriptedCrawler{
		results: []*types.CrawlResult{crawlOf(product("a", "Alpha", "10.00"))},
		onRun:   func(int) { cancel() },
	}
	w, err := NewWatcher(crawler, cd, time.Hour, 0, testLogger)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	var rounds []Round
	if err := w.Watch(ctx, "https://shop.example/", func(r Round) { rounds = append(rounds, r) }); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(rounds) != 1 {
		t.Fatalf("rounds = %d, want 1", len(rounds))
	}
	if rounds[0].Changes != nil {
		t.Errorf("interrupted crawl should not be diffed, got %+v", rounds[0].Changes)
	}

	// The snapshot still holds both products.
	changes, err := cd.Detect(&types.CrawlResult{
		Seed:     "https://shop.example/",
		Products: []types.ProductRecord{product("a", "Alpha", "10.00"), product("b", "Beta", "5.00")},
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("snapshot changed by interrupted crawl: %+v", changes)
	}
}

func TestWatcherKeepsGoingAfterFailedCrawl(t *testing.T) {
	cd, err := NewChangeDetector(t.TempDir(), testLogger)
	if err != nil {
		t.Fatalf("NewChangeDetector: %v", err)
	}
	crawler := &scriptedCrawler{}
	w, err := NewWatcher(crawler, cd, time.Millisecond, 2, testLogger)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	var failed int
	if err := w.Watch(context.Background(), "https://shop.example/", func(r Round) {
		if r.Err != nil {
			failed++
		}
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if failed != 2 || crawler.calls != 2 {
		t.Errorf("failed rounds = %d, calls = %d, want 2 and 2", failed, crawler.calls)
	}
}

func TestNewWatcherInvalid(t *testing.T) {
	if _, err := NewWatcher(&scriptedCrawler{}, nil, 0, 0, testLogger); err == nil {
		t.Error("zero interval should be rejected")
	}
	if _, err := NewWatcher(&scriptedCrawler{}, nil, time.Second, -1, testLogger); err == nil {
		t.Error("negative runs should be rejected")
	}
}
