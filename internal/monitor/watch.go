package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// Crawler runs one complete crawl of a seed.
type Crawler interface {
	Run(ctx context.Context, seed string) (*types.CrawlResult, error)
}

// Round is the outcome of one recrawl.
type Round struct {
	N       int
	Result  *types.CrawlResult
	Changes []Change
	// Err is the crawl or detection error, if any. A crawl cut short by
	// cancellation is not diffed and leaves Changes nil.
	Err error
}

// Watcher recrawls a seed on a fixed interval and diffs every complete
// crawl against the previous one.
type Watcher struct {
	crawler  Crawler
	detector *ChangeDetector
	interval time.Duration
	runs     int
	logger   *slog.Logger
}

// NewWatcher creates a Watcher. runs caps the number of crawls; 0 means
// recrawl until the context is cancelled.
func NewWatcher(crawler Crawler, detector *ChangeDetector, interval time.Duration, runs int, logger *slog.Logger) (*Watcher, error) {
	if interval <= 0 {
		return nil, errors.New("watch interval must be positive")
	}
	if runs < 0 {
		return nil, errors.New("watch runs must be >= 0")
	}
	return &Watcher{
		crawler:  crawler,
		detector: detector,
		interval: interval,
		runs:     runs,
		logger:   logger.With("component", "watcher"),
	}, nil
}

// Watch crawls seed immediately and then once per interval, calling fn
// after each round. Ticks that fire while a crawl is running are dropped.
// It returns nil once the run cap is reached or ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, seed string, fn func(Round)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		round := w.round(ctx, seed, n)
		if fn != nil {
			fn(round)
		}
		if w.runs > 0 && n >= w.runs {
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped", "rounds", n, "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) round(ctx context.Context, seed string, n int) Round {
	round := Round{N: n}
	result, err := w.crawler.Run(ctx, seed)
	round.Result, round.Err = result, err
	if result == nil {
		w.logger.Error("recrawl failed", "round", n, "error", err)
		return round
	}
	// A partial crawl would report every unvisited product as removed.
	if ctx.Err() != nil {
		w.logger.Info("recrawl interrupted, skipping change detection", "round", n)
		return round
	}

	changes, derr := w.detector.Detect(result)
	round.Changes = changes
	if derr != nil {
		round.Err = errors.Join(err, derr)
	}
	sum := Summary(changes)
	w.logger.Info("recrawl complete",
		"round", n,
		"products", result.TotalProducts,
		"added", sum[ChangeAdded],
		"modified", sum[ChangeModified],
		"removed", sum[ChangeRemoved],
	)
	return round
}
