// Package extract turns a classified product page into ProductRecords by
// trying a fixed chain of strategies.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/fetcher"
	"github.com/IshaanNene/ShopStalk/internal/normalize"
	"github.com/IshaanNene/ShopStalk/internal/platform"
	"github.com/IshaanNene/ShopStalk/internal/types"
	"github.com/IshaanNene/ShopStalk/internal/urlnorm"
)

// StrategyKind names a strategy; it is the value recorded on ProductRecord.Strategy.
type StrategyKind = string

// Input is everything a strategy may read. Strategies must not mutate it.
type Input struct {
	URL  *url.URL
	Page *types.Response
	Doc  *goquery.Document
	Hint platform.Hint
}

// Outcome is the result of a successful chain run.
type Outcome struct {
	Strategy StrategyKind
	Products []*types.ProductRecord
}

// Strategy is one way of reading products off a page. Returning
// types.ErrNotApplicable means the strategy was skipped.
type Strategy interface {
	Kind() StrategyKind
	Extract(ctx context.Context, in *Input) ([]*types.ProductRecord, error)
}

// Chain runs strategies in order; the first one that yields at least one
// product wins and nothing is merged across strategies.
type Chain struct {
	strategies []Strategy
	rules      *urlnorm.Rules
	logger     *slog.Logger
}

// NewChain creates a chain over the given strategies.
func NewChain(strategies []Strategy, rules *urlnorm.Rules, logger *slog.Logger) *Chain {
	return &Chain{
		strategies: strategies,
		rules:      rules,
		logger:     logger.With("component", "extractor"),
	}
}

// NewDefaultChain builds the platform, structured data and heuristic DOM
// strategies from configuration.
func NewDefaultChain(cfg *config.Config, client fetcher.HTTPClient, rules *urlnorm.Rules, logger *slog.Logger) *Chain {
	norm := normalize.New(cfg.Extraction.CurrencySymbols)
	opts := NewOptionScanner(norm, cfg.Extraction.BuyingOptions)

	var strategies []Strategy
	if cfg.Platform.APIEnabled && client != nil {
		strategies = append(strategies, NewPlatformStrategy(client, cfg.Platform.Timeout, logger))
	}
	strategies = append(strategies,
		NewStructuredStrategy(norm, opts, logger),
		NewHeuristicStrategy(norm, opts, logger),
	)
	return NewChain(strategies, rules, logger)
}

// Strategies returns the chain order.
func (c *Chain) Strategies() []Strategy { return c.strategies }

// Extract runs the chain. When every strategy fails it returns a
// *types.ExtractionError listing each attempt.
func (c *Chain) Extract(ctx context.Context, in *Input) (*Outcome, error) {
	if in.Doc == nil && in.Page != nil {
		doc, err := in.Page.Document()
		if err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}
		in.Doc = doc
	}
	pageURL := ""
	if in.URL != nil {
		pageURL = in.URL.String()
	}

	var attempts []types.StrategyAttempt
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		products, err := c.run(ctx, s, in)
		if err == nil && len(products) == 0 {
			err = errors.New("no products found")
		}
		if err != nil {
			if !errors.Is(err, types.ErrNotApplicable) {
				c.logger.Debug("strategy failed", "url", pageURL, "strategy", s.Kind(), "error", err)
			}
			attempts = append(attempts, types.StrategyAttempt{Strategy: s.Kind(), Err: err})
			continue
		}

		for _, p := range products {
			c.finish(p, s.Kind(), in)
		}
		c.logger.Debug("strategy succeeded", "url", pageURL, "strategy", s.Kind(), "products", len(products))
		return &Outcome{Strategy: s.Kind(), Products: products}, nil
	}
	return nil, &types.ExtractionError{URL: pageURL, Attempts: attempts}
}

// run isolates a strategy so a panic becomes a failed attempt.
func (c *Chain) run(ctx context.Context, s Strategy, in *Input) (products []*types.ProductRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			products, err = nil, fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return s.Extract(ctx, in)
}

// finish fills fields every strategy shares and derives identity.
func (c *Chain) finish(p *types.ProductRecord, kind StrategyKind, in *Input) {
	if p.Strategy == "" {
		p.Strategy = kind
	}
	if p.PageURL == "" && in.URL != nil {
		p.PageURL = in.URL.String()
	}
	if p.Platform == "" && in.Hint.Known() {
		p.Platform = in.Hint.Name()
	}
	if p.Name == "" {
		p.Name = fallbackName(in, c.rules)
	}
	p.Description = cleanText(p.Description)
	if p.Prices == nil {
		p.Prices = []types.PriceQuote{}
	}
	p.Finalize()
}

// fallbackName uses the document title, then the first h1, then the URL slug.
func fallbackName(in *Input, rules *urlnorm.Rules) string {
	if in.Doc != nil {
		if t := cleanText(in.Doc.Find("title").First().Text()); t != "" {
			return t
		}
		if h := cleanText(in.Doc.Find("h1").First().Text()); h != "" {
			return h
		}
	}
	if in.Page != nil && in.Page.Title != "" {
		return cleanText(in.Page.Title)
	}
	if in.URL == nil {
		return ""
	}
	slug, ok := "", false
	if rules != nil {
		slug, ok = rules.ProductSlug(in.URL, in.Hint.ProductAliases()...)
	}
	if !ok {
		slug = path.Base(strings.TrimSuffix(in.URL.Path, "/"))
	}
	if slug == "" || slug == "/" || slug == "." {
		return ""
	}
	return strings.Join(strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(slug)), " ")
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
