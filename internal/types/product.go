package types

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceKind tags what a quoted amount represents.
type PriceKind string

const (
	PriceOneTime      PriceKind = "one_time"
	PriceSubscription PriceKind = "subscription"
	PriceCompareAt    PriceKind = "compare_at"
)

// OptionType tags a variant or buying option.
type OptionType string

const (
	OptionQuantity     OptionType = "quantity"
	OptionSubscription OptionType = "subscription"
	OptionVariant      OptionType = "variant"
	OptionPricingTier  OptionType = "pricing_tier"
)

// Strategy names recorded on every ProductRecord.
const (
	StrategyPlatformAPI    = "platform_api"
	StrategyStructuredData = "structured_data"
	StrategyHeuristicDOM   = "heuristic_dom"
)

// Page statuses.
const (
	PageOK      = "ok"
	PageFailed  = "failed"
	PageSkipped = "skipped"
)

// PriceQuote is one normalized amount. Amount is exact; it is never a float.
type PriceQuote struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Kind     PriceKind       `json:"kind"`
	Raw      string          `json:"raw,omitempty"`
}

// Option is a variant or buying option attached to exactly one product.
type Option struct {
	Type            OptionType       `json:"option_type"`
	ID              string           `json:"id,omitempty"`
	Value           string           `json:"value"`
	Unit            string           `json:"unit,omitempty"`
	Label           string           `json:"label,omitempty"`
	Prices          []PriceQuote     `json:"prices,omitempty"`
	IsDefault       bool             `json:"is_default"`
	Available       *bool            `json:"available,omitempty"`
	PlanName        string           `json:"plan_name,omitempty"`
	GroupName       string           `json:"group_name,omitempty"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
}

// ProductRecord is the extraction output for one product.
type ProductRecord struct {
	ID            string       `json:"id"`
	PlatformID    string       `json:"platform_id,omitempty"`
	PageURL       string       `json:"page_url"`
	Name          string       `json:"name"`
	Prices        []PriceQuote `json:"prices"`
	MainPrice     *PriceQuote  `json:"main_price"`
	Description   string       `json:"description,omitempty"`
	SKU           string       `json:"sku,omitempty"`
	Availability  string       `json:"availability,omitempty"`
	Brand         string       `json:"brand,omitempty"`
	Images        []string     `json:"images,omitempty"`
	Variants      []Option     `json:"variants,omitempty"`
	BuyingOptions []Option     `json:"buying_options,omitempty"`
	Strategy      string       `json:"strategy"`
	Platform      string       `json:"platform,omitempty"`
	IsBundle      bool         `json:"is_bundle,omitempty"`
	BundleItems   []string     `json:"bundle_items,omitempty"`
}

// Finalize derives MainPrice and ID from the extracted fields.
func (p *ProductRecord) Finalize() {
	p.MainPrice = selectMainPrice(p.Prices)
	if p.ID != "" {
		return
	}
	switch {
	case p.PlatformID != "":
		p.ID = p.PlatformID
	case p.SKU != "":
		p.ID = "sku:" + p.SKU
	default:
		p.ID = contentID(p.Name, p.PageURL)
	}
}

// DedupKey identifies equivalent products across pages: the platform item
// identifier when there is one, else (name, main price).
func (p *ProductRecord) DedupKey() string {
	if p.PlatformID != "" {
		return p.PlatformID
	}
	key := strings.ToLower(strings.TrimSpace(p.Name)) + "|"
	if mp := p.MainPrice; mp != nil {
		key += mp.Amount.String() + mp.Currency
	}
	return key
}

// selectMainPrice prefers a one-time price, then a subscription price.
// Compare-at amounts are never the main price.
func selectMainPrice(prices []PriceQuote) *PriceQuote {
	for _, kind := range []PriceKind{PriceOneTime, PriceSubscription} {
		for i := range prices {
			if prices[i].Kind == kind {
				q := prices[i]
				return &q
			}
		}
	}
	return nil
}

// contentID hashes the lowercased name and the page path.
func contentID(name, pageURL string) string {
	path := pageURL
	if u, err := url.Parse(pageURL); err == nil {
		path = u.Path
	}
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name)) + "|" + path))
	return hex.EncodeToString(h[:8])
}

// PageRecord is the immutable outcome of visiting one page.
type PageRecord struct {
	URL           string          `json:"url"`
	Title         string          `json:"title"`
	IsProductPage bool            `json:"is_product_page"`
	Reason        string          `json:"reason"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	Platform      string          `json:"platform,omitempty"`
	Depth         int             `json:"depth"`
	CrawledAt     time.Time       `json:"crawled_at"`
	Products      []ProductRecord `json:"products"`
	LinksFound    []string        `json:"links_found"`
}

// CrawlResult is the aggregate output of one crawl.
type CrawlResult struct {
	CrawlID          string          `json:"crawl_id"`
	Seed             string          `json:"seed"`
	CrawlTime        time.Time       `json:"crawl_time"`
	FinishedAt       time.Time       `json:"finished_at"`
	Platform         string          `json:"platform"`
	TotalPages       int             `json:"total_pages"`
	ProductPageCount int             `json:"product_page_count"`
	TotalProducts    int             `json:"total_products"`
	FailedPages      int             `json:"failed_pages"`
	Pages            []PageRecord    `json:"pages"`
	Products         []ProductRecord `json:"products"`
}
