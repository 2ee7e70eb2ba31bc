// Package platform recognizes hosted commerce platforms and reads their
// public product documents.
package platform

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShopStalk/internal/fetcher"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

// NameNone is reported when no platform signal matched.
const NameNone = "none"

// DocumentRequest carries what a product document fetch needs.
type DocumentRequest struct {
	Client   fetcher.HTTPClient
	Base     *url.URL // scheme and host of the store
	PageURL  string
	Handle   string // product slug from the URL
	Currency string // page-level currency, if known
}

// DocumentFunc fetches and decodes a platform product document.
type DocumentFunc func(ctx context.Context, req DocumentRequest) (*types.ProductRecord, error)

// Probe is an endpoint that only a given platform answers in a recognizable way.
type Probe struct {
	Path      string
	Recognize func(resp *types.Response) bool
}

// Platform is one row of the detection table. Adding a platform means adding
// a row; nothing else dispatches on platform names.
type Platform struct {
	Name string

	// Globals match inline script text that only this platform emits.
	Globals []*regexp.Regexp

	// CDNMarkers are substrings of script src / link href values.
	CDNMarkers []string

	// Generators are substrings of <meta name="generator"> content.
	Generators []string

	// Probe is an optional endpoint check.
	Probe *Probe

	// HostedSuffixes are store domains owned by the platform.
	HostedSuffixes []string

	// ProductPath matches the platform's product URLs; submatch 1 is the slug.
	ProductPath *regexp.Regexp

	// Document reads the product document, nil when the platform has none.
	Document DocumentFunc
}

// Hint is the detection outcome carried through classification and
// extraction.
type Hint struct {
	Platform *Platform
	Signal   string
	Currency string
}

// Name returns the platform name, or "none".
func (h Hint) Name() string {
	if h.Platform == nil {
		return NameNone
	}
	return h.Platform.Name
}

// Known reports whether a platform was detected.
func (h Hint) Known() bool { return h.Platform != nil }

// ProductAliases returns the platform product path pattern, if any.
func (h Hint) ProductAliases() []*regexp.Regexp {
	if h.Platform == nil || h.Platform.ProductPath == nil {
		return nil
	}
	return []*regexp.Regexp{h.Platform.ProductPath}
}

// Handle returns the platform product slug for u.
func (h Hint) Handle(u *url.URL) (string, bool) {
	if h.Platform == nil || h.Platform.ProductPath == nil || u == nil {
		return "", false
	}
	m := h.Platform.ProductPath.FindStringSubmatch(u.Path)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// WithCurrency returns a copy of h carrying the given page currency.
func (h Hint) WithCurrency(currency string) Hint {
	h.Currency = currency
	return h
}

// Default returns the built-in platform table in evaluation order.
func Default() []*Platform {
	return []*Platform{Shopify(), WooCommerce(), BigCommerce()}
}

// Shopify describes Shopify storefronts.
func Shopify() *Platform {
	return &Platform{
		Name: "shopify",
		Globals: []*regexp.Regexp{
			regexp.MustCompile(`\bShopify\.(?:shop|theme|routes|currency|locale|country)\b`),
			regexp.MustCompile(`window\.Shopify\b`),
			regexp.MustCompile(`\bShopifyAnalytics\b`),
		},
		CDNMarkers:     []string{"cdn.shopify.com", "cdn.shopifycdn.net"},
		Generators:     []string{"shopify"},
		Probe:          &Probe{Path: "/products.json?limit=1", Recognize: jsonHasKey("products")},
		HostedSuffixes: []string{".myshopify.com"},
		ProductPath:    regexp.MustCompile(`/products/([^/?#.]+)`),
		Document:       shopifyDocument,
	}
}

// WooCommerce describes WordPress stores running WooCommerce.
func WooCommerce() *Platform {
	return &Platform{
		Name: "woocommerce",
		Globals: []*regexp.Regexp{
			regexp.MustCompile(`\bwc_add_to_cart_params\b`),
			regexp.MustCompile(`\bwoocommerce_params\b`),
			regexp.MustCompile(`\bwc_cart_fragments_params\b`),
		},
		CDNMarkers:  []string{"/wp-content/plugins/woocommerce/"},
		Generators:  []string{"woocommerce"},
		Probe:       &Probe{Path: "/wp-json/wc/store/v1/products?per_page=1", Recognize: jsonIsArray},
		ProductPath: regexp.MustCompile(`/product/([^/?#]+)`),
		Document:    wooDocument,
	}
}

// BigCommerce describes BigCommerce storefronts. There is no public product
// document, so only classification benefits from it.
func BigCommerce() *Platform {
	return &Platform{
		Name: "bigcommerce",
		Globals: []*regexp.Regexp{
			regexp.MustCompile(`\bBCData\b`),
			regexp.MustCompile(`\bstencilBootstrap\b`),
		},
		CDNMarkers:     []string{"cdn11.bigcommerce.com", "bigcommerce.com/s-"},
		HostedSuffixes: []string{".mybigcommerce.com"},
	}
}

var (
	shopifyCurrencyRe = regexp.MustCompile(`Shopify\.currency\s*=\s*\{[^}]*"active"\s*:\s*"([A-Za-z]{3})"`)
	jsonCurrencyRe    = regexp.MustCompile(`"(?:currency|currency_code|priceCurrency)"\s*:\s*"([A-Z]{3})"`)
)

// PageCurrency finds the store currency declared on a page.
func PageCurrency(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	for _, sel := range []string{
		`meta[property="og:price:currency"]`,
		`meta[property="product:price:currency"]`,
		`meta[itemprop="priceCurrency"]`,
	} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.ToUpper(strings.TrimSpace(v))
		}
	}
	var found string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if m := shopifyCurrencyRe.FindStringSubmatch(text); m != nil {
			found = strings.ToUpper(m[1])
			return false
		}
		if m := jsonCurrencyRe.FindStringSubmatch(text); m != nil {
			found = m[1]
			return false
		}
		return true
	})
	return found
}
