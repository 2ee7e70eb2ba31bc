package extract

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ShopStalk/internal/normalize"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

const (
	priceSel     = `[itemprop="price"], [data-testid*="price"], [class*="price"], [id*="price"]`
	compareSel   = `s, del, strike, [class*="compare"], [class*="was"], [class*="strike"]`
	priorSel     = `[class*="original"], [class*="regular"], [class*="old-price"], [class*="old_price"], [class*="oldprice"], [class*="price-old"], [class*="price--old"]`
	noiseSel     = `header, footer, nav, [class*="related"], [class*="recommend"], [class*="upsell"], [class*="cart-drawer"]`
	maxPriceElem = 4
)

// scopeSels narrow the price scan to the main product block.
var scopeSels = []string{
	`[itemscope][itemtype*="Product"]`,
	`[class*="product-info"], [class*="product__info"], [class*="product-detail"], [class*="product-single"]`,
	`main`,
	`body`,
}

var (
	digitRe         = regexp.MustCompile(`\d`)
	bareAmountRe    = regexp.MustCompile(`^\d[\d.,\s]*$`)
	soldOutRe       = regexp.MustCompile(`(?i)\b(?:sold\s+out|out\s+of\s+stock|unavailable)\b`)
	filenameSplitRe = regexp.MustCompile(`[^a-z0-9]+`)
)

var imageBlacklist = map[string]struct{}{}

func init() {
	for _, t := range []string{
		"logo", "icon", "badge", "sticker", "award", "seal", "certificate",
		"social", "facebook", "twitter", "instagram", "youtube",
		"payment", "visa", "mastercard", "paypal",
		"trust", "security", "ssl", "verified",
		"flag", "star", "rating", "review",
		"nav", "breadcrumb", "spinner", "placeholder", "loading", "sprite",
	} {
		imageBlacklist[t] = struct{}{}
	}
}

// HeuristicStrategy reads products from visible markup when nothing
// machine-readable is present.
type HeuristicStrategy struct {
	norm   *normalize.Normalizer
	opts   *OptionScanner
	logger *slog.Logger
}

// NewHeuristicStrategy creates a HeuristicStrategy.
func NewHeuristicStrategy(norm *normalize.Normalizer, opts *OptionScanner, logger *slog.Logger) *HeuristicStrategy {
	return &HeuristicStrategy{
		norm:   norm,
		opts:   opts,
		logger: logger.With("component", "heuristic_strategy"),
	}
}

// Kind implements Strategy.
func (s *HeuristicStrategy) Kind() StrategyKind { return types.StrategyHeuristicDOM }

// Extract implements Strategy. A record without a price is still a record.
func (s *HeuristicStrategy) Extract(_ context.Context, in *Input) ([]*types.ProductRecord, error) {
	if in.Doc == nil {
		return nil, types.ErrNotApplicable
	}
	rec := &types.ProductRecord{
		Name:         headline(in.Doc),
		Prices:       scanPrices(in.Doc, s.norm, pageCurrency(in)),
		Description:  domDescription(in.Doc),
		Availability: domAvailability(in.Doc),
		Images:       scanImages(in.Doc, in.URL),
	}
	if rec.Name == "" && len(rec.Prices) == 0 {
		return nil, errors.New("no product name or price in markup")
	}
	rec.BuyingOptions = s.opts.Scan(in.Doc)
	return []*types.ProductRecord{rec}, nil
}

// scanPrices walks the innermost price-like elements of the product block.
// Label-only elements are skipped and struck-through amounts become
// compare-at quotes.
func scanPrices(doc *goquery.Document, norm *normalize.Normalizer, currency string) []types.PriceQuote {
	scope := doc.Selection
	for _, sel := range scopeSels {
		if found := doc.Find(sel).First(); found.Length() > 0 && found.Find(priceSel).Length() > 0 {
			scope = found
			break
		}
	}

	var scanned []scannedPrice
	scope.Find(priceSel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if el.Find(priceSel).Length() > 0 || el.Closest(noiseSel).Length() > 0 {
			return true
		}
		found := elementQuotes(el, norm, currency)
		if len(found) == 0 {
			return true
		}
		scanned = append(scanned, scannedPrice{
			quotes:   found,
			prior:    !isCompare(el) && el.Closest(priorSel).Length() > 0,
			labelled: isCompare(el) || normalize.Labelled(cleanText(el.Text())),
			multiple: len(found) > 1,
		})
		return len(scanned) < maxPriceElem
	})

	quotes := settleKinds(scanned)
	if len(quotes) == 0 {
		if amount, ok := doc.Find(`meta[property="product:price:amount"], meta[property="og:price:amount"]`).First().Attr("content"); ok {
			if q, ok := norm.Quote(amount, currency, types.PriceOneTime); ok {
				quotes = append(quotes, q)
			}
		}
	}
	return normalize.DedupQuotes(quotes)
}

// scannedPrice is the quotes read from one price element.
type scannedPrice struct {
	quotes   []types.PriceQuote
	prior    bool // classed as an original or regular price
	labelled bool // carries a kind keyword or compare markup
	multiple bool // held more than one amount
}

// settleKinds resolves kinds across the scanned elements. An element classed
// as the original or regular price is a compare-at amount only when another
// element holds a current price; two unlabelled single amounts where the
// first is higher read as a was/now pair. Compare-at amounts equal to a
// current price are dropped.
func settleKinds(scanned []scannedPrice) []types.PriceQuote {
	current := false
	for _, sp := range scanned {
		if sp.prior {
			continue
		}
		for _, q := range sp.quotes {
			if q.Kind != types.PriceCompareAt {
				current = true
			}
		}
	}
	if current {
		for i := range scanned {
			if scanned[i].prior {
				forceKind(scanned[i].quotes, types.PriceCompareAt)
			}
		}
	}

	if len(scanned) == 2 && !scanned[0].prior && !scanned[1].prior {
		a, b := scanned[0], scanned[1]
		if !a.labelled && !b.labelled && !a.multiple && !b.multiple &&
			a.quotes[0].Kind == types.PriceOneTime && b.quotes[0].Kind == types.PriceOneTime &&
			a.quotes[0].Currency == b.quotes[0].Currency && a.quotes[0].Amount.GreaterThan(b.quotes[0].Amount) {
			a.quotes[0].Kind = types.PriceCompareAt
		}
	}

	var quotes []types.PriceQuote
	for _, sp := range scanned {
		quotes = append(quotes, sp.quotes...)
	}
	out := make([]types.PriceQuote, 0, len(quotes))
	for _, q := range quotes {
		if q.Kind == types.PriceCompareAt && hasCurrentAmount(quotes, q) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func hasCurrentAmount(quotes []types.PriceQuote, compare types.PriceQuote) bool {
	for _, q := range quotes {
		if q.Kind != types.PriceCompareAt && q.Currency == compare.Currency && q.Amount.Equal(compare.Amount) {
			return true
		}
	}
	return false
}

func elementQuotes(el *goquery.Selection, norm *normalize.Normalizer, currency string) []types.PriceQuote {
	if content, ok := el.Attr("content"); ok && el.Is(`[itemprop="price"]`) {
		kind := types.PriceOneTime
		if isCompare(el) {
			kind = types.PriceCompareAt
		}
		if q, ok := norm.Quote(content, firstNonEmpty(el.Parent().Find(`[itemprop="priceCurrency"]`).AttrOr("content", ""), currency), kind); ok {
			return []types.PriceQuote{q}
		}
	}

	text := cleanText(el.Text())
	if !digitRe.MatchString(text) {
		return nil
	}
	if isCompare(el) {
		return forceKind(fragment(norm, text, currency, types.PriceCompareAt), types.PriceCompareAt)
	}

	var quotes []types.PriceQuote
	rest := el.Clone()
	rest.Find(compareSel).Each(func(_ int, struck *goquery.Selection) {
		quotes = append(quotes, forceKind(fragment(norm, cleanText(struck.Text()), currency, types.PriceCompareAt), types.PriceCompareAt)...)
		struck.Remove()
	})
	return append(quotes, fragment(norm, cleanText(rest.Text()), currency, "")...)
}

// fragment only lets the page currency turn bare numbers into prices when
// the text is nothing but an amount; "Save 15%" is not a price.
func fragment(norm *normalize.Normalizer, text, currency string, hint types.PriceKind) []types.PriceQuote {
	if quotes := norm.Fragment(text, "", hint); len(quotes) > 0 {
		if currency != "" {
			for i := range quotes {
				if quotes[i].Currency == "" {
					quotes[i].Currency = currency
				}
			}
		}
		return quotes
	}
	if currency != "" && bareAmountRe.MatchString(text) {
		return norm.Fragment(text, currency, hint)
	}
	return nil
}

func isCompare(el *goquery.Selection) bool {
	return el.Closest(compareSel).Length() > 0
}

func forceKind(quotes []types.PriceQuote, kind types.PriceKind) []types.PriceQuote {
	for i := range quotes {
		quotes[i].Kind = kind
	}
	return quotes
}

func domDescription(doc *goquery.Document) string {
	if d := metaDescription(doc); d != "" {
		return d
	}
	return cleanText(doc.Find(`[itemprop="description"], [class*="product-description"], [class*="product__description"]`).First().Text())
}

func domAvailability(doc *goquery.Document) string {
	if a := doc.Find(`[itemprop="availability"]`).First(); a.Length() > 0 {
		if v := firstNonEmpty(a.AttrOr("href", ""), a.AttrOr("content", "")); v != "" {
			return shortAvailability(v)
		}
	}
	if btn := doc.Find(`form[action*="/cart/add"] [type="submit"], [name="add"]`).First(); btn.Length() > 0 {
		if _, disabled := btn.Attr("disabled"); disabled || soldOutRe.MatchString(btn.Text()) {
			return "OutOfStock"
		}
		return "InStock"
	}
	return ""
}

type imageCandidate struct {
	url  string
	area int
}

// scanImages returns product images, largest declared area first, with
// decorative images filtered out by filename. og:image is the fallback.
func scanImages(doc *goquery.Document, base *url.URL) []string {
	if len(doc.Nodes) == 0 {
		return nil
	}
	nodes, err := htmlquery.QueryAll(doc.Nodes[0], "//img")
	if err != nil {
		return ogImage(doc)
	}

	seen := make(map[string]struct{})
	var candidates []imageCandidate
	for _, n := range nodes {
		if insideNoise(n) {
			continue
		}
		src := imageSource(n)
		if src == "" || strings.HasPrefix(src, "data:") || blacklisted(src) {
			continue
		}
		abs := resolve(base, src)
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		candidates = append(candidates, imageCandidate{url: abs, area: attrInt(n, "width") * attrInt(n, "height")})
	}
	if len(candidates) == 0 {
		return ogImage(doc)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].area > candidates[j].area })
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.url
	}
	return out
}

func imageSource(n *html.Node) string {
	for _, attr := range []string{"src", "data-src"} {
		if v := strings.TrimSpace(htmlquery.SelectAttr(n, attr)); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	if set := strings.TrimSpace(htmlquery.SelectAttr(n, "srcset")); set != "" {
		if fields := strings.Fields(strings.Split(set, ",")[0]); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

func blacklisted(src string) bool {
	name := strings.ToLower(path.Base(strings.SplitN(src, "?", 2)[0]))
	for _, tok := range filenameSplitRe.Split(name, -1) {
		if _, bad := imageBlacklist[tok]; bad {
			return true
		}
	}
	return false
}

func insideNoise(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		switch p.Data {
		case "header", "footer", "nav":
			return true
		}
	}
	return false
}

func attrInt(n *html.Node, name string) int {
	v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(htmlquery.SelectAttr(n, name)), "px"))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func resolve(base *url.URL, ref string) string {
	if strings.HasPrefix(ref, "//") {
		scheme := "https"
		if base != nil && base.Scheme != "" {
			scheme = base.Scheme
		}
		return scheme + ":" + ref
	}
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
