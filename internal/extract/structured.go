package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShopStalk/internal/normalize"
	"github.com/IshaanNene/ShopStalk/internal/parser"
	"github.com/IshaanNene/ShopStalk/internal/platform"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

// StructuredStrategy reads schema.org Product data from JSON-LD, then
// microdata.
type StructuredStrategy struct {
	norm   *normalize.Normalizer
	opts   *OptionScanner
	sde    *parser.StructuredDataExtractor
	logger *slog.Logger
}

// NewStructuredStrategy creates a StructuredStrategy.
func NewStructuredStrategy(norm *normalize.Normalizer, opts *OptionScanner, logger *slog.Logger) *StructuredStrategy {
	return &StructuredStrategy{
		norm:   norm,
		opts:   opts,
		sde:    parser.NewStructuredDataExtractor(logger),
		logger: logger.With("component", "structured_strategy"),
	}
}

// Kind implements Strategy.
func (s *StructuredStrategy) Kind() StrategyKind { return types.StrategyStructuredData }

// Extract implements Strategy.
func (s *StructuredStrategy) Extract(_ context.Context, in *Input) ([]*types.ProductRecord, error) {
	if in.Doc == nil {
		return nil, types.ErrNotApplicable
	}
	pageURL := in.URL.String()
	currency := pageCurrency(in)

	nodes, errs := s.sde.JSONLD(in.Doc, pageURL)
	for _, err := range errs {
		s.logger.Debug("malformed json-ld block", "url", pageURL, "error", err)
	}

	var products []map[string]any
	for _, n := range nodes {
		if parser.HasType(n.Data, "Product", "ProductModel") {
			products = append(products, n.Data)
		}
	}

	if len(products) > 1 && isBundlePage(in) {
		return s.bundle(in, products, currency), nil
	}

	for _, node := range products {
		if !hasOffer(node) {
			continue
		}
		rec := s.fromNode(node, currency)
		if rec.Name == "" && len(rec.Prices) == 0 {
			continue
		}
		rec.BuyingOptions = s.opts.Scan(in.Doc)
		return []*types.ProductRecord{rec}, nil
	}

	for _, md := range s.sde.Microdata(in.Doc) {
		if !microdataProduct(md.Data) {
			continue
		}
		rec := s.fromNode(md.Data, currency)
		if len(rec.Prices) == 0 {
			continue
		}
		rec.BuyingOptions = s.opts.Scan(in.Doc)
		return []*types.ProductRecord{rec}, nil
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("no usable product node: %w", errors.Join(errs...))
	}
	return nil, errors.New("no product node with offers or price")
}

// bundle emits the bundle record followed by one record per constituent.
func (s *StructuredStrategy) bundle(in *Input, nodes []map[string]any, currency string) []*types.ProductRecord {
	head := &types.ProductRecord{
		Name:        headline(in.Doc),
		Prices:      scanPrices(in.Doc, s.norm, currency),
		Description: metaDescription(in.Doc),
		IsBundle:    true,
		Images:      ogImage(in.Doc),
	}
	out := []*types.ProductRecord{head}
	for _, node := range nodes {
		rec := s.fromNode(node, currency)
		if rec.Name == "" {
			continue
		}
		head.BundleItems = append(head.BundleItems, firstNonEmpty(rec.SKU, rec.Name))
		out = append(out, rec)
	}
	head.BuyingOptions = s.opts.Scan(in.Doc)
	return out
}

func (s *StructuredStrategy) fromNode(node map[string]any, currency string) *types.ProductRecord {
	rec := &types.ProductRecord{
		Name:        cleanText(str(node["name"])),
		Description: htmlToText(str(node["description"])),
		SKU:         firstNonEmpty(str(node["sku"]), str(node["mpn"]), str(node["gtin13"]), str(node["gtin"]), str(node["gtin12"]), str(node["gtin14"]), str(node["gtin8"])),
		Brand:       named(node["brand"]),
		Images:      images(node["image"]),
	}

	var raws []normalize.RawPrice
	if p := str(node["price"]); p != "" {
		raws = append(raws, normalize.RawPrice{Amount: p, Currency: firstNonEmpty(str(node["priceCurrency"]), currency)})
	}
	if a := str(node["availability"]); a != "" {
		rec.Availability = shortAvailability(a)
	}
	for _, offer := range objects(node["offers"]) {
		raws = append(raws, offerPrices(offer, currency)...)
		if rec.Availability == "" {
			rec.Availability = shortAvailability(str(offer["availability"]))
		}
		if rec.SKU == "" {
			rec.SKU = str(offer["sku"])
		}
	}
	rec.Prices, _ = s.norm.Normalize(raws, nil)
	return rec
}

func offerPrices(offer map[string]any, currency string) []normalize.RawPrice {
	cur := firstNonEmpty(str(offer["priceCurrency"]), currency)
	var raws []normalize.RawPrice

	if parser.HasType(offer, "AggregateOffer") {
		for _, key := range []string{"lowPrice", "highPrice"} {
			if v := str(offer[key]); v != "" {
				raws = append(raws, normalize.RawPrice{Amount: v, Currency: cur, Kind: types.PriceOneTime})
			}
		}
		if len(raws) == 0 {
			if v := str(offer["price"]); v != "" {
				raws = append(raws, normalize.RawPrice{Amount: v, Currency: cur, Kind: types.PriceOneTime})
			}
		}
		for _, sub := range objects(offer["offers"]) {
			raws = append(raws, offerPrices(sub, cur)...)
		}
		return raws
	}

	if v := str(offer["price"]); v != "" {
		raws = append(raws, normalize.RawPrice{Amount: v, Currency: cur, Kind: types.PriceOneTime})
	}
	for _, spec := range objects(offer["priceSpecification"]) {
		v := str(spec["price"])
		if v == "" {
			continue
		}
		kind := types.PriceOneTime
		if pt := strings.ToLower(str(spec["priceType"])); strings.Contains(pt, "strikethrough") || strings.Contains(pt, "listprice") || strings.Contains(pt, "msrp") {
			kind = types.PriceCompareAt
		}
		if parser.HasType(spec, "UnitPriceSpecification") && spec["billingDuration"] != nil {
			kind = types.PriceSubscription
		}
		raws = append(raws, normalize.RawPrice{Amount: v, Currency: firstNonEmpty(str(spec["priceCurrency"]), cur), Kind: kind})
	}
	return raws
}

func hasOffer(node map[string]any) bool {
	_, offers := node["offers"]
	_, price := node["price"]
	return offers || price
}

func microdataProduct(data map[string]any) bool {
	t := str(data["@type"])
	if !strings.Contains(t, "schema.org/Product") {
		return false
	}
	_, price := data["price"]
	return price
}

func isBundlePage(in *Input) bool {
	if in.URL != nil && strings.Contains(strings.ToLower(in.URL.Path), "bundle") {
		return true
	}
	title := ""
	if in.Doc != nil {
		title = in.Doc.Find("title").First().Text()
	}
	if title == "" && in.Page != nil {
		title = in.Page.Title
	}
	return strings.Contains(strings.ToLower(title), "bundle")
}

func pageCurrency(in *Input) string {
	if in.Hint.Currency != "" {
		return in.Hint.Currency
	}
	return platform.PageCurrency(in.Doc)
}

// str renders scalar JSON values; json.Number keeps its exact text.
func str(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return fmt.Sprintf("%v", val)
	case map[string]any:
		return firstNonEmpty(str(val["@id"]), str(val["name"]))
	case []any:
		if len(val) > 0 {
			return str(val[0])
		}
	}
	return ""
}

func named(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return cleanText(str(val["name"]))
	case []any:
		if len(val) > 0 {
			return named(val[0])
		}
		return ""
	default:
		return cleanText(str(v))
	}
}

func objects(v any) []map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return []map[string]any{val}
	case []any:
		var out []map[string]any
		for _, el := range val {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func images(v any) []string {
	var out []string
	switch val := v.(type) {
	case string:
		if val != "" {
			out = append(out, val)
		}
	case map[string]any:
		if u := firstNonEmpty(str(val["url"]), str(val["contentUrl"])); u != "" {
			out = append(out, u)
		}
	case []any:
		for _, el := range val {
			out = append(out, images(el)...)
		}
	}
	return out
}

// shortAvailability turns "https://schema.org/InStock" into "InStock".
func shortAvailability(a string) string {
	a = strings.TrimSpace(a)
	if idx := strings.LastIndexAny(a, "/:#"); idx >= 0 {
		a = a[idx+1:]
	}
	return a
}

func htmlToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return cleanText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return cleanText(s)
	}
	return cleanText(doc.Text())
}

func headline(doc *goquery.Document) string {
	if h := cleanText(doc.Find("h1").First().Text()); h != "" {
		return h
	}
	return cleanText(doc.Find("title").First().Text())
}

func metaDescription(doc *goquery.Document) string {
	if d, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		return cleanText(d)
	}
	return cleanText(doc.Find(`meta[property="og:description"]`).AttrOr("content", ""))
}

func ogImage(doc *goquery.Document) []string {
	if img := strings.TrimSpace(doc.Find(`meta[property="og:image"]`).AttrOr("content", "")); img != "" {
		return []string{img}
	}
	return nil
}
