package parser

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// StructuredDataType identifies the type of structured data.
type StructuredDataType string

const (
	JSONLD    StructuredDataType = "json-ld"
	Microdata StructuredDataType = "microdata"
	OpenGraph StructuredDataType = "opengraph"
	MetaTags  StructuredDataType = "meta"
)

// StructuredData represents one structured data node found on a page.
type StructuredData struct {
	Type  StructuredDataType `json:"type"`
	Data  map[string]any     `json:"data"`
	Block int                `json:"block"`
}

// StructuredDataExtractor reads JSON-LD, microdata, OpenGraph and meta tags.
type StructuredDataExtractor struct {
	logger *slog.Logger
}

// NewStructuredDataExtractor creates a new structured data extractor.
func NewStructuredDataExtractor(logger *slog.Logger) *StructuredDataExtractor {
	return &StructuredDataExtractor{
		logger: logger.With("component", "structured_data"),
	}
}

// Extract finds and parses all structured data in a document. Malformed
// JSON-LD blocks are logged and skipped.
func (sde *StructuredDataExtractor) Extract(doc *goquery.Document, pageURL string) []StructuredData {
	nodes, errs := sde.JSONLD(doc, pageURL)
	for _, err := range errs {
		sde.logger.Debug("skipping json-ld block", "url", pageURL, "error", err)
	}
	results := nodes

	results = append(results, sde.Microdata(doc)...)

	if og := sde.OpenGraph(doc); len(og) > 0 {
		results = append(results, StructuredData{Type: OpenGraph, Data: stringMap(og)})
	}
	if meta := sde.MetaTags(doc); len(meta) > 0 {
		results = append(results, StructuredData{Type: MetaTags, Data: stringMap(meta)})
	}
	return results
}

// JSONLD parses every <script type="application/ld+json"> block. Arrays and
// @graph containers are flattened so each returned node is one object. Each
// block that fails to decode yields a *types.StructuredDataError.
func (sde *StructuredDataExtractor) JSONLD(doc *goquery.Document, pageURL string) ([]StructuredData, []error) {
	var results []StructuredData
	var errs []error

	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, sel *goquery.Selection) {
		raw := cleanJSONLD(sel.Text())
		if raw == "" {
			return
		}

		data, err := decodeJSONLD(raw)
		if err != nil {
			errs = append(errs, &types.StructuredDataError{URL: pageURL, Block: i, Err: err})
			return
		}
		for _, node := range flattenJSONLD(data) {
			results = append(results, StructuredData{Type: JSONLD, Data: node, Block: i})
		}
	})

	return results, errs
}

// decodeJSONLD keeps numbers as json.Number so prices stay exact.
func decodeJSONLD(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return data, nil
}

// cleanJSONLD removes HTML comment and CDATA wrappers some themes emit.
func cleanJSONLD(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, wrap := range [][2]string{{"<!--", "-->"}, {"<![CDATA[", "]]>"}, {"//<![CDATA[", "//]]>"}} {
		if strings.HasPrefix(raw, wrap[0]) && strings.HasSuffix(raw, wrap[1]) {
			raw = strings.TrimSpace(raw[len(wrap[0]) : len(raw)-len(wrap[1])])
		}
	}
	return raw
}

func flattenJSONLD(v any) []map[string]any {
	switch val := v.(type) {
	case []any:
		var out []map[string]any
		for _, el := range val {
			out = append(out, flattenJSONLD(el)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{val}
		if graph, ok := val["@graph"]; ok {
			out = append(out, flattenJSONLD(graph)...)
		}
		return out
	default:
		return nil
	}
}

// Microdata parses elements with itemscope/itemprop attributes. Properties
// of nested scopes (such as an Offer inside a Product) are folded into the
// item that contains them; nested itemtypes are kept under "@types". Each
// top-level scope is one item, and so is an outermost Product scope nested
// in another item (a Product inside a WebPage).
func (sde *StructuredDataExtractor) Microdata(doc *goquery.Document) []StructuredData {
	var results []StructuredData

	doc.Find("[itemscope]").Each(func(i int, sel *goquery.Selection) {
		if parents := sel.ParentsFiltered("[itemscope]"); parents.Length() > 0 {
			if !isProductScope(sel) || parents.FilterFunction(func(_ int, p *goquery.Selection) bool { return isProductScope(p) }).Length() > 0 {
				return
			}
		}
		if data := microdataItem(sel); len(data) > 0 {
			results = append(results, StructuredData{Type: Microdata, Data: data, Block: i})
		}
	})

	return results
}

func microdataItem(sel *goquery.Selection) map[string]any {
	data := make(map[string]any)

	itemType, _ := sel.Attr("itemtype")
	if itemType != "" {
		data["@type"] = itemType
	}
	var nested []any
	sel.Find("[itemscope][itemtype]").Each(func(_ int, s *goquery.Selection) {
		t, _ := s.Attr("itemtype")
		nested = append(nested, t)
	})
	if len(nested) > 0 {
		data["@types"] = nested
	}

	sel.Find("[itemprop]").Each(func(j int, prop *goquery.Selection) {
		name, _ := prop.Attr("itemprop")
		if name == "" {
			return
		}
		if _, scoped := prop.Attr("itemscope"); scoped {
			data[name] = true
			return
		}

		var value string
		if content, exists := prop.Attr("content"); exists {
			value = content
		} else if href, exists := prop.Attr("href"); exists {
			value = href
		} else if src, exists := prop.Attr("src"); exists {
			value = src
		} else if datetime, exists := prop.Attr("datetime"); exists {
			value = datetime
		} else {
			value = strings.TrimSpace(prop.Text())
		}

		if value == "" {
			return
		}
		if _, dup := data[name]; !dup {
			data[name] = value
		}
	})
	return data
}

func isProductScope(sel *goquery.Selection) bool {
	t, _ := sel.Attr("itemtype")
	if t == "" {
		return false
	}
	return HasType(map[string]any{"@type": t}, "Product", "ProductGroup", "ProductModel", "IndividualProduct")
}

// OpenGraph parses og: and product: meta tags. Keys keep their prefix.
func (sde *StructuredDataExtractor) OpenGraph(doc *goquery.Document) map[string]string {
	data := make(map[string]string)

	doc.Find(`meta[property^="og:"], meta[property^="product:"], meta[name^="og:"]`).Each(func(i int, sel *goquery.Selection) {
		property, _ := sel.Attr("property")
		if property == "" {
			property, _ = sel.Attr("name")
		}
		content, _ := sel.Attr("content")
		if property != "" && content != "" {
			if _, dup := data[property]; !dup {
				data[property] = strings.TrimSpace(content)
			}
		}
	})

	return data
}

// MetaTags parses the title and standard meta tags.
func (sde *StructuredDataExtractor) MetaTags(doc *goquery.Document) map[string]string {
	data := make(map[string]string)

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		data["title"] = title
	}

	for _, name := range []string{"description", "keywords", "author", "generator", "shopify-digital-wallet"} {
		content, exists := doc.Find(`meta[name="` + name + `"]`).Attr("content")
		if exists && content != "" {
			data[name] = content
		}
	}

	canonical, exists := doc.Find(`link[rel="canonical"]`).Attr("href")
	if exists && canonical != "" {
		data["canonical"] = canonical
	}

	return data
}

// HasType reports whether a JSON-LD or microdata node is typed as one of the
// given schema.org names. "@type" may be a string or a list, and may carry a
// vocabulary prefix ("schema:Product", "https://schema.org/Product").
func HasType(node map[string]any, names ...string) bool {
	for _, t := range typeNames(node["@type"]) {
		for _, n := range names {
			if strings.EqualFold(t, n) {
				return true
			}
		}
	}
	return false
}

func typeNames(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{shortType(val)}
	case []any:
		var out []string
		for _, el := range val {
			if s, ok := el.(string); ok {
				out = append(out, shortType(s))
			}
		}
		return out
	default:
		return nil
	}
}

func shortType(t string) string {
	t = strings.TrimSpace(t)
	if idx := strings.LastIndexAny(t, "/:#"); idx >= 0 {
		t = t[idx+1:]
	}
	return t
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
