package parser

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShopStalk/internal/types"
	"github.com/IshaanNene/ShopStalk/internal/urlnorm"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const testHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Widget - Test Shop</title>
    <meta name="description" content="A fine widget">
    <meta property="og:type" content="product">
    <meta property="og:image" content="https://shop.example.com/cdn/widget.jpg">
    <meta property="product:price:amount" content="19.99">
    <script type="application/ld+json">
    {"@context":"https://schema.org","@graph":[
      {"@type":"BreadcrumbList","itemListElement":[]},
      {"@type":["Product","Thing"],"name":"Widget","offers":{"@type":"Offer","price":"19.99","priceCurrency":"USD"}}
    ]}
    </script>
    <script type="application/ld+json">{ "broken": </script>
    <script type="application/ld+json">[{"@type":"Organization","name":"Test Shop"}]</script>
</head>
<body>
    <div itemscope itemtype="https://schema.org/Product">
        <h1 itemprop="name">Widget</h1>
        <div itemprop="offers" itemscope itemtype="https://schema.org/Offer">
            <span itemprop="price" content="19.99">$19.99</span>
            <meta itemprop="priceCurrency" content="USD">
        </div>
    </div>
    <a href="/products/gadget">Gadget</a>
    <a href="https://shop.example.com/products/gadget?utm_source=nav#top">Gadget again</a>
    <a href="../collections/all">All</a>
    <a href="https://other.example.com/products/x">Elsewhere</a>
    <a href="/cart">Cart</a>
    <a href="/en-us/products/gadget">Mirror</a>
    <a href="#reviews">Reviews</a>
    <a href="mailto:hi@shop.example.com">Mail</a>
    <a href="javascript:void(0)">JS</a>
    <a href="/products/widget">Self</a>
</body>
</html>`

func testDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

// --- Structured Data Tests ---

func TestJSONLDFlattensGraphAndSkipsMalformed(t *testing.T) {
	sde := NewStructuredDataExtractor(testLogger)
	nodes, errs := sde.JSONLD(testDoc(t, testHTML), "https://shop.example.com/products/widget")

	if len(errs) != 1 {
		t.Fatalf("expected 1 malformed block, got %d", len(errs))
	}
	if !errors.Is(errs[0], types.ErrMalformedStructuredData) {
		t.Errorf("expected ErrMalformedStructuredData, got %v", errs[0])
	}
	var sdErr *types.StructuredDataError
	if !errors.As(errs[0], &sdErr) || sdErr.Block != 1 {
		t.Errorf("expected block index 1, got %v", errs[0])
	}

	var product map[string]any
	for _, n := range nodes {
		if HasType(n.Data, "Product") {
			product = n.Data
		}
	}
	if product == nil {
		t.Fatal("expected a Product node from @graph")
	}
	if product["name"] != "Widget" {
		t.Errorf("expected name Widget, got %v", product["name"])
	}

	foundOrg := false
	for _, n := range nodes {
		if HasType(n.Data, "Organization") {
			foundOrg = true
		}
	}
	if !foundOrg {
		t.Error("expected array block to be flattened")
	}
}

func TestHasTypeVariants(t *testing.T) {
	tests := []struct {
		node map[string]any
		want bool
	}{
		{map[string]any{"@type": "Product"}, true},
		{map[string]any{"@type": "product"}, true},
		{map[string]any{"@type": "schema:Product"}, true},
		{map[string]any{"@type": "https://schema.org/Product"}, true},
		{map[string]any{"@type": []any{"Thing", "Product"}}, true},
		{map[string]any{"@type": "Offer"}, false},
		{map[string]any{}, false},
	}
	for _, tt := range tests {
		if got := HasType(tt.node, "Product"); got != tt.want {
			t.Errorf("HasType(%v) = %v, want %v", tt.node, got, tt.want)
		}
	}
}

func TestMicrodataFoldsNestedOffer(t *testing.T) {
	sde := NewStructuredDataExtractor(testLogger)
	items := sde.Microdata(testDoc(t, testHTML))
	if len(items) != 1 {
		t.Fatalf("expected 1 top-level item, got %d", len(items))
	}
	data := items[0].Data
	if !HasType(data, "Product") {
		t.Errorf("expected Product type, got %v", data["@type"])
	}
	if data["price"] != "19.99" || data["priceCurrency"] != "USD" {
		t.Errorf("expected nested offer fields, got %v", data)
	}
	if data["offers"] != true {
		t.Errorf("expected offers scope marker, got %v", data["offers"])
	}
}

func TestMicrodataProductNestedInPage(t *testing.T) {
	page := `<html><body>
	<div itemscope itemtype="https://schema.org/WebPage">
		<span itemprop="name">Widget page</span>
		<div itemprop="mainEntity" itemscope itemtype="https://schema.org/Product">
			<h1 itemprop="name">Nested Widget</h1>
			<div itemprop="offers" itemscope itemtype="https://schema.org/Offer">
				<meta itemprop="price" content="12.00">
				<meta itemprop="priceCurrency" content="EUR">
			</div>
			<div itemprop="isRelatedTo" itemscope itemtype="https://schema.org/Product">
				<span itemprop="name">Accessory</span>
			</div>
		</div>
	</div></body></html>`

	items := NewStructuredDataExtractor(testLogger).Microdata(testDoc(t, page))
	if len(items) != 2 {
		t.Fatalf("expected page item and product item, got %d", len(items))
	}
	if !HasType(items[0].Data, "WebPage") {
		t.Errorf("first item type = %v", items[0].Data["@type"])
	}
	product := items[1].Data
	if !HasType(product, "Product") {
		t.Fatalf("second item type = %v", product["@type"])
	}
	if product["name"] != "Nested Widget" || product["price"] != "12.00" || product["priceCurrency"] != "EUR" {
		t.Errorf("unexpected product fields %v", product)
	}
}

func TestOpenGraphAndMeta(t *testing.T) {
	sde := NewStructuredDataExtractor(testLogger)
	doc := testDoc(t, testHTML)

	og := sde.OpenGraph(doc)
	if og["og:type"] != "product" {
		t.Errorf("expected og:type product, got %q", og["og:type"])
	}
	if og["product:price:amount"] != "19.99" {
		t.Errorf("expected product price meta, got %q", og["product:price:amount"])
	}

	meta := sde.MetaTags(doc)
	if meta["title"] != "Widget - Test Shop" {
		t.Errorf("unexpected title %q", meta["title"])
	}

	all := sde.Extract(doc, "https://shop.example.com/products/widget")
	kinds := map[StructuredDataType]bool{}
	for _, sd := range all {
		kinds[sd.Type] = true
	}
	for _, k := range []StructuredDataType{JSONLD, Microdata, OpenGraph, MetaTags} {
		if !kinds[k] {
			t.Errorf("expected %s in combined extraction", k)
		}
	}
}

// --- Link Harvester Tests ---

func newHarvester(limit int) *LinkHarvester {
	return NewLinkHarvester(urlnorm.New([]string{"utm_*"}), urlnorm.NewRules(nil), limit, testLogger)
}

func TestHarvestFiltersAndDedups(t *testing.T) {
	h := newHarvester(100)
	page := types.CanonicalURL("https://shop.example.com/products/widget")

	links := h.Harvest(page, testDoc(t, testHTML), []string{"https://shop.example.com/pages/about"})

	want := []types.CanonicalURL{
		"https://shop.example.com/products/gadget",
		"https://shop.example.com/collections/all",
		"https://shop.example.com/pages/about",
	}
	if len(links) != len(want) {
		t.Fatalf("expected %d links, got %d: %v", len(want), len(links), links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("link %d: expected %q, got %q", i, want[i], links[i])
		}
	}
}

func TestHarvestCap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 150; i++ {
		sb.WriteString(`<a href="/products/p`)
		sb.WriteString(strings.Repeat("x", i+1))
		sb.WriteString(`">p</a>`)
	}
	sb.WriteString("</body></html>")

	links := newHarvester(100).Harvest("https://shop.example.com/", testDoc(t, sb.String()), nil)
	if len(links) != 100 {
		t.Errorf("expected cap of 100, got %d", len(links))
	}
}

func TestHarvestNilDoc(t *testing.T) {
	links := newHarvester(10).Harvest("https://shop.example.com/", nil, []string{"/products/a", "https://shop.example.com/products/b"})
	if len(links) != 2 {
		t.Errorf("expected relative and absolute renderer links, got %v", links)
	}
}
