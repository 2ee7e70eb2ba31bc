package extract

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/fetcher"
	"github.com/IshaanNene/ShopStalk/internal/normalize"
	"github.com/IshaanNene/ShopStalk/internal/platform"
	"github.com/IshaanNene/ShopStalk/internal/types"
	"github.com/IshaanNene/ShopStalk/internal/urlnorm"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newChain() *Chain {
	cfg := config.DefaultConfig()
	return NewDefaultChain(cfg, fetcher.NewHTTPFetcher(cfg, testLogger), urlnorm.NewRules(nil), testLogger)
}

func newInput(t *testing.T, rawURL, body string, hint platform.Hint) *Input {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return &Input{
		URL:  u,
		Page: &types.Response{URL: rawURL, StatusCode: http.StatusOK, Body: []byte(body)},
		Doc:  doc,
		Hint: hint,
	}
}

const greensPage = `<html><head><title>Daily Greens</title>
<script type="application/ld+json">{"@type":"Product","name":"Daily Greens","offers":{"price":"99.00","priceCurrency":"USD"}}</script>
</head><body><div class="product-info"><h1>Daily Greens</h1>
<div class="price">$47.34 <br> Subscribe &amp; Save 15%<br>$40.24</div></div></body></html>`

func TestPlatformDocumentWinsOverStructuredData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/products/daily-greens.js" {
			w.Write([]byte(`{"id":42,"title":"Daily Greens","variants":[{"id":1,"title":"Default Title","price":4734}]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	in := newInput(t, srv.URL+"/products/daily-greens", greensPage, platform.Hint{Platform: platform.Shopify(), Currency: "USD"})
	out, err := newChain().Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, types.StrategyPlatformAPI, out.Strategy)
	require.Len(t, out.Products, 1)
	p := out.Products[0]
	require.NotNil(t, p.MainPrice)
	assert.Equal(t, "47.34", p.MainPrice.Amount.StringFixed(2))
	assert.Equal(t, "USD", p.MainPrice.Currency)
	assert.Equal(t, "shopify:42", p.ID)
	assert.Equal(t, "shopify", p.Platform)
}

func TestPlatformNotFoundFallsThroughToDOM(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	page := `<html><head><title>Daily Greens</title></head><body><div class="product-info"><h1>Daily Greens</h1>
<div class="price">$47.34 <br> Subscribe &amp; Save 15%<br>$40.24</div></div></body></html>`
	in := newInput(t, srv.URL+"/products/daily-greens", page, platform.Hint{Platform: platform.Shopify()})
	out, err := newChain().Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, types.StrategyHeuristicDOM, out.Strategy)

	p := out.Products[0]
	require.Len(t, p.Prices, 2)
	assert.Equal(t, "47.34", p.Prices[0].Amount.StringFixed(2))
	assert.Equal(t, types.PriceOneTime, p.Prices[0].Kind)
	assert.Equal(t, "40.24", p.Prices[1].Amount.StringFixed(2))
	assert.Equal(t, types.PriceSubscription, p.Prices[1].Kind)
	assert.Equal(t, "47.34", p.MainPrice.Amount.StringFixed(2))
}

func TestStructuredDataGraphAndAggregateOffer(t *testing.T) {
	page := `<html><head>
<script type="application/ld+json">{ broken </script>
<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
  {"@type":"WebPage","name":"Lamp page"},
  {"@type":["Product"],"name":"Lamp","sku":"LMP-1",
   "brand":{"@type":"Brand","name":"Lumo"},
   "image":{"@type":"ImageObject","url":"https://cdn.example.com/lamp.jpg"},
   "offers":{"@type":"AggregateOffer","lowPrice":"10.50","highPrice":25,"priceCurrency":"EUR","availability":"https://schema.org/InStock"}}
]}</script></head><body></body></html>`

	out, err := newChain().Extract(context.Background(), newInput(t, "https://shop.example.com/lamp", page, platform.Hint{}))
	require.NoError(t, err)
	assert.Equal(t, types.StrategyStructuredData, out.Strategy)

	p := out.Products[0]
	assert.Equal(t, "Lamp", p.Name)
	assert.Equal(t, "Lumo", p.Brand)
	assert.Equal(t, "InStock", p.Availability)
	assert.Equal(t, []string{"https://cdn.example.com/lamp.jpg"}, p.Images)
	assert.Equal(t, "sku:LMP-1", p.ID)
	require.Len(t, p.Prices, 2)
	assert.Equal(t, "10.50", p.Prices[0].Amount.StringFixed(2))
	assert.Equal(t, "EUR", p.Prices[0].Currency)
	assert.Equal(t, "25.00", p.Prices[1].Amount.StringFixed(2))
	assert.Equal(t, "10.50", p.MainPrice.Amount.StringFixed(2))
}

func TestMicrodataProduct(t *testing.T) {
	page := `<html><body><div itemscope itemtype="https://schema.org/Product">
<h1 itemprop="name">Kettle</h1>
<div itemprop="offers" itemscope itemtype="https://schema.org/Offer">
<meta itemprop="priceCurrency" content="GBP"><span itemprop="price" content="32.00">£32</span>
<link itemprop="availability" href="https://schema.org/OutOfStock"></div></div></body></html>`

	out, err := newChain().Extract(context.Background(), newInput(t, "https://shop.example.com/kettle", page, platform.Hint{}))
	require.NoError(t, err)
	assert.Equal(t, types.StrategyStructuredData, out.Strategy)
	p := out.Products[0]
	assert.Equal(t, "Kettle", p.Name)
	assert.Equal(t, "OutOfStock", p.Availability)
	require.NotNil(t, p.MainPrice)
	assert.Equal(t, "32.00", p.MainPrice.Amount.StringFixed(2))
	assert.Equal(t, "GBP", p.MainPrice.Currency)
}

func TestMicrodataProductInsidePageScope(t *testing.T) {
	page := `<html><body itemscope itemtype="https://schema.org/WebPage">
<span itemprop="name">Kitchen</span>
<div itemprop="mainEntity" itemscope itemtype="https://schema.org/Product">
<h1 itemprop="name">Teapot</h1>
<div itemprop="offers" itemscope itemtype="https://schema.org/Offer">
<meta itemprop="priceCurrency" content="EUR"><span itemprop="price" content="18.50">18,50 €</span></div></div></body></html>`

	out, err := newChain().Extract(context.Background(), newInput(t, "https://shop.example.com/teapot", page, platform.Hint{}))
	require.NoError(t, err)
	assert.Equal(t, types.StrategyStructuredData, out.Strategy)
	p := out.Products[0]
	assert.Equal(t, "Teapot", p.Name)
	require.NotNil(t, p.MainPrice)
	assert.Equal(t, "18.50", p.MainPrice.Amount.StringFixed(2))
	assert.Equal(t, "EUR", p.MainPrice.Currency)
}

func TestBundlePage(t *testing.T) {
	page := `<html><head><title>Starter Bundle</title>
<script type="application/ld+json">[
 {"@type":"Product","name":"Shampoo","sku":"A1","offers":{"price":"12.00","priceCurrency":"USD"}},
 {"@type":"Product","name":"Conditioner","sku":"B2","offers":{"price":"14.00","priceCurrency":"USD"}}
]</script></head><body><main><h1>Starter Bundle</h1><span class="price">$22.00</span></main></body></html>`

	out, err := newChain().Extract(context.Background(), newInput(t, "https://shop.example.com/starter-bundle", page, platform.Hint{}))
	require.NoError(t, err)
	require.Len(t, out.Products, 3)

	head := out.Products[0]
	assert.True(t, head.IsBundle)
	assert.Equal(t, "Starter Bundle", head.Name)
	assert.Equal(t, []string{"A1", "B2"}, head.BundleItems)
	require.NotNil(t, head.MainPrice)
	assert.Equal(t, "22.00", head.MainPrice.Amount.StringFixed(2))

	assert.Equal(t, "Shampoo", out.Products[1].Name)
	assert.Equal(t, "sku:B2", out.Products[2].ID)
}

func TestHeuristicCompareAtAndImages(t *testing.T) {
	page := `<html><head><meta property="og:image" content="https://cdn.example.com/og.jpg"></head><body>
<header><img src="/img/banner.jpg" width="2000" height="400"></header>
<div class="product-info">
  <h1 class="product-title">Mug</h1>
  <span class="price-label">Price</span>
  <span class="price"><del>$20.00</del> $15.00</span>
  <img src="/img/logo.png" width="900" height="900">
  <img src="/img/mug-small.jpg" width="100" height="100">
  <img data-src="/img/mug-large.jpg" width="800" height="800">
  <img src="data:image/gif;base64,R0lGOD">
</div>
<div class="related-products"><span class="price">$3.00</span></div>
</body></html>`

	out, err := newChain().Extract(context.Background(), newInput(t, "https://shop.example.com/mug", page, platform.Hint{}))
	require.NoError(t, err)
	assert.Equal(t, types.StrategyHeuristicDOM, out.Strategy)

	p := out.Products[0]
	assert.Equal(t, "Mug", p.Name)
	require.Len(t, p.Prices, 2)
	assert.Equal(t, types.PriceCompareAt, p.Prices[0].Kind)
	assert.Equal(t, "20.00", p.Prices[0].Amount.StringFixed(2))
	assert.Equal(t, "15.00", p.MainPrice.Amount.StringFixed(2))
	assert.Equal(t, []string{
		"https://shop.example.com/img/mug-large.jpg",
		"https://shop.example.com/img/mug-small.jpg",
	}, p.Images)
}

func TestHeuristicOGImageFallbackAndNoPrice(t *testing.T) {
	page := `<html><head><meta property="og:image" content="https://cdn.example.com/og.jpg"></head>
<body><h1>Gift Card</h1><img src="/img/site-logo.svg"></body></html>`

	out, err := newChain().Extract(context.Background(), newInput(t, "https://shop.example.com/gift-card", page, platform.Hint{}))
	require.NoError(t, err)
	p := out.Products[0]
	assert.Equal(t, []string{"https://cdn.example.com/og.jpg"}, p.Images)
	assert.Nil(t, p.MainPrice)
	assert.NotNil(t, p.Prices)
}

func TestChainFailureListsAttempts(t *testing.T) {
	_, err := newChain().Extract(context.Background(), newInput(t, "https://shop.example.com/x", `<html><body></body></html>`, platform.Hint{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExtractionFailed)

	var ee *types.ExtractionError
	require.True(t, errors.As(err, &ee))
	require.Len(t, ee.Attempts, 3)
	assert.Equal(t, types.StrategyPlatformAPI, ee.Attempts[0].Strategy)
	assert.ErrorIs(t, ee.Attempts[0].Err, types.ErrNotApplicable)
	assert.Equal(t, types.StrategyStructuredData, ee.Attempts[1].Strategy)
	assert.Equal(t, types.StrategyHeuristicDOM, ee.Attempts[2].Strategy)
}

type panicStrategy struct{}

func (panicStrategy) Kind() StrategyKind { return "panicky" }
func (panicStrategy) Extract(context.Context, *Input) ([]*types.ProductRecord, error) {
	panic("boom")
}

func TestChainRecoversStrategyPanic(t *testing.T) {
	norm := normalize.New(nil)
	chain := NewChain([]Strategy{panicStrategy{}, NewHeuristicStrategy(norm, nil, testLogger)},
		urlnorm.NewRules(nil), testLogger)

	out, err := chain.Extract(context.Background(), newInput(t, "https://shop.example.com/x", `<h1>Thing</h1>`, platform.Hint{}))
	require.NoError(t, err)
	assert.Equal(t, types.StrategyHeuristicDOM, out.Strategy)
}

func TestNameFallback(t *testing.T) {
	page := `<html><head><title>Lamp | Store</title><script type="application/ld+json">{"@type":"Product","description":"  A   lamp ",` +
		`"offers":{"price":"5.00","priceCurrency":"USD"}}</script></head></html>`

	out, err := newChain().Extract(context.Background(), newInput(t, "https://shop.example.com/lamp", page, platform.Hint{}))
	require.NoError(t, err)
	p := out.Products[0]
	assert.Equal(t, "Lamp | Store", p.Name)
	assert.Equal(t, "A lamp", p.Description)

	u, _ := url.Parse("https://shop.example.com/products/blue-lamp")
	assert.Equal(t, "blue lamp", fallbackName(&Input{URL: u}, urlnorm.NewRules(nil)))
}

func TestOptionScanner(t *testing.T) {
	page := `<form>
<select name="quantity">
  <option value="1">1 bottle - $20.00</option>
  <option value="3" selected>3 bottles - $54.00</option>
</select>
<input type="radio" id="sub" name="purchase_type" value="subscribe" checked>
<label for="sub">Subscribe &amp; save 10% $18.00</label>
<label><input type="radio" name="purchase_type" value="onetime"> One-time purchase $20.00</label>
</form>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	opts := NewOptionScanner(normalize.New(nil), true).Scan(doc)
	require.Len(t, opts, 4)

	assert.Equal(t, types.OptionQuantity, opts[0].Type)
	assert.Equal(t, "1", opts[0].Value)
	assert.Equal(t, "bottle", opts[0].Unit)
	assert.False(t, opts[0].IsDefault)
	assert.True(t, opts[1].IsDefault)
	assert.Equal(t, "54.00", opts[1].Prices[0].Amount.StringFixed(2))

	assert.Equal(t, types.OptionSubscription, opts[2].Type)
	assert.True(t, opts[2].IsDefault)
	require.Len(t, opts[2].Prices, 1)
	assert.Equal(t, types.PriceSubscription, opts[2].Prices[0].Kind)

	assert.Equal(t, "One-time purchase $20.00", opts[3].Label)
	assert.Equal(t, types.PriceOneTime, opts[3].Prices[0].Kind)

	assert.Empty(t, NewOptionScanner(normalize.New(nil), false).Scan(doc))
}
