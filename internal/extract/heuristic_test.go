package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/ShopStalk/internal/normalize"
	"github.com/IshaanNene/ShopStalk/internal/platform"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

func TestScanPricesSiblingElements(t *testing.T) {
	type want struct {
		amount string
		kind   types.PriceKind
	}
	tests := []struct {
		name string
		html string
		want []want
	}{
		{
			name: "old and new price classes",
			html: `<span class="price old-price">$47.34</span><span class="price new-price">$40.24</span>`,
			want: []want{{"47.34", types.PriceCompareAt}, {"40.24", types.PriceOneTime}},
		},
		{
			name: "regular and sale price classes",
			html: `<span class="regular-price">$30.00</span><span class="sale-price">$24.00</span>`,
			want: []want{{"30.00", types.PriceCompareAt}, {"24.00", types.PriceOneTime}},
		},
		{
			name: "original price class after current price",
			html: `<span class="price">$19.00</span><span class="original-price">$25.00</span>`,
			want: []want{{"19.00", types.PriceOneTime}, {"25.00", types.PriceCompareAt}},
		},
		{
			name: "unlabelled higher then lower",
			html: `<span class="price">$47.34</span><span class="price">$40.24</span>`,
			want: []want{{"47.34", types.PriceCompareAt}, {"40.24", types.PriceOneTime}},
		},
		{
			name: "unlabelled lower then higher stays one-time",
			html: `<span class="price">$10.00</span><span class="price">$20.00</span>`,
			want: []want{{"10.00", types.PriceOneTime}, {"20.00", types.PriceOneTime}},
		},
		{
			name: "lone regular price is the current price",
			html: `<span class="price-item price-item--regular">$15.00</span>`,
			want: []want{{"15.00", types.PriceOneTime}},
		},
		{
			name: "regular price equal to sale price is dropped",
			html: `<span class="price-item--regular">$15.00</span><s class="price-item">$20.00</s><span class="price-item--sale">$15.00</span>`,
			want: []want{{"20.00", types.PriceCompareAt}, {"15.00", types.PriceOneTime}},
		},
		{
			name: "subscription label keeps its own kind",
			html: `<span class="price">$47.34</span><span class="price">$40.24 Subscribe &amp; Save</span>`,
			want: []want{{"47.34", types.PriceOneTime}, {"40.24", types.PriceSubscription}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body><main>` + tt.html + `</main></body></html>`))
			require.NoError(t, err)

			quotes := scanPrices(doc, normalize.New(nil), "")
			require.Len(t, quotes, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w.amount, quotes[i].Amount.StringFixed(2), "quote %d amount", i)
				assert.Equal(t, w.kind, quotes[i].Kind, "quote %d kind", i)
			}
		})
	}
}

func TestHeuristicMainPriceSkipsPriorPrice(t *testing.T) {
	page := `<html><body><main><h1>Greens</h1>
<span class="price old-price">$47.34</span><span class="price new-price">$40.24</span></main></body></html>`

	out, err := newChain().Extract(context.Background(), newInput(t, "https://shop.example.com/greens", page, platform.Hint{}))
	require.NoError(t, err)
	require.NotNil(t, out.Products[0].MainPrice)
	assert.Equal(t, "40.24", out.Products[0].MainPrice.Amount.StringFixed(2))
}
