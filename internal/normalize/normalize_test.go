package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseAmount(t *testing.T) {
	n := New(nil)
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"19.99", "19.99", true},
		{"$1,299.99", "1299.99", true},
		{"1.299,99", "1299.99", true},
		{"12,50", "12.5", true},
		{"1,299", "1299", true},
		{"1.234.567", "1234567", true},
		{"0", "0", true},
		{"0.00", "0", true},
		{"USD 45", "45", true},
		{"free", "", false},
		{"", "", false},
		{"..", "", false},
		{".99", "0.99", true},
		{"19.99 - 24.99", "", false},
		{"$10 to $20", "", false},
		{"-5.00", "", false},
		{"$-5", "", false},
		{"1.5e2", "", false},
		{"1e5", "", false},
	}
	for _, tt := range tests {
		got, ok := n.ParseAmount(tt.in)
		assert.Equal(t, tt.ok, ok, "ParseAmount(%q) ok", tt.in)
		if tt.ok {
			assert.True(t, dec(tt.want).Equal(got), "ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQuoteRejectsRangesAndSigns(t *testing.T) {
	n := New(nil)
	for _, in := range []string{"19.99 - 24.99", "-5.00", "1.5e2"} {
		_, ok := n.Quote(in, "USD", "")
		assert.False(t, ok, "Quote(%q)", in)
	}

	q, ok := n.Quote("24.99", "USD", "")
	require.True(t, ok)
	assert.True(t, dec("24.99").Equal(q.Amount))
}

func TestCurrencyInference(t *testing.T) {
	n := New(nil)
	assert.Equal(t, "EUR", n.Currency("eur", "$10"), "explicit code wins")
	assert.Equal(t, "USD", n.Currency("", "$19.99"))
	assert.Equal(t, "GBP", n.Currency("", "£5"))
	assert.Equal(t, "CAD", n.Currency("", "CA$12"))
	assert.Equal(t, "CAD", n.Currency("", "12.00 CAD"))
	assert.Equal(t, "", n.Currency("", "19.99"), "no signal stays unresolved")

	cad := New(map[string]string{"$": "cad"})
	assert.Equal(t, "CAD", cad.Currency("", "$19.99"), "override applies")
}

func TestFragmentSubscribeNearSecondPrice(t *testing.T) {
	n := New(nil)
	quotes := n.Fragment("$47.34 \n Subscribe & Save 15%\n$40.24", "", "")
	require.Len(t, quotes, 2)

	assert.True(t, dec("47.34").Equal(quotes[0].Amount))
	assert.Equal(t, types.PriceOneTime, quotes[0].Kind)

	assert.True(t, dec("40.24").Equal(quotes[1].Amount))
	assert.Equal(t, types.PriceSubscription, quotes[1].Kind)
	assert.Equal(t, "USD", quotes[1].Currency)
}

func TestFragmentSubscriptionLabelBeforeBothPrices(t *testing.T) {
	n := New(nil)
	quotes := n.Fragment("1 pouch – Every 30 days\n\nSAVE 15%\n$47.34\n$40.24", "", "")
	require.Len(t, quotes, 2)
	assert.Equal(t, types.PriceCompareAt, quotes[0].Kind)
	assert.Equal(t, types.PriceSubscription, quotes[1].Kind)
}

func TestFragmentTwoPricesNoKeywords(t *testing.T) {
	n := New(nil)
	quotes := n.Fragment("$29.99 $19.99", "", "")
	require.Len(t, quotes, 2)
	assert.Equal(t, types.PriceCompareAt, quotes[0].Kind)
	assert.Equal(t, types.PriceOneTime, quotes[1].Kind)
}

func TestFragmentRangeIsNotComparePair(t *testing.T) {
	n := New(nil)
	quotes := n.Fragment("$10.00 - $20.00", "", "")
	require.Len(t, quotes, 2)
	assert.Equal(t, types.PriceOneTime, quotes[0].Kind)
	assert.Equal(t, types.PriceOneTime, quotes[1].Kind)
}

func TestFragmentKeywordsAndCues(t *testing.T) {
	n := New(nil)

	quotes := n.Fragment("One-time purchase $30.00 Subscribe & save $25.50", "", "")
	require.Len(t, quotes, 2)
	assert.Equal(t, types.PriceOneTime, quotes[0].Kind)
	assert.Equal(t, types.PriceSubscription, quotes[1].Kind)

	quotes = n.Fragment("$9.99/mo", "", "")
	require.Len(t, quotes, 1)
	assert.Equal(t, types.PriceSubscription, quotes[0].Kind)

	quotes = n.Fragment("Was $50 Now $35", "", "")
	require.Len(t, quotes, 2)
	assert.Equal(t, types.PriceCompareAt, quotes[0].Kind)
	assert.Equal(t, types.PriceOneTime, quotes[1].Kind)
}

func TestFragmentTrailingLabelOnSameLine(t *testing.T) {
	n := New(nil)
	tests := []struct {
		name string
		text string
		want []types.PriceKind
	}{
		{"label after single amount", "$40.24 Subscribe & Save", []types.PriceKind{types.PriceSubscription}},
		{"label after second line amount", "$47.34\n$40.24 Subscribe & Save 15%", []types.PriceKind{types.PriceOneTime, types.PriceSubscription}},
		{"each amount labelled after", "$30 one-time purchase, $25 subscribe", []types.PriceKind{types.PriceOneTime, types.PriceSubscription}},
		{"label between amounts on one line", "$47.34 Subscribe & Save 15% $40.24", []types.PriceKind{types.PriceOneTime, types.PriceSubscription}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quotes := n.Fragment(tt.text, "", "")
			require.Len(t, quotes, len(tt.want))
			for i, kind := range tt.want {
				assert.Equal(t, kind, quotes[i].Kind, "quote %d", i)
			}
		})
	}

	quotes := n.Fragment("$30 one-time purchase, $25 subscribe", "", "")
	require.Len(t, quotes, 2)
	assert.True(t, dec("25").Equal(quotes[1].Amount))
}

func TestFragmentCurrencyForms(t *testing.T) {
	n := New(nil)
	quotes := n.Fragment("19,99 €", "", "")
	require.Len(t, quotes, 1)
	assert.Equal(t, "EUR", quotes[0].Currency)
	assert.True(t, dec("19.99").Equal(quotes[0].Amount))

	quotes = n.Fragment("USD 1,050.00", "", "")
	require.Len(t, quotes, 1)
	assert.Equal(t, "USD", quotes[0].Currency)
	assert.True(t, dec("1050").Equal(quotes[0].Amount))
}

func TestFragmentBareNumbersNeedExplicitCurrency(t *testing.T) {
	n := New(nil)
	assert.Empty(t, n.Fragment("Price 19.99", "", ""))

	quotes := n.Fragment("19.99", "USD", "")
	require.Len(t, quotes, 1)
	assert.Equal(t, "USD", quotes[0].Currency)
}

func TestFragmentHintApplies(t *testing.T) {
	n := New(nil)
	quotes := n.Fragment("$40.24", "", types.PriceSubscription)
	require.Len(t, quotes, 1)
	assert.Equal(t, types.PriceSubscription, quotes[0].Kind)
}

func TestFromMinor(t *testing.T) {
	q := FromMinor(1999, 2, "usd", types.PriceOneTime)
	assert.True(t, dec("19.99").Equal(q.Amount))
	assert.Equal(t, "USD", q.Currency)

	q = FromMinor(500, 0, "JPY", types.PriceOneTime)
	assert.True(t, dec("500").Equal(q.Amount))
}

func TestNormalizeDropsUnparsableAndDedups(t *testing.T) {
	n := New(nil)
	quotes, opts := n.Normalize(
		[]RawPrice{
			{Amount: "19.99", Currency: "USD"},
			{Amount: "call us"},
			{Text: "$19.99"},
			{Text: "$24.99", Kind: types.PriceCompareAt},
		},
		[]RawOption{
			{Type: types.OptionQuantity, Value: "2", Unit: "pack", Text: "$35.00"},
			{Type: types.OptionQuantity, Value: "2", Unit: "pack", Text: "$35.00", IsDefault: true},
			{Type: types.OptionSubscription, Value: "Every 30 days", Text: "$30.00"},
			{Type: types.OptionVariant},
		},
	)

	require.Len(t, quotes, 2)
	assert.Equal(t, types.PriceOneTime, quotes[0].Kind)
	assert.Equal(t, types.PriceCompareAt, quotes[1].Kind)

	require.Len(t, opts, 2)
	assert.True(t, opts[0].IsDefault, "duplicate default flag should merge")
	require.Len(t, opts[1].Prices, 1)
	assert.Equal(t, types.PriceSubscription, opts[1].Prices[0].Kind)
}

func TestKind(t *testing.T) {
	assert.Equal(t, types.PriceSubscription, Kind("Subscribe & Save"))
	assert.Equal(t, types.PriceOneTime, Kind("One-time purchase"))
	assert.Equal(t, types.PriceKind(""), Kind("Add to cart"))
}
