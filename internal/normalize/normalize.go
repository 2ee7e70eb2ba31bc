// Package normalize turns raw price and option fragments into exact,
// currency-tagged quotes.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

const amountPattern = `\d{1,3}(?:[,.]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`

const codePattern = `USD|EUR|GBP|CAD|AUD|NZD|JPY|INR|CHF|SEK|NOK|DKK`

var (
	// tokenRe finds currency-marked amounts: "$19.99", "USD 19.99", "19,99 €".
	tokenRe = regexp.MustCompile(
		`(?i)(?:(US\$|CA\$|AU\$|NZ\$|C\$|A\$|[$£€¥₹]|\b(?:` + codePattern + `)\b)\s?(` + amountPattern + `))` +
			`|(?:(` + amountPattern + `)\s?([€£]|(?:` + codePattern + `)\b))`)
	bareAmountRe = regexp.MustCompile(amountPattern)
	codeRe       = regexp.MustCompile(`(?i)\b(` + codePattern + `)\b`)

	// numberRe is one run of digits and separators; signRe and exponentRe
	// look at the text around it.
	numberRe   = regexp.MustCompile(`[.,]?\d[\d.,]*`)
	signRe     = regexp.MustCompile(`[-+−](?:\s?(?:[A-Z]{1,2}\$|[$£€¥₹])\s?)?$`)
	exponentRe = regexp.MustCompile(`^[eE][-+]?\d`)
)

var defaultSymbols = map[string]string{
	"$":   "USD",
	"US$": "USD",
	"C$":  "CAD",
	"CA$": "CAD",
	"A$":  "AUD",
	"AU$": "AUD",
	"NZ$": "NZD",
	"£":   "GBP",
	"€":   "EUR",
	"¥":   "JPY",
	"₹":   "INR",
}

// Normalizer parses amounts, infers currency and classifies price kinds.
// Safe for concurrent use after construction.
type Normalizer struct {
	symbols map[string]string
	order   []string
}

// New creates a Normalizer. symbolOverrides replace or extend the built-in
// symbol to ISO code map (e.g. {"$": "CAD"} for a Canadian store).
func New(symbolOverrides map[string]string) *Normalizer {
	symbols := make(map[string]string, len(defaultSymbols)+len(symbolOverrides))
	for k, v := range defaultSymbols {
		symbols[k] = v
	}
	for k, v := range symbolOverrides {
		symbols[k] = strings.ToUpper(v)
	}
	order := make([]string, 0, len(symbols))
	for k := range symbols {
		order = append(order, k)
	}
	// longest first so "US$" wins over "$"
	sort.Slice(order, func(i, j int) bool {
		if len(order[i]) != len(order[j]) {
			return len(order[i]) > len(order[j])
		}
		return order[i] < order[j]
	})
	return &Normalizer{symbols: symbols, order: order}
}

// ParseAmount parses a human-formatted number. Thousands separators are
// stripped; when both "," and "." appear the last one is the decimal mark,
// and a lone "," followed by one or two digits is a decimal comma. Text
// holding more than one number (a range), a sign or an exponent is
// malformed.
func (n *Normalizer) ParseAmount(s string) (decimal.Decimal, bool) {
	locs := numberRe.FindAllStringIndex(s, -1)
	if len(locs) != 1 {
		return decimal.Decimal{}, false
	}
	start, end := locs[0][0], locs[0][1]
	if signRe.MatchString(s[:start]) || exponentRe.MatchString(s[end:]) {
		return decimal.Decimal{}, false
	}

	num := strings.TrimRight(s[start:end], ".,")
	if num[0] == '.' || num[0] == ',' {
		num = "0" + num
	}

	lastComma := strings.LastIndex(num, ",")
	lastDot := strings.LastIndex(num, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case lastComma >= 0:
		frac := len(num) - lastComma - 1
		if strings.Count(num, ",") == 1 && frac >= 1 && frac <= 2 {
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case strings.Count(num, ".") > 1:
		num = strings.ReplaceAll(num, ".", "")
	}

	d, err := decimal.NewFromString(num)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Currency resolves a currency: an explicit ISO code wins, then a symbol or
// code found in text. Unknown symbols are returned raw; no signal yields "".
func (n *Normalizer) Currency(explicit, text string) string {
	if code := strings.ToUpper(strings.TrimSpace(explicit)); len(code) == 3 && isAlpha(code) {
		return code
	}
	if explicit != "" {
		if code, ok := n.symbols[strings.TrimSpace(explicit)]; ok {
			return code
		}
	}
	if m := codeRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	for _, sym := range n.order {
		if strings.Contains(text, sym) {
			return n.symbols[sym]
		}
	}
	return strings.TrimSpace(explicit)
}

func (n *Normalizer) symbolCurrency(marker string) string {
	marker = strings.TrimSpace(marker)
	if code, ok := n.symbols[strings.ToUpper(marker)]; ok {
		return code
	}
	if code, ok := n.symbols[marker]; ok {
		return code
	}
	if len(marker) == 3 && isAlpha(marker) {
		return strings.ToUpper(marker)
	}
	return marker
}

// FromMinor builds a quote from an integer amount in minor units, as
// platform APIs report them (1999 with exp 2 is 19.99).
func FromMinor(units int64, exp int32, currency string, kind types.PriceKind) types.PriceQuote {
	return types.PriceQuote{
		Amount:   decimal.New(units, -exp),
		Currency: strings.ToUpper(currency),
		Kind:     kind,
	}
}

// Quote builds a quote from an exact amount string such as a JSON-LD
// "price" value. Unparsable amounts yield false.
func (n *Normalizer) Quote(amount, currency string, kind types.PriceKind) (types.PriceQuote, bool) {
	d, ok := n.ParseAmount(amount)
	if !ok {
		return types.PriceQuote{}, false
	}
	if kind == "" {
		kind = types.PriceOneTime
	}
	return types.PriceQuote{
		Amount:   d,
		Currency: n.Currency(currency, amount),
		Kind:     kind,
		Raw:      strings.TrimSpace(amount),
	}, true
}

// RawPrice is an unnormalized price fragment.
type RawPrice struct {
	// Text is free text containing one or more prices.
	Text string
	// Amount is an exact amount (structured data); when set Text is ignored.
	Amount string
	// Currency is an explicit currency code or symbol, if known.
	Currency string
	// Kind is the caller's hint; empty means infer.
	Kind types.PriceKind
}

// RawOption is an unnormalized buying or variant option.
type RawOption struct {
	Type      types.OptionType
	ID        string
	Value     string
	Unit      string
	Label     string
	Text      string // price-bearing text, may be empty
	Currency  string
	IsDefault bool
	Prices    []types.PriceQuote // already normalized quotes, if any
}

// Normalize converts raw fragments into quotes and options. Unparsable
// amounts are dropped, duplicate quotes collapse, and equivalent options
// are merged.
func (n *Normalizer) Normalize(raw []RawPrice, rawOpts []RawOption) ([]types.PriceQuote, []types.Option) {
	var quotes []types.PriceQuote
	for _, rp := range raw {
		if rp.Amount != "" {
			if q, ok := n.Quote(rp.Amount, rp.Currency, rp.Kind); ok {
				quotes = append(quotes, q)
			}
			continue
		}
		quotes = append(quotes, n.Fragment(rp.Text, rp.Currency, rp.Kind)...)
	}

	opts := make([]types.Option, 0, len(rawOpts))
	for _, ro := range rawOpts {
		opt := types.Option{
			Type:      ro.Type,
			ID:        ro.ID,
			Value:     collapseSpace(ro.Value),
			Unit:      collapseSpace(ro.Unit),
			Label:     collapseSpace(ro.Label),
			IsDefault: ro.IsDefault,
			Prices:    append([]types.PriceQuote(nil), ro.Prices...),
		}
		if ro.Text != "" {
			hint := types.PriceKind("")
			if ro.Type == types.OptionSubscription {
				hint = types.PriceSubscription
			}
			opt.Prices = append(opt.Prices, n.Fragment(ro.Text, ro.Currency, hint)...)
		}
		opt.Prices = DedupQuotes(opt.Prices)
		if opt.Value == "" && opt.Label == "" {
			continue
		}
		opts = append(opts, opt)
	}

	return DedupQuotes(quotes), DedupOptions(opts)
}

// DedupQuotes removes repeated (amount, currency, kind) quotes, keeping order.
func DedupQuotes(quotes []types.PriceQuote) []types.PriceQuote {
	seen := make(map[string]struct{}, len(quotes))
	out := quotes[:0:0]
	for _, q := range quotes {
		key := quoteKey(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// DedupOptions merges options with the same type, value, unit and prices.
// The first occurrence is kept and IsDefault is ORed across duplicates.
func DedupOptions(opts []types.Option) []types.Option {
	index := make(map[string]int, len(opts))
	out := make([]types.Option, 0, len(opts))
	for _, o := range opts {
		key := optionKey(o)
		if i, dup := index[key]; dup {
			out[i].IsDefault = out[i].IsDefault || o.IsDefault
			continue
		}
		index[key] = len(out)
		out = append(out, o)
	}
	return out
}

func quoteKey(q types.PriceQuote) string {
	return q.Amount.String() + "|" + q.Currency + "|" + string(q.Kind)
}

func optionKey(o types.Option) string {
	var b strings.Builder
	b.WriteString(string(o.Type))
	b.WriteString("|")
	b.WriteString(strings.ToLower(o.Value))
	b.WriteString("|")
	b.WriteString(strings.ToLower(o.Unit))
	for _, q := range o.Prices {
		b.WriteString("|")
		b.WriteString(quoteKey(q))
	}
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return s != ""
}
