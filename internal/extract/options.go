package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ShopStalk/internal/normalize"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

type controlMode int

const (
	modeSelect controlMode = iota
	modeRadio
	modeBlock
)

type optionRule struct {
	kind     types.OptionType
	mode     controlMode
	selector string
}

// optionRules is evaluated top to bottom; an element claimed by one rule is
// not considered again.
var optionRules = []optionRule{
	{types.OptionQuantity, modeSelect, `select[name*="quantity"], select[id*="quantity"], [class*="quantity"] select, select[data-quantity]`},
	{types.OptionQuantity, modeRadio, `input[type="radio"][name*="quantity"], input[type="radio"][id*="quantity"], [class*="quantity"] input[type="radio"]`},
	{types.OptionQuantity, modeBlock, `[class*="quantity"] button, .quantity-option`},

	{types.OptionSubscription, modeRadio, `input[type="radio"][name*="subscription"], input[type="radio"][name*="purchase"], [class*="subscription"] input[type="radio"]`},
	{types.OptionSubscription, modeSelect, `select[name*="subscription"], select[name*="selling_plan"]`},
	{types.OptionSubscription, modeBlock, `.subscription-option`},

	{types.OptionVariant, modeSelect, `select[name*="variant"], select[name*="option"], [class*="variant"] select, [class*="option"] select`},
	{types.OptionVariant, modeRadio, `input[type="radio"][name*="variant"], input[type="radio"][name*="option"]`},
	{types.OptionVariant, modeBlock, `.variant-option`},

	{types.OptionPricingTier, modeBlock, `[class*="pricing-tier"], [class*="bundle-option"], [class*="package-option"], .pricing-option`},
}

var (
	quantityRe    = regexp.MustCompile(`(\d+)\s*([A-Za-z]+)?`)
	placeholderRe = regexp.MustCompile(`(?i)^(?:choose|select|pick)\b`)
	activeClassRe = regexp.MustCompile(`(?i)\b(?:active|selected|is-selected|checked)\b`)
)

// OptionScanner reads buying options from page controls.
type OptionScanner struct {
	norm    *normalize.Normalizer
	enabled bool
}

// NewOptionScanner creates an OptionScanner. A disabled scanner returns nothing.
func NewOptionScanner(norm *normalize.Normalizer, enabled bool) *OptionScanner {
	return &OptionScanner{norm: norm, enabled: enabled}
}

// Scan returns the buying options declared in doc, normalized and
// deduplicated. Only currency-marked amounts in control text become prices,
// so "3 bottles" is a quantity and not a price.
func (s *OptionScanner) Scan(doc *goquery.Document) []types.Option {
	if s == nil || !s.enabled || doc == nil {
		return nil
	}
	claimed := make(map[*html.Node]bool)
	var raws []normalize.RawOption

	for _, rule := range optionRules {
		doc.Find(rule.selector).Each(func(_ int, sel *goquery.Selection) {
			node := sel.Get(0)
			if claimed[node] {
				return
			}
			claimed[node] = true
			switch rule.mode {
			case modeSelect:
				raws = append(raws, selectOptions(sel, rule.kind)...)
			case modeRadio:
				if ro, ok := radioOption(doc, sel, rule.kind); ok {
					raws = append(raws, ro)
				}
			case modeBlock:
				if ro, ok := blockOption(sel, rule.kind); ok {
					raws = append(raws, ro)
				}
			}
		})
	}

	_, opts := s.norm.Normalize(nil, raws)
	return opts
}

func selectOptions(sel *goquery.Selection, kind types.OptionType) []normalize.RawOption {
	var out []normalize.RawOption
	anySelected := sel.Find("option[selected]").Length() > 0
	first := true
	sel.Find("option").Each(func(_ int, o *goquery.Selection) {
		value := strings.TrimSpace(o.AttrOr("value", ""))
		text := cleanText(o.Text())
		if value == "" || text == "" || placeholderRe.MatchString(text) {
			return
		}
		if _, disabled := o.Attr("disabled"); disabled && !anySelected && first {
			return
		}
		_, selected := o.Attr("selected")
		ro := optionFromText(kind, text)
		ro.ID = value
		if kind != types.OptionQuantity {
			ro.Value = text
		}
		ro.IsDefault = selected || (!anySelected && first)
		first = false
		out = append(out, ro)
	})
	return out
}

func radioOption(doc *goquery.Document, sel *goquery.Selection, kind types.OptionType) (normalize.RawOption, bool) {
	label := ""
	if id := sel.AttrOr("id", ""); id != "" {
		doc.Find("label").EachWithBreak(func(_ int, l *goquery.Selection) bool {
			if l.AttrOr("for", "") == id {
				label = cleanText(l.Text())
				return false
			}
			return true
		})
	}
	if label == "" {
		label = cleanText(sel.Closest("label").Text())
	}
	value := strings.TrimSpace(sel.AttrOr("value", ""))
	if label == "" && value == "" {
		return normalize.RawOption{}, false
	}
	ro := optionFromText(kind, firstNonEmpty(label, value))
	ro.ID = value
	if ro.Value == "" {
		ro.Value = firstNonEmpty(label, value)
	}
	_, ro.IsDefault = sel.Attr("checked")
	return ro, true
}

func blockOption(sel *goquery.Selection, kind types.OptionType) (normalize.RawOption, bool) {
	text := cleanText(sel.Text())
	if text == "" {
		return normalize.RawOption{}, false
	}
	ro := optionFromText(kind, text)
	if kind == types.OptionQuantity && ro.Value == "" {
		return normalize.RawOption{}, false
	}
	if ro.Value == "" {
		ro.Value = text
	}
	ro.ID = sel.AttrOr("data-value", sel.AttrOr("data-id", ""))
	ro.IsDefault = activeClassRe.MatchString(sel.AttrOr("class", "")) ||
		sel.AttrOr("aria-checked", "") == "true" ||
		sel.AttrOr("aria-selected", "") == "true"
	return ro, true
}

// optionFromText fills Value and Unit the way each option type reads them.
func optionFromText(kind types.OptionType, text string) normalize.RawOption {
	ro := normalize.RawOption{Type: kind, Label: text, Text: text}
	switch kind {
	case types.OptionQuantity, types.OptionPricingTier:
		if m := quantityRe.FindStringSubmatch(text); m != nil {
			ro.Value = m[1]
			ro.Unit = strings.ToLower(m[2])
		}
	case types.OptionSubscription:
		ro.Value = text
		ro.Unit = "subscription"
	default:
		ro.Value = text
	}
	return ro
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
