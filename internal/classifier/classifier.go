// Package classifier decides whether a rendered page is a product page.
package classifier

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShopStalk/internal/parser"
	"github.com/IshaanNene/ShopStalk/internal/platform"
	"github.com/IshaanNene/ShopStalk/internal/urlnorm"
)

// Reason codes.
const (
	ReasonURLPattern           = "url_pattern"
	ReasonStructuredData       = "structured_data"
	ReasonOGType               = "og_type"
	ReasonInsufficientEvidence = "insufficient_evidence"

	reasonExcludedPrefix = "excluded:"
	reasonDOMPrefix      = "dom_indicators:"
)

// Weak signals recorded without classifying on their own.
const (
	SignalUntypedPrice    = "structured_data_untyped_price"
	SignalPurchaseControl = "purchase_control"
	SignalPriceElement    = "price_element"
	SignalProductHeading  = "product_heading"
)

// minDOMIndicators is how many independent DOM indicators make a product page.
const minDOMIndicators = 2

// Verdict is the classification outcome. Reason is one stable code.
type Verdict struct {
	IsProduct bool     `json:"is_product"`
	Reason    string   `json:"reason"`
	Signals   []string `json:"signals,omitempty"`
}

var purchaseTextRe = regexp.MustCompile(`(?i)\b(?:add\s+to\s+(?:cart|bag|basket)|buy\s+(?:it\s+)?now)\b`)

const (
	purchaseControlSel = `button, input[type="submit"], input[type="button"], a[role="button"], a[class*="btn"], a[class*="button"]`
	addButtonSel       = `form[action*="/cart/add"] [name="add"], form[class*="product"] [name="add"]`
	priceElementSel    = `[class*="price"], [id*="price"], [data-testid*="price"], [itemprop="price"]`
	productHeadingSel  = `h1[class*="product"], h1[itemprop="name"]`
	titleHeadingSel    = `h1[class*="title"]`
	productContainer   = `[class*="product"], [id*="product"], [itemtype*="Product"], form[action*="/cart/add"]`
)

// Classifier applies the exclusion pass, the strong evidence table and the
// DOM indicator rule, in that order.
type Classifier struct {
	rules  *urlnorm.Rules
	sde    *parser.StructuredDataExtractor
	logger *slog.Logger
}

// New creates a Classifier.
func New(rules *urlnorm.Rules, logger *slog.Logger) *Classifier {
	return &Classifier{
		rules:  rules,
		sde:    parser.NewStructuredDataExtractor(logger),
		logger: logger.With("component", "classifier"),
	}
}

// Classify never fails; ambiguity yields insufficient_evidence.
func (c *Classifier) Classify(u *url.URL, doc *goquery.Document, hint platform.Hint) Verdict {
	v := c.classify(u, doc, hint)
	c.logger.Debug("page classified", "url", u.String(), "product", v.IsProduct, "reason", v.Reason, "signals", v.Signals)
	return v
}

func (c *Classifier) classify(u *url.URL, doc *goquery.Document, hint platform.Hint) Verdict {
	if rule, ok := c.rules.Excluded(u); ok {
		return Verdict{Reason: reasonExcludedPrefix + rule}
	}

	var signals []string

	if _, ok := c.rules.ProductSlug(u, hint.ProductAliases()...); ok {
		return Verdict{IsProduct: true, Reason: ReasonURLPattern, Signals: []string{ReasonURLPattern}}
	}

	if doc == nil {
		return Verdict{Reason: ReasonInsufficientEvidence}
	}

	switch c.structuredEvidence(doc, u) {
	case evidenceStrong:
		return Verdict{IsProduct: true, Reason: ReasonStructuredData, Signals: []string{ReasonStructuredData}}
	case evidenceWeak:
		signals = append(signals, SignalUntypedPrice)
	}

	if og, ok := doc.Find(`meta[property="og:type"]`).First().Attr("content"); ok &&
		strings.EqualFold(strings.TrimSpace(og), "product") {
		return Verdict{IsProduct: true, Reason: ReasonOGType, Signals: append(signals, ReasonOGType)}
	}

	dom := DOMIndicators(doc)
	signals = append(signals, dom...)
	if len(dom) >= minDOMIndicators {
		return Verdict{IsProduct: true, Reason: fmt.Sprintf("%s%d", reasonDOMPrefix, len(dom)), Signals: signals}
	}
	return Verdict{Reason: ReasonInsufficientEvidence, Signals: signals}
}

type evidence int

const (
	evidenceNone evidence = iota
	evidenceWeak
	evidenceStrong
)

func (c *Classifier) structuredEvidence(doc *goquery.Document, u *url.URL) evidence {
	found := evidenceNone
	nodes, _ := c.sde.JSONLD(doc, u.String())
	for _, n := range nodes {
		if !parser.HasType(n.Data, "Product", "ProductModel") {
			continue
		}
		if _, ok := n.Data["offers"]; ok {
			return evidenceStrong
		}
		if _, ok := n.Data["price"]; ok {
			return evidenceStrong
		}
		found = evidenceWeak
	}

	doc.Find(`[itemscope][itemtype*="schema.org/Product"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Find(`[itemprop="price"], [itemprop="offers"]`).Length() > 0 {
			found = evidenceStrong
			return false
		}
		found = evidenceWeak
		return true
	})
	return found
}

// DOMIndicators returns the independent purchase-page indicators present in
// doc.
func DOMIndicators(doc *goquery.Document) []string {
	var out []string
	if hasPurchaseControl(doc) {
		out = append(out, SignalPurchaseControl)
	}
	if doc.Find(priceElementSel).Length() > 0 {
		out = append(out, SignalPriceElement)
	}
	if hasProductHeading(doc) {
		out = append(out, SignalProductHeading)
	}
	return out
}

func hasPurchaseControl(doc *goquery.Document) bool {
	if doc.Find(addButtonSel).Length() > 0 {
		return true
	}
	found := false
	doc.Find(purchaseControlSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text() + " " + s.AttrOr("value", "") + " " + s.AttrOr("aria-label", "")
		if purchaseTextRe.MatchString(text) {
			found = true
			return false
		}
		return true
	})
	return found
}

func hasProductHeading(doc *goquery.Document) bool {
	if doc.Find(productHeadingSel).Length() > 0 {
		return true
	}
	found := false
	doc.Find(titleHeadingSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.ParentsFiltered(productContainer).Length() > 0 {
			found = true
			return false
		}
		return true
	})
	return found
}
