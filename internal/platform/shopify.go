package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// shopifyMoney accepts both encodings Shopify uses: integer cents in the
// .js document and decimal strings in the .json document.
type shopifyMoney struct {
	Amount decimal.Decimal
	Valid  bool
}

func (m *shopifyMoney) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s == "" {
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("shopify price %q: %w", s, err)
		}
		m.Amount, m.Valid = d, true
		return nil
	}
	units, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("shopify price %s: %w", b, err)
	}
	m.Amount, m.Valid = decimal.New(units, -2), true
	return nil
}

type shopifyImages []string

func (imgs *shopifyImages) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, r := range raw {
		var s string
		if json.Unmarshal(r, &s) == nil {
			*imgs = append(*imgs, s)
			continue
		}
		var obj struct {
			Src string `json:"src"`
		}
		if json.Unmarshal(r, &obj) == nil && obj.Src != "" {
			*imgs = append(*imgs, obj.Src)
		}
	}
	return nil
}

type shopifyProduct struct {
	ID                int64              `json:"id"`
	Title             string             `json:"title"`
	Handle            string             `json:"handle"`
	Description       string             `json:"description"`
	BodyHTML          string             `json:"body_html"`
	Vendor            string             `json:"vendor"`
	Available         *bool              `json:"available"`
	FeaturedImage     string             `json:"featured_image"`
	Images            shopifyImages      `json:"images"`
	Variants          []shopifyVariant   `json:"variants"`
	SellingPlanGroups []shopifyPlanGroup `json:"selling_plan_groups"`
}

type shopifyVariant struct {
	ID                     int64               `json:"id"`
	Title                  string              `json:"title"`
	SKU                    string              `json:"sku"`
	Price                  shopifyMoney        `json:"price"`
	CompareAtPrice         shopifyMoney        `json:"compare_at_price"`
	Available              *bool               `json:"available"`
	SellingPlanAllocations []shopifyAllocation `json:"selling_plan_allocations"`
}

type shopifyAllocation struct {
	SellingPlanID  int64        `json:"selling_plan_id"`
	Price          shopifyMoney `json:"price"`
	CompareAtPrice shopifyMoney `json:"compare_at_price"`
}

type shopifyPlanGroup struct {
	Name         string        `json:"name"`
	SellingPlans []shopifyPlan `json:"selling_plans"`
}

type shopifyPlan struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	PriceAdjustments []struct {
		ValueType string      `json:"value_type"`
		Value     json.Number `json:"value"`
	} `json:"price_adjustments"`
}

type planInfo struct {
	name     string
	group    string
	discount *decimal.Decimal
}

// shopifyDocument reads /products/<handle>.js and falls back to the
// /products/<handle>.json admin-style document.
func shopifyDocument(ctx context.Context, req DocumentRequest) (*types.ProductRecord, error) {
	if req.Handle == "" {
		return nil, types.ErrNotApplicable
	}
	base := req.Base.Scheme + "://" + req.Base.Host + "/products/" + req.Handle
	headers := http.Header{
		"Accept":           {"application/json"},
		"X-Requested-With": {"XMLHttpRequest"},
	}

	var product shopifyProduct
	jsErr := fetchJSON(ctx, req, base+".js", headers, &product)
	if jsErr != nil {
		var wrapped struct {
			Product *shopifyProduct `json:"product"`
		}
		if err := fetchJSON(ctx, req, base+".json", headers, &wrapped); err != nil {
			return nil, fmt.Errorf("shopify product document: %w (js: %v)", err, jsErr)
		}
		if wrapped.Product == nil {
			return nil, fmt.Errorf("shopify product document: missing product object (js: %v)", jsErr)
		}
		product = *wrapped.Product
	}
	if product.Title == "" {
		return nil, fmt.Errorf("shopify product document for %q has no title", req.Handle)
	}
	return product.record(req), nil
}

// fetchJSON GETs target and decodes a 2xx JSON body into v.
func fetchJSON(ctx context.Context, req DocumentRequest, target string, headers http.Header, v any) error {
	resp, err := req.Client.Get(ctx, target, headers)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &types.FetchError{URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}

func (p *shopifyProduct) record(req DocumentRequest) *types.ProductRecord {
	currency := strings.ToUpper(req.Currency)
	rec := &types.ProductRecord{
		PageURL:     req.PageURL,
		Name:        strings.TrimSpace(p.Title),
		Description: htmlText(firstNonEmpty(p.Description, p.BodyHTML)),
		Brand:       strings.TrimSpace(p.Vendor),
		Strategy:    types.StrategyPlatformAPI,
		Platform:    "shopify",
	}
	if p.ID != 0 {
		rec.PlatformID = "shopify:" + strconv.FormatInt(p.ID, 10)
	}

	images := p.Images
	if len(images) == 0 && p.FeaturedImage != "" {
		images = shopifyImages{p.FeaturedImage}
	}
	for _, img := range images {
		if strings.HasPrefix(img, "//") {
			img = "https:" + img
		}
		rec.Images = append(rec.Images, img)
	}

	if len(p.Variants) == 0 {
		rec.Availability = availability(p.Available)
		return rec
	}

	selected := 0
	for i, v := range p.Variants {
		if v.Available == nil || *v.Available {
			selected = i
			break
		}
	}
	chosen := p.Variants[selected]
	rec.SKU = strings.TrimSpace(p.Variants[0].SKU)

	rec.Prices = variantQuotes(chosen, currency)

	avail := p.Available
	if avail == nil {
		avail = chosen.Available
	}
	rec.Availability = availability(avail)

	if !(len(p.Variants) == 1 && strings.EqualFold(p.Variants[0].Title, "Default Title")) {
		for i, v := range p.Variants {
			rec.Variants = append(rec.Variants, types.Option{
				Type:      types.OptionVariant,
				ID:        strconv.FormatInt(v.ID, 10),
				Value:     strings.TrimSpace(v.Title),
				Prices:    variantQuotes(v, currency),
				IsDefault: i == selected,
				Available: v.Available,
			})
		}
	}

	plans := p.planLookup()
	var cheapest *types.PriceQuote
	for _, alloc := range chosen.SellingPlanAllocations {
		if !alloc.Price.Valid {
			continue
		}
		q := types.PriceQuote{Amount: alloc.Price.Amount, Currency: currency, Kind: types.PriceSubscription}
		info := plans[alloc.SellingPlanID]
		opt := types.Option{
			Type:            types.OptionSubscription,
			ID:              strconv.FormatInt(alloc.SellingPlanID, 10),
			Value:           firstNonEmpty(info.name, "subscription"),
			Label:           info.group,
			Prices:          []types.PriceQuote{q},
			PlanName:        info.name,
			GroupName:       info.group,
			DiscountPercent: info.discount,
		}
		if alloc.CompareAtPrice.Valid && alloc.CompareAtPrice.Amount.GreaterThan(alloc.Price.Amount) {
			opt.Prices = append(opt.Prices, types.PriceQuote{Amount: alloc.CompareAtPrice.Amount, Currency: currency, Kind: types.PriceCompareAt})
		}
		rec.BuyingOptions = append(rec.BuyingOptions, opt)
		if cheapest == nil || q.Amount.LessThan(cheapest.Amount) {
			cheapest = &q
		}
	}
	if cheapest != nil {
		rec.Prices = append(rec.Prices, *cheapest)
	}
	return rec
}

func (p *shopifyProduct) planLookup() map[int64]planInfo {
	lookup := make(map[int64]planInfo)
	for _, g := range p.SellingPlanGroups {
		for _, plan := range g.SellingPlans {
			info := planInfo{name: strings.TrimSpace(plan.Name), group: strings.TrimSpace(g.Name)}
			for _, adj := range plan.PriceAdjustments {
				if adj.ValueType != "percentage" {
					continue
				}
				if d, err := decimal.NewFromString(adj.Value.String()); err == nil {
					info.discount = &d
				}
			}
			lookup[plan.ID] = info
		}
	}
	return lookup
}

func variantQuotes(v shopifyVariant, currency string) []types.PriceQuote {
	var quotes []types.PriceQuote
	if v.Price.Valid {
		quotes = append(quotes, types.PriceQuote{Amount: v.Price.Amount, Currency: currency, Kind: types.PriceOneTime})
	}
	if v.CompareAtPrice.Valid && v.Price.Valid && v.CompareAtPrice.Amount.GreaterThan(v.Price.Amount) {
		quotes = append(quotes, types.PriceQuote{Amount: v.CompareAtPrice.Amount, Currency: currency, Kind: types.PriceCompareAt})
	}
	return quotes
}

func availability(available *bool) string {
	switch {
	case available == nil:
		return ""
	case *available:
		return "InStock"
	default:
		return "OutOfStock"
	}
}

// htmlText strips markup and collapses whitespace.
func htmlText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
