package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/IshaanNene/ShopStalk/internal/normalize"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

type wooProduct struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Slug             string `json:"slug"`
	Type             string `json:"type"`
	SKU              string `json:"sku"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
	IsInStock        *bool  `json:"is_in_stock"`
	Prices           struct {
		Price             string `json:"price"`
		RegularPrice      string `json:"regular_price"`
		SalePrice         string `json:"sale_price"`
		CurrencyCode      string `json:"currency_code"`
		CurrencyMinorUnit int32  `json:"currency_minor_unit"`
	} `json:"prices"`
	Images []struct {
		Src string `json:"src"`
	} `json:"images"`
	Variations []struct {
		ID         int64 `json:"id"`
		Attributes []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"attributes"`
	} `json:"variations"`
	Brands []struct {
		Name string `json:"name"`
	} `json:"brands"`
}

// wooDocument reads the product from the WooCommerce Store API by slug.
func wooDocument(ctx context.Context, req DocumentRequest) (*types.ProductRecord, error) {
	if req.Handle == "" {
		return nil, types.ErrNotApplicable
	}
	target := req.Base.Scheme + "://" + req.Base.Host + "/wp-json/wc/store/v1/products?slug=" + url.QueryEscape(req.Handle)

	var products []wooProduct
	if err := fetchJSON(ctx, req, target, http.Header{"Accept": {"application/json"}}, &products); err != nil {
		return nil, fmt.Errorf("woocommerce store api: %w", err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("woocommerce store api: no product with slug %q", req.Handle)
	}
	p := products[0]
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("woocommerce store api: product %d has no name", p.ID)
	}
	return p.record(req), nil
}

func (p *wooProduct) record(req DocumentRequest) *types.ProductRecord {
	rec := &types.ProductRecord{
		PageURL:      req.PageURL,
		Name:         htmlText(p.Name),
		Description:  htmlText(firstNonEmpty(p.ShortDescription, p.Description)),
		SKU:          strings.TrimSpace(p.SKU),
		Availability: availability(p.IsInStock),
		Strategy:     types.StrategyPlatformAPI,
		Platform:     "woocommerce",
		IsBundle:     p.Type == "bundle" || p.Type == "grouped",
	}
	if p.ID != 0 {
		rec.PlatformID = "woocommerce:" + strconv.FormatInt(p.ID, 10)
	}
	if len(p.Brands) > 0 {
		rec.Brand = strings.TrimSpace(p.Brands[0].Name)
	}
	for _, img := range p.Images {
		if img.Src != "" {
			rec.Images = append(rec.Images, img.Src)
		}
	}

	currency := firstNonEmpty(p.Prices.CurrencyCode, req.Currency)
	exp := p.Prices.CurrencyMinorUnit
	price, hasPrice := minorUnits(p.Prices.Price)
	if hasPrice {
		rec.Prices = append(rec.Prices, normalize.FromMinor(price, exp, currency, types.PriceOneTime))
	}
	if regular, ok := minorUnits(p.Prices.RegularPrice); ok && hasPrice && regular > price {
		rec.Prices = append(rec.Prices, normalize.FromMinor(regular, exp, currency, types.PriceCompareAt))
	}

	for _, v := range p.Variations {
		values := make([]string, 0, len(v.Attributes))
		for _, a := range v.Attributes {
			if a.Value != "" {
				values = append(values, a.Value)
			}
		}
		if len(values) == 0 {
			continue
		}
		rec.Variants = append(rec.Variants, types.Option{
			Type:  types.OptionVariant,
			ID:    strconv.FormatInt(v.ID, 10),
			Value: strings.Join(values, " / "),
		})
	}
	return rec
}

func minorUnits(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
