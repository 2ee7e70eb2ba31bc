package parser

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShopStalk/internal/types"
	"github.com/IshaanNene/ShopStalk/internal/urlnorm"
)

// LinkHarvester turns the anchors of a rendered page into frontier
// candidates: resolved, canonical, same-host and not excluded.
type LinkHarvester struct {
	canon  *urlnorm.Canonicalizer
	rules  *urlnorm.Rules
	limit  int
	logger *slog.Logger
}

// NewLinkHarvester creates a harvester that returns at most limit links per
// page (0 means no limit).
func NewLinkHarvester(canon *urlnorm.Canonicalizer, rules *urlnorm.Rules, limit int, logger *slog.Logger) *LinkHarvester {
	return &LinkHarvester{
		canon:  canon,
		rules:  rules,
		limit:  limit,
		logger: logger.With("component", "link_harvester"),
	}
}

// Harvest collects <a href> targets from doc plus any links the renderer
// reported, in document order.
func (h *LinkHarvester) Harvest(page types.CanonicalURL, doc *goquery.Document, rendered []string) []types.CanonicalURL {
	base := page.Parse()
	if doc != nil {
		if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
			if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
				base = b
			}
		}
	}

	var hrefs []string
	if doc != nil {
		doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			hrefs = append(hrefs, href)
		})
	}
	hrefs = append(hrefs, rendered...)

	seen := make(map[types.CanonicalURL]struct{}, len(hrefs))
	var links []types.CanonicalURL
	dropped := 0

	for _, href := range hrefs {
		if h.limit > 0 && len(links) >= h.limit {
			break
		}
		u, ok := h.accept(base, page, href)
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		links = append(links, u)
	}

	h.logger.Debug("links harvested", "url", page, "kept", len(links), "dropped", dropped)
	return links
}

func (h *LinkHarvester) accept(base *url.URL, page types.CanonicalURL, href string) (types.CanonicalURL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || skipHref(href) {
		return "", false
	}

	u, err := h.canon.Resolve(base, href)
	if err != nil {
		return "", false
	}
	if u == page {
		return "", false
	}

	parsed := u.Parse()
	if !urlnorm.SameHost(parsed.Hostname(), page.Parse().Hostname()) {
		return "", false
	}
	if _, excluded := h.rules.NavigationExclusion(parsed); excluded {
		return "", false
	}
	return u, true
}

// skipHref filters anchors, javascript:, mailto:, tel: and data: links.
func skipHref(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:")
}
