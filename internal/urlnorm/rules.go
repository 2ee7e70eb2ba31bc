package urlnorm

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

var (
	productPathRe = regexp.MustCompile(`(?i)/(?:products?|items?|p|dp|supplements?)/([^/]+)`)
	localeRe      = regexp.MustCompile(`^[a-z]{2}[-_][a-z]{2}$`)
	homePageRe    = regexp.MustCompile(`(?i)^/(?:index(?:\.[a-z]+)?|home)?$`)
)

// navigationSegments are never crawled and never products. Segments are
// matched on their stem, so "cart.php" and "login.aspx" match too.
var navigationSegments = map[string]string{
	"cart":          "cart",
	"shopping-cart": "cart",
	"basket":        "cart",
	"checkout":      "checkout",
	"checkouts":     "checkout",
	"account":       "account",
	"accounts":      "account",
	"my-account":    "account",
	"my_account":    "account",
	"myaccount":     "account",
	"customer":      "account",
	"customers":     "account",
	"login":         "login",
	"log-in":        "login",
	"logout":        "login",
	"log-out":       "login",
	"signin":        "login",
	"sign-in":       "login",
	"signout":       "login",
	"sign-out":      "login",
	"register":      "register",
	"signup":        "register",
	"sign-up":       "register",
	"search":        "search",
	"wishlist":      "wishlist",
}

// listingSegments are crawled for discovery but never classified as products.
var listingSegments = map[string]string{
	"collection":  "collection",
	"collections": "collection",
	"category":    "category",
	"categories":  "category",
	"tag":         "tag",
	"tags":        "tag",
}

// Rules evaluates URL paths against the exclusion lists and the product path
// grammar. The zero value is not usable; construct with NewRules.
type Rules struct {
	regional map[string]struct{}
}

// NewRules creates Rules. extraRegional adds locale-coded first segments that
// the built-in xx-yy pattern does not cover (e.g. "intl").
func NewRules(extraRegional []string) *Rules {
	r := &Rules{regional: make(map[string]struct{}, len(extraRegional))}
	for _, s := range extraRegional {
		s = strings.Trim(strings.ToLower(s), "/ ")
		if s != "" {
			r.regional[s] = struct{}{}
		}
	}
	return r
}

// ProductSlug reports whether the path follows a product URL grammar and
// returns the slug. Aliases are platform-specific patterns whose first
// submatch is the slug.
func (r *Rules) ProductSlug(u *url.URL, aliases ...*regexp.Regexp) (string, bool) {
	if u == nil {
		return "", false
	}
	for _, re := range aliases {
		if slug, ok := matchSlug(re, u.Path); ok {
			return slug, true
		}
	}
	return matchSlug(productPathRe, u.Path)
}

func matchSlug(re *regexp.Regexp, path string) (string, bool) {
	if re == nil {
		return "", false
	}
	m := re.FindStringSubmatch(path)
	if len(m) >= 2 && strings.TrimSpace(m[1]) != "" {
		return m[1], true
	}
	return "", false
}

// NavigationExclusion reports cart, checkout, account, login, search and
// regional mirror URLs. The returned rule names the match.
func (r *Rules) NavigationExclusion(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	if u.Query().Has("__geom") {
		return "regional_mirror", true
	}
	segs := segments(u.Path)
	if len(segs) > 0 {
		first := segs[0]
		if localeRe.MatchString(first) {
			return "regional_mirror", true
		}
		if _, ok := r.regional[first]; ok {
			return "regional_mirror", true
		}
	}
	for _, s := range segs {
		if rule, ok := navigationSegments[stem(s)]; ok {
			return rule, true
		}
	}
	return "", false
}

// stem drops a file extension from a path segment: "cart.php" -> "cart".
func stem(seg string) string {
	if i := strings.IndexByte(seg, '.'); i > 0 {
		return seg[:i]
	}
	return seg
}

// ListingExclusion reports home pages and listing pages (collections,
// categories, tags, a bare /shop). A listing path that continues into a
// product path, such as /collections/all/products/widget, is not a listing.
func (r *Rules) ListingExclusion(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	if homePageRe.MatchString(u.Path) {
		return "home_page", true
	}
	if _, ok := r.ProductSlug(u); ok {
		return "", false
	}
	segs := segments(u.Path)
	for _, s := range segs {
		if rule, ok := listingSegments[s]; ok {
			return rule, true
		}
	}
	if len(segs) > 0 && segs[len(segs)-1] == "shop" {
		return "shop", true
	}
	return "", false
}

// Excluded applies both exclusion lists, navigation first.
func (r *Rules) Excluded(u *url.URL) (string, bool) {
	if rule, ok := r.NavigationExclusion(u); ok {
		return rule, true
	}
	return r.ListingExclusion(u)
}

// LikelyCatalog reports URLs that look like product or collection pages.
// The frontier serves these first.
func (r *Rules) LikelyCatalog(u *url.URL, aliases ...*regexp.Regexp) bool {
	if _, ok := r.ProductSlug(u, aliases...); ok {
		return true
	}
	for _, s := range segments(u.Path) {
		if _, ok := listingSegments[s]; ok {
			return true
		}
		if s == "shop" {
			return true
		}
	}
	return false
}

// SameHost compares hostnames case-insensitively, treating a leading "www."
// as insignificant.
func SameHost(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a != "" && a == b
}

// OnHost moves u onto host when the two hostnames differ only by a leading
// "www.", so both spellings of a site share one identity. The port is kept.
func OnHost(u types.CanonicalURL, host string) types.CanonicalURL {
	parsed := u.Parse()
	name := parsed.Hostname()
	if name == host || !SameHost(name, host) {
		return u
	}
	if port := parsed.Port(); port != "" {
		parsed.Host = net.JoinHostPort(host, port)
	} else {
		parsed.Host = host
	}
	return types.CanonicalURL(parsed.String())
}

func segments(path string) []string {
	parts := strings.Split(strings.ToLower(path), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
