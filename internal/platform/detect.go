package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShopStalk/internal/fetcher"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

// Signal names in evaluation order.
const (
	SignalGlobals = "globals"
	SignalCDN     = "cdn"
	SignalMarkup  = "markup"
	SignalProbe   = "probe"
	SignalDomain  = "domain"
)

// Detector evaluates platform signals from most to least specific.
type Detector struct {
	platforms []*Platform
	client    fetcher.HTTPClient
	probe     bool
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDetector creates a Detector over the given platform table. client may
// be nil, which disables probing.
func NewDetector(platforms []*Platform, client fetcher.HTTPClient, probe bool, timeout time.Duration, logger *slog.Logger) *Detector {
	if len(platforms) == 0 {
		platforms = Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Detector{
		platforms: platforms,
		client:    client,
		probe:     probe && client != nil,
		timeout:   timeout,
		logger:    logger.With("component", "platform_detector"),
	}
}

// Platforms returns the detection table.
func (d *Detector) Platforms() []*Platform { return d.platforms }

// Detect returns the first platform whose signal matches. The absence of
// every signal yields the zero Hint.
func (d *Detector) Detect(ctx context.Context, u *url.URL, doc *goquery.Document) Hint {
	hint := d.detect(ctx, u, doc)
	hint.Currency = PageCurrency(doc)
	d.logger.Info("platform detected", "url", u.String(), "platform", hint.Name(), "signal", hint.Signal)
	return hint
}

func (d *Detector) detect(ctx context.Context, u *url.URL, doc *goquery.Document) Hint {
	if doc != nil {
		scripts := inlineScripts(doc)
		for _, p := range d.platforms {
			for _, re := range p.Globals {
				if re.MatchString(scripts) {
					return Hint{Platform: p, Signal: SignalGlobals}
				}
			}
		}

		refs := assetRefs(doc)
		for _, p := range d.platforms {
			for _, marker := range p.CDNMarkers {
				if strings.Contains(refs, marker) {
					return Hint{Platform: p, Signal: SignalCDN}
				}
			}
		}

		generator := strings.ToLower(doc.Find(`meta[name="generator"]`).AttrOr("content", ""))
		shopifyAttr := doc.Find("[data-shopify]").Length() > 0
		for _, p := range d.platforms {
			for _, g := range p.Generators {
				if generator != "" && strings.Contains(generator, g) {
					return Hint{Platform: p, Signal: SignalMarkup}
				}
			}
			if p.Name == "shopify" && shopifyAttr {
				return Hint{Platform: p, Signal: SignalMarkup}
			}
		}
	}

	if d.probe && u != nil {
		for _, p := range d.platforms {
			if p.Probe == nil {
				continue
			}
			if d.runProbe(ctx, u, p.Probe) {
				return Hint{Platform: p, Signal: SignalProbe}
			}
		}
	}

	if u != nil {
		host := strings.ToLower(u.Hostname())
		for _, p := range d.platforms {
			for _, suffix := range p.HostedSuffixes {
				if strings.HasSuffix(host, suffix) {
					return Hint{Platform: p, Signal: SignalDomain}
				}
			}
		}
	}

	return Hint{}
}

func (d *Detector) runProbe(ctx context.Context, u *url.URL, probe *Probe) bool {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	target := u.Scheme + "://" + u.Host + probe.Path
	resp, err := d.client.Get(ctx, target, http.Header{"Accept": {"application/json"}})
	if err != nil {
		d.logger.Debug("probe failed", "url", target, "error", err)
		return false
	}
	return resp.IsSuccess() && probe.Recognize(resp)
}

func inlineScripts(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		b.WriteString(s.Text())
		b.WriteByte('\n')
	})
	return b.String()
}

func assetRefs(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find("script[src], link[href]").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.AttrOr("src", ""))
		b.WriteString(s.AttrOr("href", ""))
		b.WriteByte('\n')
	})
	return strings.ToLower(b.String())
}

func jsonHasKey(key string) func(*types.Response) bool {
	return func(resp *types.Response) bool {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(resp.Body, &obj); err != nil {
			return false
		}
		_, ok := obj[key]
		return ok
	}
}

func jsonIsArray(resp *types.Response) bool {
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 || body[0] != '[' {
		return false
	}
	var arr []json.RawMessage
	return json.Unmarshal(body, &arr) == nil
}
