package pipeline

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// --- Content Middleware ---

// HTMLSanitizeMiddleware strips HTML tags from names and descriptions.
type HTMLSanitizeMiddleware struct {
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		stripRe: regexp.MustCompile(`<[^>]*>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(p *types.ProductRecord) (*types.ProductRecord, error) {
	p.Name = m.clean(p.Name)
	p.Description = m.clean(p.Description)
	p.Brand = m.clean(p.Brand)
	return p, nil
}

func (m *HTMLSanitizeMiddleware) clean(s string) string {
	if s == "" {
		return s
	}
	// Strip HTML tags
	cleaned := m.stripRe.ReplaceAllString(s, " ")
	// Decode HTML entities
	cleaned = html.UnescapeString(cleaned)
	// Normalize whitespace
	return strings.Join(strings.Fields(cleaned), " ")
}

// DescriptionLimitMiddleware caps descriptions at Limit characters.
type DescriptionLimitMiddleware struct {
	Limit int
}

func (m *DescriptionLimitMiddleware) Name() string { return "description_limit" }

func (m *DescriptionLimitMiddleware) Process(p *types.ProductRecord) (*types.ProductRecord, error) {
	if m.Limit <= 0 || utf8.RuneCountInString(p.Description) <= m.Limit {
		return p, nil
	}
	runes := []rune(p.Description)
	p.Description = strings.TrimSpace(string(runes[:m.Limit]))
	return p, nil
}

// ImageCleanMiddleware drops blank and repeated image URLs and keeps at
// most Max of them.
type ImageCleanMiddleware struct {
	Max int
}

func (m *ImageCleanMiddleware) Name() string { return "image_clean" }

func (m *ImageCleanMiddleware) Process(p *types.ProductRecord) (*types.ProductRecord, error) {
	if len(p.Images) == 0 {
		return p, nil
	}
	seen := make(map[string]struct{}, len(p.Images))
	out := p.Images[:0]
	for _, img := range p.Images {
		img = strings.TrimSpace(img)
		if img == "" {
			continue
		}
		if _, dup := seen[img]; dup {
			continue
		}
		seen[img] = struct{}{}
		out = append(out, img)
		if m.Max > 0 && len(out) == m.Max {
			break
		}
	}
	p.Images = out
	return p, nil
}
