package pipeline

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

// Middleware processes a product record and returns the (possibly modified)
// record. Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(p *types.ProductRecord) (*types.ProductRecord, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default builds the cleaning chain every extracted record goes through.
func Default(cfg config.ExtractionConfig, logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(NewHTMLSanitizeMiddleware())
	p.Use(&DescriptionLimitMiddleware{Limit: cfg.DescriptionLimit})
	p.Use(&ImageCleanMiddleware{Max: cfg.MaxImages})
	p.Use(&RequiredFieldsMiddleware{})
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				URL:   current.PageURL,
				Err:   err,
			}
		}
		if result == nil {
			p.logger.Debug("product dropped", "stage", mw.Name(), "url", rec.PageURL, "name", rec.Name)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// ProcessAll runs every record through the chain. Failed and dropped records
// are left out; errors are logged.
func (p *Pipeline) ProcessAll(recs []*types.ProductRecord) []*types.ProductRecord {
	out := make([]*types.ProductRecord, 0, len(recs))
	for _, rec := range recs {
		result, err := p.Process(rec)
		if err != nil {
			p.logger.Warn("pipeline error", "error", err)
			continue
		}
		if result != nil {
			out = append(out, result)
		}
	}
	return out
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// TrimMiddleware trims whitespace from the record's text fields.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(p *types.ProductRecord) (*types.ProductRecord, error) {
	for _, s := range []*string{&p.Name, &p.Description, &p.SKU, &p.Brand, &p.Availability} {
		*s = strings.TrimSpace(*s)
	}
	for i := range p.Variants {
		p.Variants[i].Value = strings.TrimSpace(p.Variants[i].Value)
	}
	return p, nil
}

// RequiredFieldsMiddleware drops records without a name.
type RequiredFieldsMiddleware struct{}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(p *types.ProductRecord) (*types.ProductRecord, error) {
	if p.Name == "" {
		return nil, nil
	}
	return p, nil
}

// DedupMiddleware drops records whose DedupKey was already seen. It is
// shared across pages, so it guards its state.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(p *types.ProductRecord) (*types.ProductRecord, error) {
	key := p.DedupKey()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return p, nil
}

// Seen returns how many distinct keys have passed.
func (m *DedupMiddleware) Seen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
