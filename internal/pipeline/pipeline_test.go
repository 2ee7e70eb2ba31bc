package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestPipelineBasic(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	rec := &types.ProductRecord{Name: "  Lamp  ", Brand: " Lumo "}
	result, err := p.Process(rec)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result.Name != "Lamp" {
		t.Errorf("expected trimmed name, got %q", result.Name)
	}
	if result.Brand != "Lumo" {
		t.Errorf("expected trimmed brand, got %q", result.Brand)
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	m := &RequiredFieldsMiddleware{}

	result, err := m.Process(&types.ProductRecord{Name: "Lamp"})
	if err != nil || result == nil {
		t.Error("record with a name should pass")
	}

	result, _ = m.Process(&types.ProductRecord{})
	if result != nil {
		t.Error("record without a name should be dropped (nil)")
	}
}

func TestHTMLSanitizeMiddleware(t *testing.T) {
	m := NewHTMLSanitizeMiddleware()
	rec := &types.ProductRecord{Name: "Lamp", Description: `<p>Warm <b>light</b></p> &amp; <a href="x">dimmer</a>`}

	result, err := m.Process(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Description != "Warm light & dimmer" {
		t.Errorf("unexpected description %q", result.Description)
	}
}

func TestDescriptionLimitMiddleware(t *testing.T) {
	m := &DescriptionLimitMiddleware{Limit: 10}
	rec := &types.ProductRecord{Description: "héllo wörld and more"}
	result, _ := m.Process(rec)
	if result.Description != "héllo wörl" {
		t.Errorf("expected rune-safe cut, got %q", result.Description)
	}

	m = &DescriptionLimitMiddleware{Limit: 0}
	result, _ = m.Process(&types.ProductRecord{Description: strings.Repeat("x", 1000)})
	if len(result.Description) != 1000 {
		t.Error("zero limit should leave description alone")
	}
}

func TestImageCleanMiddleware(t *testing.T) {
	m := &ImageCleanMiddleware{Max: 2}
	rec := &types.ProductRecord{Images: []string{"a.jpg", " ", "a.jpg", "b.jpg", "c.jpg"}}
	result, _ := m.Process(rec)
	if len(result.Images) != 2 || result.Images[0] != "a.jpg" || result.Images[1] != "b.jpg" {
		t.Errorf("unexpected images %v", result.Images)
	}
}

func TestDedupMiddleware(t *testing.T) {
	m := NewDedupMiddleware()
	price := types.PriceQuote{Amount: decimal.RequireFromString("12.00"), Currency: "USD", Kind: types.PriceOneTime}

	a := &types.ProductRecord{Name: "Lamp", Prices: []types.PriceQuote{price}}
	a.Finalize()
	b := &types.ProductRecord{Name: "lamp ", Prices: []types.PriceQuote{price}, PageURL: "https://s.example.com/other"}
	b.Finalize()
	c := &types.ProductRecord{Name: "Lamp", PlatformID: "shopify:1"}
	c.Finalize()

	if r, _ := m.Process(a); r == nil {
		t.Fatal("first record should pass")
	}
	if r, _ := m.Process(b); r != nil {
		t.Error("same name and main price should be a duplicate")
	}
	if r, _ := m.Process(c); r == nil {
		t.Error("platform id is a distinct key")
	}
	if m.Seen() != 2 {
		t.Errorf("expected 2 keys, got %d", m.Seen())
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "failing" }
func (failingMiddleware) Process(*types.ProductRecord) (*types.ProductRecord, error) {
	return nil, errors.New("boom")
}

func TestPipelineErrorAndProcessAll(t *testing.T) {
	p := New(testLogger)
	p.Use(failingMiddleware{})
	_, err := p.Process(&types.ProductRecord{PageURL: "https://s.example.com/x"})
	var pe *types.PipelineError
	if !errors.As(err, &pe) || pe.Stage != "failing" {
		t.Fatalf("expected PipelineError from stage failing, got %v", err)
	}

	d := Default(config.DefaultConfig().Extraction, testLogger)
	if d.Len() != 5 {
		t.Errorf("expected 5 middlewares, got %d", d.Len())
	}
	out := d.ProcessAll([]*types.ProductRecord{{Name: " <b>Lamp</b> "}, {Name: "   "}})
	if len(out) != 1 || out[0].Name != "Lamp" {
		t.Errorf("unexpected output %+v", out)
	}
}
