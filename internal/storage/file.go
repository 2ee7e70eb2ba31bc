package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// Output file names inside the output directory.
const (
	CrawlResultsFile = "crawl_results.json"
	ProductsFile     = "products.json"
	PagesFile        = "pages.jsonl"
	ProductsCSVFile  = "products.csv"
)

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

// writeJSON writes v indented to a temp file and renames it into place.
func writeJSON(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode JSON: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close output file: %w", err)
	}
	return os.Rename(tmp, path)
}

// --- JSON Storage ---

// JSONStorage writes the full crawl result and the deduplicated product list.
type JSONStorage struct {
	dir    string
	logger *slog.Logger
}

// NewJSONStorage creates a new JSON file storage under dir.
func NewJSONStorage(dir string, logger *slog.Logger) (*JSONStorage, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &JSONStorage{
		dir:    dir,
		logger: logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(_ context.Context, result *types.CrawlResult) error {
	resultsPath := filepath.Join(s.dir, CrawlResultsFile)
	if err := writeJSON(resultsPath, result); err != nil {
		return err
	}
	productsPath := filepath.Join(s.dir, ProductsFile)
	products := result.Products
	if products == nil {
		products = []types.ProductRecord{}
	}
	if err := writeJSON(productsPath, products); err != nil {
		return err
	}
	s.logger.Info("JSON written", "path", resultsPath, "pages", len(result.Pages), "products", len(products))
	return nil
}

func (s *JSONStorage) Close() error { return nil }

// --- JSONL Storage ---

// JSONLStorage writes one PageRecord per line.
type JSONLStorage struct {
	path   string
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage under dir.
func NewJSONLStorage(dir string, logger *slog.Logger) (*JSONLStorage, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &JSONLStorage{
		path:   filepath.Join(dir, PagesFile),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(_ context.Context, result *types.CrawlResult) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := range result.Pages {
		if err := enc.Encode(&result.Pages[i]); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
	}
	s.logger.Info("JSONL written", "path", s.path, "pages", len(result.Pages))
	return nil
}

func (s *JSONLStorage) Close() error { return nil }

// --- CSV Storage ---

var csvHeaders = []string{
	"id", "name", "page_url", "main_price", "currency", "price_kind",
	"sku", "brand", "availability", "strategy", "platform",
	"is_bundle", "variants", "buying_options", "images",
}

// CSVStorage writes one row per deduplicated product.
type CSVStorage struct {
	path   string
	logger *slog.Logger
}

// NewCSVStorage creates a new CSV file storage under dir.
func NewCSVStorage(dir string, logger *slog.Logger) (*CSVStorage, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &CSVStorage{
		path:   filepath.Join(dir, ProductsCSVFile),
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(_ context.Context, result *types.CrawlResult) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeaders); err != nil {
		return fmt.Errorf("write CSV headers: %w", err)
	}
	for i := range result.Products {
		if err := w.Write(csvRow(&result.Products[i])); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	s.logger.Info("CSV written", "path", s.path, "rows", len(result.Products))
	return nil
}

func (s *CSVStorage) Close() error { return nil }

func csvRow(p *types.ProductRecord) []string {
	var price, currency, kind string
	if mp := p.MainPrice; mp != nil {
		price, currency, kind = mp.Amount.String(), mp.Currency, string(mp.Kind)
	}
	return []string{
		p.ID, p.Name, p.PageURL, price, currency, kind,
		p.SKU, p.Brand, p.Availability, p.Strategy, p.Platform,
		strconv.FormatBool(p.IsBundle),
		strconv.Itoa(len(p.Variants)),
		strconv.Itoa(len(p.BuyingOptions)),
		strings.Join(p.Images, "|"),
	}
}
