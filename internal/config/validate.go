package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.MaxPages < 1 {
		return fmt.Errorf("engine.max_pages must be >= 1, got %d", cfg.Engine.MaxPages)
	}
	if cfg.Engine.MaxDepth < 0 {
		return fmt.Errorf("engine.max_depth must be >= 0, got %d", cfg.Engine.MaxDepth)
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.PolitenessDelay < 0 {
		return fmt.Errorf("engine.politeness_delay must be >= 0")
	}
	if cfg.Engine.LinksPerPage < 1 {
		return fmt.Errorf("engine.links_per_page must be >= 1, got %d", cfg.Engine.LinksPerPage)
	}
	if cfg.Engine.StoredLinksPerPage < 0 {
		return fmt.Errorf("engine.stored_links_per_page must be >= 0, got %d", cfg.Engine.StoredLinksPerPage)
	}
	if cfg.Engine.SitemapLimit < 0 {
		return fmt.Errorf("engine.sitemap_limit must be >= 0, got %d", cfg.Engine.SitemapLimit)
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.ScrollSteps < 0 {
		return fmt.Errorf("fetcher.scroll_steps must be >= 0, got %d", cfg.Fetcher.ScrollSteps)
	}

	if cfg.Platform.Timeout <= 0 {
		return fmt.Errorf("platform.timeout must be > 0")
	}

	if cfg.Extraction.DescriptionLimit < 0 {
		return fmt.Errorf("extraction.description_limit must be >= 0, got %d", cfg.Extraction.DescriptionLimit)
	}
	for symbol, code := range cfg.Extraction.CurrencySymbols {
		if symbol == "" || len(code) != 3 {
			return fmt.Errorf("extraction.currency_symbols: %q -> %q must map a symbol to a 3-letter code", symbol, code)
		}
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true, "mongo": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: json, jsonl, csv, mongo)", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "mongo" && cfg.Storage.MongoURI == "" {
		return fmt.Errorf("storage.mongo_uri is required for mongo storage")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	if (cfg.Monitor.Enabled || cfg.Monitor.Interval > 0) && cfg.Monitor.SnapshotDir == "" {
		return fmt.Errorf("monitor.snapshot_dir is required when monitor.enabled is set")
	}
	if cfg.Monitor.Interval < 0 {
		return fmt.Errorf("monitor.interval must be >= 0, got %s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.Runs < 0 {
		return fmt.Errorf("monitor.runs must be >= 0, got %d", cfg.Monitor.Runs)
	}

	return nil
}

// ValidateURL checks if a URL string is valid as a crawl seed.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
