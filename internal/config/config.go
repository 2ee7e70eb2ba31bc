package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for ShopStalk.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"     yaml:"engine"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"    yaml:"fetcher"`
	URL        URLConfig        `mapstructure:"url"        yaml:"url"`
	Platform   PlatformConfig   `mapstructure:"platform"   yaml:"platform"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
	Monitor    MonitorConfig    `mapstructure:"monitor"    yaml:"monitor"`
}

// EngineConfig controls the crawl loop.
type EngineConfig struct {
	MaxPages           int           `mapstructure:"max_pages"             yaml:"max_pages"`
	MaxDepth           int           `mapstructure:"max_depth"             yaml:"max_depth"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"       yaml:"request_timeout"`
	PolitenessDelay    time.Duration `mapstructure:"politeness_delay"      yaml:"politeness_delay"`
	RespectRobotsTxt   bool          `mapstructure:"respect_robots_txt"    yaml:"respect_robots_txt"`
	UserAgents         []string      `mapstructure:"user_agents"           yaml:"user_agents"`
	LinksPerPage       int           `mapstructure:"links_per_page"        yaml:"links_per_page"`
	StoredLinksPerPage int           `mapstructure:"stored_links_per_page" yaml:"stored_links_per_page"`
	CaptureScreenshots bool          `mapstructure:"capture_screenshots"   yaml:"capture_screenshots"`
	UseSitemap         bool          `mapstructure:"use_sitemap"           yaml:"use_sitemap"`
	SitemapLimit       int           `mapstructure:"sitemap_limit"         yaml:"sitemap_limit"`
}

// FetcherConfig controls the renderer and the HTTP client.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	Headless        bool          `mapstructure:"headless"          yaml:"headless"`
	WaitStable      time.Duration `mapstructure:"wait_stable"       yaml:"wait_stable"`
	WaitSelector    string        `mapstructure:"wait_selector"     yaml:"wait_selector"`
	Scroll          bool          `mapstructure:"scroll"            yaml:"scroll"`
	ScrollSteps     int           `mapstructure:"scroll_steps"      yaml:"scroll_steps"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// URLConfig controls canonicalization and path rules.
type URLConfig struct {
	TrackingParams   []string `mapstructure:"tracking_params"   yaml:"tracking_params"`
	RegionalSegments []string `mapstructure:"regional_segments" yaml:"regional_segments"`
}

// PlatformConfig controls platform detection and the platform API strategy.
type PlatformConfig struct {
	APIEnabled bool          `mapstructure:"api_enabled" yaml:"api_enabled"`
	Probe      bool          `mapstructure:"probe"       yaml:"probe"`
	Timeout    time.Duration `mapstructure:"timeout"     yaml:"timeout"`
}

// ExtractionConfig controls the strategy chain and the normalizer.
type ExtractionConfig struct {
	BuyingOptions    bool              `mapstructure:"buying_options"    yaml:"buying_options"`
	DescriptionLimit int               `mapstructure:"description_limit" yaml:"description_limit"`
	MaxImages        int               `mapstructure:"max_images"        yaml:"max_images"`
	CurrencySymbols  map[string]string `mapstructure:"currency_symbols"  yaml:"currency_symbols"`
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	Type          string `mapstructure:"type"           yaml:"type"`
	OutputPath    string `mapstructure:"output_path"    yaml:"output_path"`
	MongoURI      string `mapstructure:"mongo_uri"      yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// MonitorConfig controls product change tracking between crawls.
type MonitorConfig struct {
	Enabled     bool   `mapstructure:"enabled"      yaml:"enabled"`
	SnapshotDir string `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
	// Interval > 0 recrawls the seed on that period and diffs every round.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// Runs caps the recrawls; 0 means until interrupted.
	Runs int `mapstructure:"runs" yaml:"runs"`
}

// DefaultTrackingParams are query keys dropped during canonicalization.
// Keys ending in "*" match by prefix.
var DefaultTrackingParams = []string{
	"utm_*",
	"fbclid", "gclid", "msclkid",
	"_ga", "_gid", "_gac",
	"mc_cid", "mc_eid",
	"pb",
	"pr_prod_strat", "pr_rec_id", "pr_rec_pid", "pr_ref_pid", "pr_seq",
	"_pos", "_sid", "_ss", "_psq",
	"ref",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxPages:           20,
			MaxDepth:           0,
			RequestTimeout:     30 * time.Second,
			PolitenessDelay:    1 * time.Second,
			RespectRobotsTxt:   true,
			LinksPerPage:       100,
			StoredLinksPerPage: 20,
			SitemapLimit:       500,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			Headless:        true,
			WaitStable:      2 * time.Second,
			ScrollSteps:     3,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
		},
		URL: URLConfig{
			TrackingParams: append([]string(nil), DefaultTrackingParams...),
		},
		Platform: PlatformConfig{
			APIEnabled: true,
			Probe:      true,
			Timeout:    10 * time.Second,
		},
		Extraction: ExtractionConfig{
			BuyingOptions:    true,
			DescriptionLimit: 500,
			MaxImages:        10,
		},
		Storage: StorageConfig{
			Type:          "json",
			OutputPath:    "./output",
			MongoDatabase: "shopstalk",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		Monitor: MonitorConfig{
			Enabled:     false,
			SnapshotDir: "./output/snapshots",
		},
	}
}
