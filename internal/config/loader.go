package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("SHOPSTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("shopstalk")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".shopstalk"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides resolve.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.max_pages", cfg.Engine.MaxPages)
	v.SetDefault("engine.max_depth", cfg.Engine.MaxDepth)
	v.SetDefault("engine.request_timeout", cfg.Engine.RequestTimeout)
	v.SetDefault("engine.politeness_delay", cfg.Engine.PolitenessDelay)
	v.SetDefault("engine.respect_robots_txt", cfg.Engine.RespectRobotsTxt)
	v.SetDefault("engine.user_agents", cfg.Engine.UserAgents)
	v.SetDefault("engine.links_per_page", cfg.Engine.LinksPerPage)
	v.SetDefault("engine.stored_links_per_page", cfg.Engine.StoredLinksPerPage)
	v.SetDefault("engine.capture_screenshots", cfg.Engine.CaptureScreenshots)
	v.SetDefault("engine.use_sitemap", cfg.Engine.UseSitemap)
	v.SetDefault("engine.sitemap_limit", cfg.Engine.SitemapLimit)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.headless", cfg.Fetcher.Headless)
	v.SetDefault("fetcher.wait_stable", cfg.Fetcher.WaitStable)
	v.SetDefault("fetcher.wait_selector", cfg.Fetcher.WaitSelector)
	v.SetDefault("fetcher.scroll", cfg.Fetcher.Scroll)
	v.SetDefault("fetcher.scroll_steps", cfg.Fetcher.ScrollSteps)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)

	v.SetDefault("url.tracking_params", cfg.URL.TrackingParams)
	v.SetDefault("url.regional_segments", cfg.URL.RegionalSegments)

	v.SetDefault("platform.api_enabled", cfg.Platform.APIEnabled)
	v.SetDefault("platform.probe", cfg.Platform.Probe)
	v.SetDefault("platform.timeout", cfg.Platform.Timeout)

	v.SetDefault("extraction.buying_options", cfg.Extraction.BuyingOptions)
	v.SetDefault("extraction.description_limit", cfg.Extraction.DescriptionLimit)
	v.SetDefault("extraction.max_images", cfg.Extraction.MaxImages)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("monitor.enabled", cfg.Monitor.Enabled)
	v.SetDefault("monitor.snapshot_dir", cfg.Monitor.SnapshotDir)
	v.SetDefault("monitor.interval", cfg.Monitor.Interval)
	v.SetDefault("monitor.runs", cfg.Monitor.Runs)
}
