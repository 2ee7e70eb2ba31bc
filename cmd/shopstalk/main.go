package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ShopStalk/internal/config"
	"github.com/IshaanNene/ShopStalk/internal/engine"
	"github.com/IshaanNene/ShopStalk/internal/fetcher"
	"github.com/IshaanNene/ShopStalk/internal/monitor"
	"github.com/IshaanNene/ShopStalk/internal/storage"
	"github.com/IshaanNene/ShopStalk/internal/types"
)

var (
	cfgFile     string
	verbose     bool
	logFormat   string
	outputPath  string
	outputType  string
	maxPages    int
	depth       int
	delay       time.Duration
	fetcherType string
	noRobots    bool
	screenshots bool
	noPlatform  bool
	track       bool
	useSitemap  bool
	every       time.Duration
	runs        int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shopstalk",
		Short: "ShopStalk — commerce product crawler",
		Long: `ShopStalk crawls a store, decides which pages are single-product pages
and extracts normalized product records from them.

Features:
  • Canonical URL frontier with a page budget and catalog-first ordering
  • Product page classification from URL grammar, structured data and DOM cues
  • Extraction from platform APIs (Shopify, WooCommerce), JSON-LD/microdata and the DOM
  • Exact decimal prices with one-time, subscription and compare-at kinds
  • Variants and buying options (quantity, subscription, tier)
  • JSON, JSONL, CSV and MongoDB output
  • robots.txt compliance and politeness delay
  • Optional frontier seeding from the store's sitemaps
  • Product change tracking, once or on a recrawl interval
  • Prometheus metrics endpoint`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json")
	rootCmd.PersistentFlags().StringVar(&fetcherType, "fetcher", "", "renderer: http, browser")
	rootCmd.PersistentFlags().BoolVar(&noPlatform, "no-platform-api", false, "disable platform API extraction")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a store from a seed URL",
		Long:  "Crawl the seed URL's host, classify every visited page and extract products.",
		Args:  cobra.ExactArgs(1),
		RunE:  runCrawl,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "extra output format: json, jsonl, csv, mongo")
	cmd.Flags().IntVarP(&maxPages, "max-pages", "m", 0, "page budget")
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "maximum link depth (0 = unlimited)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "politeness delay between pages")
	cmd.Flags().BoolVar(&noRobots, "no-robots", false, "ignore robots.txt")
	cmd.Flags().BoolVar(&screenshots, "screenshots", false, "capture screenshots of product pages")
	cmd.Flags().BoolVar(&track, "track-changes", false, "report product changes since the previous crawl")
	cmd.Flags().BoolVar(&useSitemap, "sitemap", false, "seed the frontier from the store's sitemaps")
	cmd.Flags().DurationVar(&every, "every", 0, "recrawl on this interval and report changes each round")
	cmd.Flags().IntVar(&runs, "runs", 0, "number of recrawls with --every (0 = until interrupted)")

	return cmd
}

// inspectCmd creates the "inspect" subcommand.
func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [url]",
		Short: "Classify and extract a single page",
		Long:  "Visit one page without following links and print its page record as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
}

// loadConfig loads, overrides and validates the configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newEngine wires the renderer and HTTP client into an engine.
func newEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, fetcher.Renderer, error) {
	client := fetcher.NewHTTPFetcher(cfg, logger)
	renderer, err := fetcher.NewRenderer(cfg, client, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create renderer: %w", err)
	}
	return engine.New(cfg, renderer, client, logger), renderer, nil
}

// runCrawl executes the crawl command.
func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	if err := config.ValidateURL(args[0]); err != nil {
		return fmt.Errorf("invalid URL %q: %w", args[0], err)
	}

	eng, renderer, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := renderer.Close(); err != nil {
			logger.Error("renderer close error", "error", err)
		}
	}()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("storage close error", "error", err)
		}
	}()
	eng.SetStorage(store)

	if cfg.Metrics.Enabled {
		if err := eng.Metrics().StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = eng.Metrics().Shutdown(ctx)
		}()
	}

	// The current page finishes before the crawl stops.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Monitor.Interval > 0 {
		return watchSeed(ctx, cfg, eng, store.Name(), args[0], logger)
	}

	result, err := eng.Run(ctx, args[0])
	if result == nil {
		return err
	}
	printResult(cfg, result, store.Name())

	if cfg.Monitor.Enabled {
		if cerr := reportChanges(cfg, result, logger); cerr != nil {
			logger.Error("change tracking failed", "error", cerr)
		}
	}

	if err != nil {
		return fmt.Errorf("store results: %w", err)
	}
	return nil
}

func printResult(cfg *config.Config, result *types.CrawlResult, storeName string) {
	fmt.Printf("\n✅ Crawl %s complete in %s\n", result.CrawlID, result.FinishedAt.Sub(result.CrawlTime).Round(time.Millisecond))
	fmt.Printf("   Platform:  %s\n", result.Platform)
	fmt.Printf("   Pages:     %d visited, %d product pages, %d failed\n", result.TotalPages, result.ProductPageCount, result.FailedPages)
	fmt.Printf("   Products:  %d\n", result.TotalProducts)
	fmt.Printf("   Output:    %s (%s)\n", cfg.Storage.OutputPath, storeName)
}

// reportChanges diffs the crawl against the previous one for the same seed
// and writes changes.json next to the other output files.
func reportChanges(cfg *config.Config, result *types.CrawlResult, logger *slog.Logger) error {
	detector, err := monitor.NewChangeDetector(cfg.Monitor.SnapshotDir, logger)
	if err != nil {
		return err
	}
	changes, err := detector.Detect(result)
	if err != nil {
		return err
	}
	return writeChanges(cfg, changes)
}

func writeChanges(cfg *config.Config, changes []monitor.Change) error {
	if err := monitor.SaveChanges(filepath.Join(cfg.Storage.OutputPath, "changes.json"), changes); err != nil {
		return err
	}
	sum := monitor.Summary(changes)
	fmt.Printf("   Changes:   %d added, %d modified, %d removed\n",
		sum[monitor.ChangeAdded], sum[monitor.ChangeModified], sum[monitor.ChangeRemoved])
	return nil
}

// watchSeed recrawls the seed every monitor.interval until the run cap or a
// signal, reporting changes after each complete round.
func watchSeed(ctx context.Context, cfg *config.Config, eng *engine.Engine, storeName, seed string, logger *slog.Logger) error {
	detector, err := monitor.NewChangeDetector(cfg.Monitor.SnapshotDir, logger)
	if err != nil {
		return err
	}
	w, err := monitor.NewWatcher(eng, detector, cfg.Monitor.Interval, cfg.Monitor.Runs, logger)
	if err != nil {
		return err
	}
	return w.Watch(ctx, seed, func(r monitor.Round) {
		if r.Result == nil {
			return
		}
		printResult(cfg, r.Result, storeName)
		if r.Err != nil {
			logger.Error("recrawl round failed", "round", r.N, "error", r.Err)
		}
		if r.Changes != nil {
			if err := writeChanges(cfg, r.Changes); err != nil {
				logger.Error("change tracking failed", "round", r.N, "error", err)
			}
		}
	})
}

// runInspect executes the inspect command.
func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	if err := config.ValidateURL(args[0]); err != nil {
		return fmt.Errorf("invalid URL %q: %w", args[0], err)
	}

	eng, renderer, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer renderer.Close()

	page, err := eng.Inspect(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(page)
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ShopStalk %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			applyCLIOverrides(cmd, cfg)
			fmt.Printf("Engine:\n")
			fmt.Printf("  Max Pages:          %d\n", cfg.Engine.MaxPages)
			fmt.Printf("  Max Depth:          %d\n", cfg.Engine.MaxDepth)
			fmt.Printf("  Request Timeout:    %s\n", cfg.Engine.RequestTimeout)
			fmt.Printf("  Politeness Delay:   %s\n", cfg.Engine.PolitenessDelay)
			fmt.Printf("  Respect robots.txt: %v\n", cfg.Engine.RespectRobotsTxt)
			fmt.Printf("  User Agents:        %d configured\n", len(cfg.Engine.UserAgents))
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:               %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Headless:           %v\n", cfg.Fetcher.Headless)
			fmt.Printf("  Wait Stable:        %s\n", cfg.Fetcher.WaitStable)
			fmt.Printf("  Max Body Size:      %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("\nPlatform:\n")
			fmt.Printf("  API Enabled:        %v\n", cfg.Platform.APIEnabled)
			fmt.Printf("  Probe:              %v\n", cfg.Platform.Probe)
			fmt.Printf("\nExtraction:\n")
			fmt.Printf("  Buying Options:     %v\n", cfg.Extraction.BuyingOptions)
			fmt.Printf("  Description Limit:  %d\n", cfg.Extraction.DescriptionLimit)
			fmt.Printf("  Max Images:         %d\n", cfg.Extraction.MaxImages)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:               %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:        %s\n", cfg.Storage.OutputPath)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:            %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:               %d\n", cfg.Metrics.Port)
			return nil
		},
	}
	return cmd
}

// setupLogger creates a structured logger.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if cfg.Output == "stdout" {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies flags the user set to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("max-pages") {
		cfg.Engine.MaxPages = maxPages
	}
	if flags.Changed("depth") {
		cfg.Engine.MaxDepth = depth
	}
	if flags.Changed("delay") {
		cfg.Engine.PolitenessDelay = delay
	}
	if noRobots {
		cfg.Engine.RespectRobotsTxt = false
	}
	if screenshots {
		cfg.Engine.CaptureScreenshots = true
	}
	if track {
		cfg.Monitor.Enabled = true
	}
	if useSitemap {
		cfg.Engine.UseSitemap = true
	}
	if flags.Changed("every") {
		cfg.Monitor.Interval = every
		cfg.Monitor.Enabled = true
	}
	if flags.Changed("runs") {
		cfg.Monitor.Runs = runs
	}
	if noPlatform {
		cfg.Platform.APIEnabled = false
	}
	if fetcherType != "" {
		cfg.Fetcher.Type = strings.ToLower(fetcherType)
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if outputType != "" {
		cfg.Storage.Type = strings.ToLower(outputType)
	}
	if logFormat != "" {
		cfg.Logging.Format = strings.ToLower(logFormat)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}
