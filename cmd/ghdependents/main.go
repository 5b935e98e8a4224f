package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ghdependents/internal/api"
	"github.com/IshaanNene/ghdependents/internal/config"
	"github.com/IshaanNene/ghdependents/internal/dependents"
	"github.com/IshaanNene/ghdependents/internal/fetcher"
	"github.com/IshaanNene/ghdependents/internal/observability"
	"github.com/IshaanNene/ghdependents/internal/pipeline"
	"github.com/IshaanNene/ghdependents/internal/storage"
	"github.com/IshaanNene/ghdependents/internal/types"
)

// flags holds command-line values for one invocation.
type flags struct {
	cfgFile     string
	verbose     bool
	outputPath  string
	outputType  string
	packageID   string
	pages       int
	host        string
	fetcherType string
	userAgent   string
	minStars    int
	exclude     []string
	noDedup     bool
	port        int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "ghdependents",
		Short: "List the repositories that depend on a GitHub repository",
		Long: `ghdependents walks the "Used by" network page of a GitHub repository
and records every dependent repository with its star and fork counts.

Output can be written as JSON, JSONL or CSV files, streamed to stdout,
or upserted into MongoDB.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&f.cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(listCmd(f))
	rootCmd.AddCommand(serveCmd(f))
	rootCmd.AddCommand(configCmd(f))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// listCmd creates the "list" subcommand.
func listCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <owner> <repository>",
		Short: "List dependents of a repository",
		Example: `  ghdependents list dotnet roslyn --pages 3
  ghdependents list dotnet roslyn --package-id UGFja2FnZS0xNTY3NTE0NTM%3D -f csv -o ./out
  ghdependents list spf13 cobra -f stdout`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), cmd, f, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&f.outputPath, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&f.outputType, "format", "f", "", "output format: json, jsonl, csv, mongodb, stdout (comma list for several)")
	cmd.Flags().StringVar(&f.packageID, "package-id", "", "restrict the listing to one package of the repository")
	cmd.Flags().IntVarP(&f.pages, "pages", "p", 0, "maximum number of listing pages to visit")
	cmd.Flags().StringVar(&f.host, "host", "", "GitHub host")
	cmd.Flags().StringVar(&f.fetcherType, "fetcher", "", "page fetcher: http, browser")
	cmd.Flags().StringVar(&f.userAgent, "user-agent", "", "custom User-Agent string")
	cmd.Flags().IntVar(&f.minStars, "min-stars", 0, "skip dependents with fewer stars")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude-owner", nil, "skip dependents owned by these users or organizations")
	cmd.Flags().BoolVar(&f.noDedup, "no-dedup", false, "keep repeated owner/repository entries")

	return cmd
}

// runList executes the list command.
func runList(ctx context.Context, cmd *cobra.Command, f *flags, owner, repository string) error {
	cfg, err := config.Load(f.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	applyCLIOverrides(cmd, f, cfg)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg, f.verbose, cmd.ErrOrStderr())

	startURL := dependents.DependentsURL(cfg.Scraper.Host, owner, repository, cfg.Scraper.PackageID)
	if err := config.ValidateURL(startURL); err != nil {
		return fmt.Errorf("invalid repository %s/%s: %w", owner, repository, err)
	}

	logger.Info("starting traversal",
		"url", startURL,
		"pages", cfg.Scraper.Pages,
		"fetcher", cfg.Fetcher.Type,
		"output", cfg.Storage.OutputPath,
		"format", cfg.Storage.Type,
	)

	pageFetcher, err := fetcher.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer pageFetcher.Close()

	store, err := storage.New(&cfg.Storage, cmd.OutOrStdout(), logger)
	if err != nil {
		return &types.StorageError{Backend: cfg.Storage.Type, Err: err}
	}

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	scraper := dependents.NewScraper(pageFetcher, logger, dependents.WithMetrics(metrics))
	pipe := pipeline.FromConfig(&cfg.Pipeline, logger)

	start := time.Now()
	runErr := collect(ctx, scraper, pipe, store, startURL, cfg.Scraper.Pages, dependents.PageSize)
	if err := store.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		logger.Error("traversal failed", "url", startURL, "error", runErr)
		return runErr
	}

	elapsed := time.Since(start)
	stats := metrics.Snapshot()

	logger.Info("traversal finished",
		"elapsed", elapsed,
		"pages", stats["pages_fetched"],
		"dependents", stats["dependents_stored"],
		"bytes", stats["bytes_downloaded"],
	)

	// The stdout sink owns stdout, so the summary goes to stderr there.
	out := cmd.OutOrStdout()
	if cfg.Storage.Has("stdout") {
		out = cmd.ErrOrStderr()
	}
	fmt.Fprintf(out, "\nDependents of %s/%s listed in %s\n", owner, repository, elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "   Pages:      %d fetched\n", stats["pages_fetched"])
	fmt.Fprintf(out, "   Dependents: %d stored, %d filtered, %d rows skipped\n",
		stats["dependents_stored"], stats["dependents_filtered"], stats["rows_discarded"])
	fmt.Fprintf(out, "   Data:       %d bytes downloaded\n", stats["bytes_downloaded"])
	if cfg.Storage.Has("json") || cfg.Storage.Has("jsonl") || cfg.Storage.Has("csv") {
		fmt.Fprintf(out, "   Output:     %s\n", cfg.Storage.OutputPath)
	}

	return nil
}

// collect streams the traversal through pipe into store in batches of
// batchSize. A partial batch is flushed before a traversal error is returned.
func collect(ctx context.Context, scraper *dependents.Scraper, pipe *pipeline.Pipeline, store storage.Storage, startURL string, pages, batchSize int) error {
	seq, err := scraper.Stream(ctx, startURL, pages)
	if err != nil {
		return err
	}

	batch := make([]*types.Dependent, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		kept, dropped, err := pipe.ProcessBatch(batch)
		if err != nil {
			return err
		}
		scraper.Metrics().DependentsFiltered.Add(int64(dropped))
		batch = make([]*types.Dependent, 0, batchSize)
		if len(kept) == 0 {
			return nil
		}
		if err := store.Store(kept); err != nil {
			return err
		}
		scraper.Metrics().DependentsStored.Add(int64(len(kept)))
		return nil
	}

	for d, err := range seq {
		if err != nil {
			if ferr := flush(); ferr != nil {
				return ferr
			}
			return err
		}
		batch = append(batch, d)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// serveCmd creates the "serve" subcommand.
func serveCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve dependents listings over HTTP",
		Long: `Start an HTTP API. GET /api/dependents/{owner}/{repository}?pages=N&package_id=ID
streams the listing as newline-delimited JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyCLIOverrides(cmd, f, cfg)
			if cmd.Flags().Changed("port") {
				cfg.API.Port = f.port
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := setupLogger(cfg, f.verbose, cmd.ErrOrStderr())

			pageFetcher, err := fetcher.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("create fetcher: %w", err)
			}
			defer pageFetcher.Close()

			metrics := observability.NewMetrics(logger)
			if cfg.Metrics.Enabled {
				if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
					logger.Warn("failed to start metrics server", "error", err)
				}
			}

			scraper := dependents.NewScraper(pageFetcher, logger, dependents.WithMetrics(metrics))
			srv := api.NewServer(scraper, cfg.Scraper.Host, cfg.API.MaxPages, logger)
			return srv.ListenAndServe(cmd.Context(), cfg.API.Port)
		},
	}

	cmd.Flags().IntVar(&f.port, "port", 0, "API listen port")
	cmd.Flags().StringVar(&f.host, "host", "", "GitHub host")
	cmd.Flags().StringVar(&f.fetcherType, "fetcher", "", "page fetcher: http, browser")
	cmd.Flags().StringVar(&f.userAgent, "user-agent", "", "custom User-Agent string")

	return cmd
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ghdependents %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.cfgFile)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Scraper:\n")
			fmt.Fprintf(w, "  Host:              %s\n", cfg.Scraper.Host)
			fmt.Fprintf(w, "  Pages:             %d\n", cfg.Scraper.Pages)
			fmt.Fprintf(w, "  Package ID:        %s\n", cfg.Scraper.PackageID)
			fmt.Fprintf(w, "\nFetcher:\n")
			fmt.Fprintf(w, "  Type:              %s\n", cfg.Fetcher.Type)
			fmt.Fprintf(w, "  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Fprintf(w, "  Follow Redirects:  %v\n", cfg.Fetcher.FollowRedirects)
			fmt.Fprintf(w, "  Max Body Size:     %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Fprintf(w, "  User Agents:       %d configured\n", len(cfg.Fetcher.UserAgents))
			fmt.Fprintf(w, "\nBrowser:\n")
			fmt.Fprintf(w, "  Headless:          %v\n", cfg.Browser.Headless)
			fmt.Fprintf(w, "  Stealth:           %v\n", cfg.Browser.Stealth)
			fmt.Fprintf(w, "\nStorage:\n")
			fmt.Fprintf(w, "  Type:              %s\n", cfg.Storage.Type)
			fmt.Fprintf(w, "  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Fprintf(w, "\nLogging:\n")
			fmt.Fprintf(w, "  Level:             %s\n", cfg.Logging.Level)
			fmt.Fprintf(w, "  Format:            %s\n", cfg.Logging.Format)
			fmt.Fprintf(w, "\nPipeline:\n")
			fmt.Fprintf(w, "  Dedup:             %v\n", cfg.Pipeline.Dedup)
			fmt.Fprintf(w, "  Min Stars:         %d\n", cfg.Pipeline.MinStars)
			fmt.Fprintf(w, "  Excluded Owners:   %s\n", strings.Join(cfg.Pipeline.ExcludeOwners, ", "))
			fmt.Fprintf(w, "\nMetrics:\n")
			fmt.Fprintf(w, "  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Fprintf(w, "  Port:              %d\n", cfg.Metrics.Port)
			fmt.Fprintf(w, "\nAPI:\n")
			fmt.Fprintf(w, "  Port:              %d\n", cfg.API.Port)
			fmt.Fprintf(w, "  Max Pages:         %d\n", cfg.API.MaxPages)
			return nil
		},
	}
}

// setupLogger creates a structured logger from the logging config.
func setupLogger(cfg *config.Config, verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
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

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies explicitly set command-line flags to the config.
func applyCLIOverrides(cmd *cobra.Command, f *flags, cfg *config.Config) {
	if cmd.Flags().Changed("pages") {
		cfg.Scraper.Pages = f.pages
	}
	if f.packageID != "" {
		cfg.Scraper.PackageID = f.packageID
	}
	if f.host != "" {
		cfg.Scraper.Host = f.host
	}
	if f.fetcherType != "" {
		cfg.Fetcher.Type = strings.ToLower(f.fetcherType)
	}
	if f.userAgent != "" {
		cfg.Fetcher.UserAgents = []string{f.userAgent}
	}
	if f.outputPath != "" {
		cfg.Storage.OutputPath = f.outputPath
	}
	if f.outputType != "" {
		cfg.Storage.Type = strings.ToLower(f.outputType)
	}
	if cmd.Flags().Changed("min-stars") {
		cfg.Pipeline.MinStars = f.minStars
	}
	if len(f.exclude) > 0 {
		cfg.Pipeline.ExcludeOwners = append(cfg.Pipeline.ExcludeOwners, f.exclude...)
	}
	if f.noDedup {
		cfg.Pipeline.Dedup = false
	}
}
