package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/observability"
	"github.com/IshaanNene/sourcewatch/pkg/sourcewatch"
)

var (
	cfgFile      string
	verbose      bool
	outputFormat string
	query        string
	deadline     time.Duration
	delay        time.Duration
	maxRetries   int
	userAgent    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sourcewatch",
		Short: "Sourcewatch: resilient headline extraction from news, government and social sites",
		Long: `Sourcewatch fetches a fixed set of public sites, extracts headline and
summary pairs with per-site selector rules, filters out noise and returns
bounded, deduplicated records.

Categories are scraped concurrently; sources within a category are fetched
one after another with a politeness delay. A failing site never fails the run.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "output format: table, json, yaml")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(allCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func addScrapeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&query, "query", "q", "", "only keep records mentioning this text")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "overall deadline (0 = config value)")
	cmd.Flags().DurationVar(&delay, "delay", -1, "politeness delay between sources (-1 = config value)")
	cmd.Flags().IntVar(&maxRetries, "max-attempts", 0, "fetch attempts per source (0 = config value)")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "custom User-Agent string")
}

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape <category>",
		Short: "Scrape one category (news, government, social)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := sourcewatch.ParseCategory(args[0])
			if err != nil {
				return err
			}

			client, _, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signalContext()
			defer stop()

			records, errs := client.Scrape(ctx, category, query)
			if err := writeRecords(cmd.OutOrStdout(), outputFormat, records); err != nil {
				return err
			}
			writeFailures(cmd.ErrOrStderr(), errs)
			return nil
		},
	}
	addScrapeFlags(cmd)
	return cmd
}

// allCmd creates the "all" subcommand.
func allCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Scrape every category concurrently and merge the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, logger, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signalContext()
			defer stop()

			result := client.ScrapeAll(ctx, query)
			if err := writeResult(cmd.OutOrStdout(), outputFormat, result); err != nil {
				return err
			}

			logger.Info("run complete",
				"run_id", result.RunID,
				"records", len(result.Records),
				"duplicates", result.Duplicates,
				"failed_sources", len(result.Failed()),
				"duration", result.Duration.Round(time.Millisecond),
			)
			return nil
		},
	}
	addScrapeFlags(cmd)
	return cmd
}

// healthCmd creates the "health" subcommand.
func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health [url...]",
		Short: "Check which source URLs respond (one attempt each, no extraction)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signalContext()
			defer stop()

			var working, failed []string
			if len(args) > 0 {
				working, failed = client.HealthCheck(ctx, args...)
			} else {
				working, failed = client.HealthCheckSources(ctx)
			}
			return writeHealth(cmd.OutOrStdout(), outputFormat, working, failed)
		},
	}
}

// sourcesCmd creates the "sources" subcommand.
func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources [category]",
		Short: "List the configured sources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			categories := sourcewatch.Categories()
			if len(args) == 1 {
				category, err := sourcewatch.ParseCategory(args[0])
				if err != nil {
					return err
				}
				categories = []sourcewatch.Category{category}
			}

			var sources []sourcewatch.Source
			for _, category := range categories {
				sources = append(sources, cfg.SourcesFor(category)...)
			}
			return writeSources(cmd.OutOrStdout(), outputFormat, sources)
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sourcewatch %s\n", config.Version)
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newClient() (*sourcewatch.Client, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger := observability.NewLogger(cfg.Logging, os.Stderr)
	client, err := sourcewatch.NewWithConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, logger, nil
}

// signalContext cancels on SIGINT or SIGTERM so in-flight fetches abort and
// partial results are still printed.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if deadline > 0 {
		cfg.Scrape.Deadline = deadline
	}
	if delay >= 0 {
		cfg.Scrape.InterSourceDelay = delay
	}
	if maxRetries > 0 {
		cfg.Retry.MaxAttempts = maxRetries
	}
	if userAgent != "" {
		cfg.Fetcher.UserAgents = []string{userAgent}
	}
}
