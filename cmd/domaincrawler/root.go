// Package domaincrawler implements the crawler's command-line entry
// point: a single root command, no subcommands, that performs the crawl
// directly.
package domaincrawler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-crawler/internal/backoff"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/config"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/crawlcore"
	collyfetcher "github.com/JakeFAU/realtime-cpi-crawler/internal/fetch/colly"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/frontier"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/hostmatch"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/logging"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/metrics"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/obshttp"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/robots"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/sink"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/supervisor"
)

type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

var cfgFile string

// NewRootCmd builds the crawler's single cobra command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domaincrawler",
		Short: "Crawl a single domain, respecting robots.txt, via a distributed frontier.",
		Long: `domaincrawler starts at a seed URL, follows only same-domain links,
and coordinates with peer processes through a Redis-backed frontier so
multiple instances can safely share one crawl.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(false)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if cfg.Development {
				logger, err = logging.New(true)
				if err != nil {
					return fmt.Errorf("rebuild logger for development: %w", err)
				}
			}

			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		RunE: runCrawl,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML configuration file")
	return cmd
}

// Execute is the process entry point invoked from main.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	if cmd.Context() == nil {
		return fmt.Errorf("domaincrawler: runtime not initialized")
	}
	rt, ok := cmd.Context().Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return fmt.Errorf("domaincrawler: runtime not initialized")
	}
	cfg, logger := rt.cfg, rt.logger
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))
	logger.Info("starting crawl", zap.String("start_url", cfg.StartURL), zap.Int("concurrency", cfg.Concurrency))

	seedHost, ok := hostmatch.Host(cfg.StartURL)
	if !ok {
		return fmt.Errorf("domaincrawler: start_url %q has no parseable host", cfg.StartURL)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fr, err := frontier.New(frontier.Config{
		Addr:          cfg.Redis.Addr(),
		QueueKey:      cfg.QueueKey,
		VisitedSetKey: cfg.VisitedSetKey,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect frontier: %w", err)
	}
	defer func() {
		if cerr := fr.Close(); cerr != nil {
			logger.Warn("frontier close failed", zap.Error(cerr))
		}
	}()

	ra := robots.New(cfg.UserAgent, cfg.RobotsTimeout(), logger)
	fetcher := collyfetcher.New(collyfetcher.Config{UserAgent: cfg.UserAgent, Timeout: cfg.FetchTimeout()})
	outputSink := buildSink(cfg)
	m := metrics.New()

	if cfg.MetricsAddr != "" {
		obsSrv := obshttp.New(cfg.MetricsAddr, m.Registry, logger)
		go func() {
			if err := obsSrv.Run(ctx); err != nil {
				logger.Warn("observability server stopped with error", zap.Error(err))
			}
		}()
	}

	worker := crawlcore.New(fr, ra, fetcher, outputSink, crawlcore.Config{
		SeedHost: seedHost,
		MaxDepth: cfg.MaxDepth,
		Backoff:  backoff.NewPolicy(cfg.BackoffBaseMs, cfg.BackoffMaxMs, cfg.BackoffJitterMs, cfg.BackoffRetries),
		Metrics:  m,
	}, logger)

	sup := supervisor.New(fr, worker, supervisor.Config{
		Concurrency:     cfg.Concurrency,
		PopTimeout:      cfg.BRPOPTimeout(),
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	start := time.Now()
	if err := sup.Run(ctx, cfg.StartURL); err != nil {
		logger.Error("crawl ended with error", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return fmt.Errorf("run crawl: %w", err)
	}

	logger.Info("crawl finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func buildSink(cfg config.Config) sink.Sink {
	if cfg.OutputFormat == "jsonl" {
		return sink.NewJSONLSink(os.Stdout)
	}
	return sink.NewStdoutSink(os.Stdout)
}
