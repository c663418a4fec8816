// Package supervisor implements the worker-pool fan-out and termination
// logic: spawn N worker tasks against the frontier, detect drain via a
// blocking pop plus an active-worker counter, and bound shutdown by a
// deadline once cancellation is requested.
package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-cpi-crawler/internal/crawlcore"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/frontier"
)

// FrontierStore is the subset of *frontier.Store the supervisor drives
// directly (pushing the seed URL and blocking-popping for work).
type FrontierStore interface {
	Push(ctx context.Context, url string) (bool, error)
	PopBlocking(ctx context.Context, timeout time.Duration) (frontier.Item, bool, error)
}

var _ FrontierStore = (*frontier.Store)(nil)

// Crawler runs one URL through the crawl lifecycle.
type Crawler interface {
	CrawlOne(ctx context.Context, item frontier.Item) error
}

var _ Crawler = (*crawlcore.Worker)(nil)

// Config controls pool shape and termination timing.
type Config struct {
	Concurrency     int
	PopTimeout      time.Duration
	ShutdownTimeout time.Duration
}

// Supervisor owns the worker pool lifecycle.
type Supervisor struct {
	frontier FrontierStore
	crawler  Crawler
	cfg      Config
	logger   *zap.Logger
}

// New builds a Supervisor.
func New(fr FrontierStore, crawler Crawler, cfg Config, logger *zap.Logger) *Supervisor {
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Supervisor{frontier: fr, crawler: crawler, cfg: cfg, logger: logger}
}

// Run admits startURL, spawns the worker pool, and blocks until every
// worker has drained the frontier or ctx is cancelled. On cancellation it
// gives in-flight workers up to cfg.ShutdownTimeout to return before
// forcing this call to return anyway.
func (s *Supervisor) Run(ctx context.Context, startURL string) error {
	if _, err := s.frontier.Push(ctx, startURL); err != nil {
		return err
	}

	active := int32(s.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Concurrency; i++ {
		g.Go(func() error {
			return s.workerLoop(gctx, &active)
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		s.logger.Info("crawl complete, all workers drained")
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			s.logger.Info("crawl complete after cancellation")
			return err
		case <-time.After(s.cfg.ShutdownTimeout):
			s.logger.Warn("shutdown deadline elapsed; returning with workers still draining",
				zap.Duration("deadline", s.cfg.ShutdownTimeout))
			return ctx.Err()
		}
	}
}

// workerLoop is one pool member's life: pop (blocking, bounded), process,
// repeat; exit once a pop comes back empty while no worker is active (the
// active counter at zero).
func (s *Supervisor) workerLoop(ctx context.Context, active *int32) error {
	idle := false
	for {
		if ctx.Err() != nil {
			return nil
		}

		item, found, err := s.frontier.PopBlocking(ctx, s.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if found {
			if idle {
				atomic.AddInt32(active, 1)
				idle = false
			}
			if err := s.crawler.CrawlOne(ctx, item); err != nil {
				s.logger.Error("crawl iteration failed", zap.String("url", item.URL), zap.Error(err))
			}
			continue
		}

		// This worker counts as idle from its first empty pop until it
		// receives an item again. Only active workers enqueue work, so an
		// empty pop with the counter at zero means the frontier is drained;
		// otherwise keep waiting for what the active workers produce.
		if !idle {
			idle = true
			atomic.AddInt32(active, -1)
		}
		if atomic.LoadInt32(active) == 0 {
			return nil
		}
	}
}
