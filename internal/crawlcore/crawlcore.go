// Package crawlcore implements the per-URL crawl lifecycle: domain gate,
// robots gate, fetch, link filtering, sink emission, and frontier
// re-admission of newly discovered same-domain links.
package crawlcore

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-crawler/internal/backoff"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/fetch"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/frontier"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/hostmatch"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/metrics"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/robots"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/sink"
)

// RobotsAuthority is the subset of *robots.Authority the worker depends
// on; narrow on purpose so tests can supply a stub without wiring a real
// HTTP transport.
type RobotsAuthority interface {
	IsAllowed(ctx context.Context, rawURL string) bool
}

var _ RobotsAuthority = (*robots.Authority)(nil)

// FrontierStore is the subset of *frontier.Store the worker depends on.
type FrontierStore interface {
	PushAtDepth(ctx context.Context, url string, depth int) (bool, error)
}

var _ FrontierStore = (*frontier.Store)(nil)

// Worker runs one URL through the fetch-filter-emit-admit lifecycle at a
// time. A Worker holds no per-URL state, so a single instance is reused
// across a worker-pool's loop iterations.
type Worker struct {
	frontier      FrontierStore
	robots        RobotsAuthority
	fetcher       fetch.Fetcher
	sink          sink.Sink
	seedHost      string
	maxDepth      int
	backoffPolicy backoff.Policy
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// Config collects everything a Worker needs beyond its collaborators.
type Config struct {
	SeedHost string
	MaxDepth int
	Backoff  backoff.Policy
	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics
}

// New builds a Worker.
func New(fr FrontierStore, ra RobotsAuthority, f fetch.Fetcher, s sink.Sink, cfg Config, logger *zap.Logger) *Worker {
	return &Worker{
		frontier:      fr,
		robots:        ra,
		fetcher:       f,
		sink:          s,
		seedHost:      cfg.SeedHost,
		maxDepth:      cfg.MaxDepth,
		backoffPolicy: cfg.Backoff,
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

func (w *Worker) observePage(outcome metrics.PageOutcome) {
	if w.metrics != nil {
		w.metrics.ObservePage(outcome)
	}
}

// CrawlOne runs the full crawl lifecycle for one popped frontier item.
func (w *Worker) CrawlOne(ctx context.Context, item frontier.Item) error {
	pageHost, ok := hostmatch.Host(item.URL)
	if !ok || !hostmatch.SameDomain(w.seedHost, pageHost) {
		w.logger.Warn("dropping off-domain url from frontier",
			zap.String("url", item.URL), zap.String("seed_host", w.seedHost))
		w.observePage(metrics.OutcomeOffDomain)
		return nil
	}

	if !w.robots.IsAllowed(ctx, item.URL) {
		w.logger.Info("blocked by robots.txt", zap.String("url", item.URL))
		w.observePage(metrics.OutcomeRobotsDenied)
		return nil
	}

	links, err := w.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		return w.handleFetchError(ctx, item.URL, err)
	}

	filtered := w.filterLinks(ctx, links)

	if err := w.sink.Emit(item.URL, filtered); err != nil {
		w.logger.Error("sink emit failed", zap.String("url", item.URL), zap.Error(err))
		return err
	}

	w.observePage(metrics.OutcomeSuccess)
	w.admit(ctx, item.Depth, filtered)
	return nil
}

func (w *Worker) handleFetchError(ctx context.Context, u string, err error) error {
	var retriable *fetch.RetriableStatusError
	if errors.As(err, &retriable) {
		w.observePage(metrics.OutcomeRetriable)
		if fetch.IsBackoffEligible(retriable.Code) {
			w.logger.Warn("retriable status, backing off; not requeued",
				zap.String("url", u), zap.Int("status", retriable.Code))
			if w.metrics != nil {
				w.metrics.BackoffInvocations.Inc()
			}
			return backoff.Run(ctx, w.backoffPolicy)
		}
		w.logger.Warn("non-retriable status", zap.String("url", u), zap.Int("status", retriable.Code))
		return nil
	}

	var fatal *fetch.FatalError
	if errors.As(err, &fatal) {
		w.observePage(metrics.OutcomeFatal)
		w.logger.Error("fatal fetch error", zap.String("url", u), zap.String("reason", fatal.Reason), zap.Error(fatal.Err))
		return nil
	}

	w.observePage(metrics.OutcomeFatal)
	w.logger.Error("unclassified fetch error", zap.String("url", u), zap.Error(err))
	return nil
}

// filterLinks keeps same-domain, robots-allowed links, deduplicated
// within the page and sorted ascending.
func (w *Worker) filterLinks(ctx context.Context, links []string) []string {
	seen := make(map[string]struct{}, len(links))
	kept := make([]string, 0, len(links))
	for _, l := range links {
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}

		host, ok := hostmatch.Host(l)
		if !ok || !hostmatch.SameDomain(w.seedHost, host) {
			if w.metrics != nil {
				w.metrics.LinksFiltered.Inc()
			}
			continue
		}
		if !w.robots.IsAllowed(ctx, l) {
			if w.metrics != nil {
				w.metrics.LinksFiltered.Inc()
			}
			continue
		}
		kept = append(kept, l)
	}
	sort.Strings(kept)
	return kept
}

// admit pushes each filtered link back onto the frontier at depth+1,
// provided doing so would not exceed maxDepth. Rejection (duplicate or
// depth limit) is expected and not logged as an error.
func (w *Worker) admit(ctx context.Context, parentDepth int, links []string) {
	childDepth := parentDepth + 1
	if childDepth > w.maxDepth {
		return
	}
	for _, l := range links {
		admitted, err := w.frontier.PushAtDepth(ctx, l, childDepth)
		if err != nil {
			w.logger.Warn("frontier push failed", zap.String("url", l), zap.Error(err))
			continue
		}
		if admitted && w.metrics != nil {
			w.metrics.LinksAdmitted.Inc()
		}
	}
}
