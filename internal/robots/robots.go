// Package robots implements the per-host robots.txt cache and authority
// check: bounded fetch timeout, fail-open on transport/parse errors, and
// at-most-once fetch per host under concurrent first touch.
package robots

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/realtime-cpi-crawler/internal/hostmatch"
)

// entry is the cached artifact for one host. A nil group means "unknown":
// the fetch failed or produced a body with no matching group, which is
// treated as allow-all (fail-open).
type entry struct {
	group *robotstxt.Group
}

// Authority answers isAllowed(u) against a per-host robots.txt cache.
type Authority struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	cache sync.Map // host -> *entry
	flight singleflight.Group
}

// New builds an Authority. timeout bounds each robots.txt fetch.
func New(userAgent string, timeout time.Duration, logger *zap.Logger) *Authority {
	return &Authority{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// IsAllowed resolves the host, fetches+parses+caches its robots.txt on
// first observation (collapsing concurrent first fetches into one via
// singleflight), and tests the URL path against the cached rules. A host
// with no parseable authority is never allowed.
func (a *Authority) IsAllowed(ctx context.Context, rawURL string) bool {
	host, ok := hostmatch.Host(rawURL)
	if !ok {
		return false
	}

	e := a.load(ctx, host)
	if e.group == nil {
		return true
	}
	return e.group.Test(pathOf(rawURL))
}

func (a *Authority) load(ctx context.Context, host string) *entry {
	if cached, ok := a.cache.Load(host); ok {
		return cached.(*entry)
	}

	// singleflight collapses concurrent cold fetches for the same host
	// into one network round trip; losers of the race simply read the
	// winner's result back out.
	result, _, _ := a.flight.Do(host, func() (any, error) {
		if cached, ok := a.cache.Load(host); ok {
			return cached, nil
		}
		e := a.fetch(ctx, host)
		a.cache.Store(host, e)
		return e, nil
	})
	return result.(*entry)
}

func (a *Authority) fetch(ctx context.Context, host string) *entry {
	robotsURL := "https://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		a.logger.Warn("robots: build request failed; allowing access", zap.String("host", host), zap.Error(err))
		return &entry{}
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("robots: fetch failed; allowing access", zap.String("host", host), zap.Error(err))
		return &entry{}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			a.logger.Debug("robots: close body failed", zap.String("host", host), zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		a.logger.Warn("robots: read body failed; allowing access", zap.String("host", host), zap.Error(err))
		return &entry{}
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		a.logger.Warn("robots: parse failed; allowing access", zap.String("host", host), zap.Error(err))
		return &entry{}
	}

	return &entry{group: data.FindGroup(a.userAgent)}
}

func pathOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return "/"
	}
	if parsed.RawQuery != "" {
		return parsed.Path + "?" + parsed.RawQuery
	}
	return parsed.Path
}
