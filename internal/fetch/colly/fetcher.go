// Package collyfetcher implements fetch.Fetcher on top of gocolly/colly,
// the reference HTML fetcher for this crawler.
package collyfetcher

import (
	"context"
	"fmt"
	"mime"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/realtime-cpi-crawler/internal/fetch"
)

// Config controls the collector built for each fetch.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements fetch.Fetcher using a cloned Colly collector per
// request, so concurrent Fetch calls never share request-scoped state.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher. IgnoreRobotsTxt is always set: robots enforcement
// is this crawler's own responsibility (internal/robots), performed
// before a URL ever reaches Fetch.
func New(cfg Config) *Fetcher {
	base := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.IgnoreRobotsTxt(),
	)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base.SetRequestTimeout(timeout)
	return &Fetcher{cfg: cfg, base: base}
}

type fetchResult struct {
	links      []string
	statusCode int
	err        error
	done       bool
}

// Fetch implements fetch.Fetcher. It classifies failures so a retriable
// status code (fetch.RetriableCodes) becomes *fetch.RetriableStatusError,
// while anything else (any other HTTP error status, transport failure,
// timeout, non-HTML content type) becomes *fetch.FatalError.
func (f *Fetcher) Fetch(ctx context.Context, u string) ([]string, error) {
	c := f.base.Clone()

	var res fetchResult
	linkSet := make(map[string]struct{})

	c.OnResponse(func(r *colly.Response) {
		res.statusCode = r.StatusCode
		if ct := r.Headers.Get("Content-Type"); ct != "" {
			if mediaType, _, err := mime.ParseMediaType(ct); err == nil && !isHTML(mediaType) {
				res.err = &fetch.FatalError{URL: u, Reason: fmt.Sprintf("unsupported content type %q", mediaType)}
			}
		}
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if href == "" {
			return
		}
		abs := e.Request.AbsoluteURL(href)
		if abs != "" {
			linkSet[abs] = struct{}{}
		}
	})

	c.OnError(func(r *colly.Response, visitErr error) {
		if res.err != nil {
			return // content-type rejection already classified this fetch
		}
		code := 0
		if r != nil {
			code = r.StatusCode
		}
		if fetch.IsBackoffEligible(code) {
			res.err = &fetch.RetriableStatusError{URL: u, Code: code}
			return
		}
		if code != 0 {
			res.err = &fetch.FatalError{URL: u, Reason: fmt.Sprintf("http status %d", code), Err: visitErr}
			return
		}
		res.err = &fetch.FatalError{URL: u, Reason: "transport error", Err: visitErr}
	})

	c.OnScraped(func(*colly.Response) { res.done = true })

	done := make(chan error, 1)
	go func() { done <- c.Visit(u) }()

	select {
	case <-ctx.Done():
		return nil, &fetch.FatalError{URL: u, Reason: "context cancelled", Err: ctx.Err()}
	case err := <-done:
		if err != nil && res.err == nil {
			res.err = &fetch.FatalError{URL: u, Reason: "visit failed", Err: err}
		}
	}
	c.Wait()

	if res.err != nil {
		return nil, res.err
	}

	links := make([]string, 0, len(linkSet))
	for l := range linkSet {
		links = append(links, l)
	}
	sort.Strings(links)
	return links, nil
}

func isHTML(mediaType string) bool {
	mediaType = strings.ToLower(mediaType)
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

var _ fetch.Fetcher = (*Fetcher)(nil)
