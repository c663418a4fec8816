package crawlcore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-crawler/internal/backoff"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/fetch"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/frontier"
	"github.com/JakeFAU/realtime-cpi-crawler/internal/sink"
)

type stubRobots struct {
	denied map[string]bool
}

func (r *stubRobots) IsAllowed(_ context.Context, u string) bool {
	return !r.denied[u]
}

type stubFetcher struct {
	links []string
	err   error
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) ([]string, error) {
	return f.links, f.err
}

type recordingFrontier struct {
	pushed []frontier.Item
}

func (f *recordingFrontier) PushAtDepth(_ context.Context, url string, depth int) (bool, error) {
	f.pushed = append(f.pushed, frontier.Item{URL: url, Depth: depth})
	return true, nil
}

func newWorker(t *testing.T, fr FrontierStore, ra RobotsAuthority, f fetch.Fetcher, s sink.Sink, maxDepth int) *Worker {
	t.Helper()
	return New(fr, ra, f, s, Config{
		SeedHost: "monzo.com",
		MaxDepth: maxDepth,
		Backoff:  backoff.NewPolicy(1, 5, 0, 1),
	}, zap.NewNop())
}

func TestCrawlOneDropsOffDomainURL(t *testing.T) {
	t.Parallel()
	fr := &recordingFrontier{}
	w := newWorker(t, fr, &stubRobots{}, &stubFetcher{}, sink.NewStdoutSink(&bytes.Buffer{}), 5)

	err := w.CrawlOne(context.Background(), frontier.Item{URL: "https://evil.com/"})
	require.NoError(t, err)
	assert.Empty(t, fr.pushed)
}

func TestCrawlOneSkipsWhenRobotsDenies(t *testing.T) {
	t.Parallel()
	fr := &recordingFrontier{}
	ra := &stubRobots{denied: map[string]bool{"https://monzo.com/private": true}}
	w := newWorker(t, fr, ra, &stubFetcher{}, sink.NewStdoutSink(&bytes.Buffer{}), 5)

	err := w.CrawlOne(context.Background(), frontier.Item{URL: "https://monzo.com/private"})
	require.NoError(t, err)
	assert.Empty(t, fr.pushed)
}

func TestCrawlOneEmitsAndAdmitsFilteredLinks(t *testing.T) {
	t.Parallel()
	fr := &recordingFrontier{}
	ra := &stubRobots{denied: map[string]bool{"https://monzo.com/blocked": true}}
	f := &stubFetcher{links: []string{
		"https://monzo.com/b",
		"https://evil.com/x",
		"https://monzo.com/a",
		"https://monzo.com/blocked",
		"https://monzo.com/a", // duplicate within page
	}}
	var buf bytes.Buffer
	s := sink.NewStdoutSink(&buf)
	w := newWorker(t, fr, ra, f, s, 5)

	err := w.CrawlOne(context.Background(), frontier.Item{URL: "https://monzo.com/", Depth: 0})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "2 links")
	require.Len(t, fr.pushed, 2)
	assert.Equal(t, "https://monzo.com/a", fr.pushed[0].URL)
	assert.Equal(t, 1, fr.pushed[0].Depth)
	assert.Equal(t, "https://monzo.com/b", fr.pushed[1].URL)
}

func TestCrawlOneDoesNotAdmitPastMaxDepth(t *testing.T) {
	t.Parallel()
	fr := &recordingFrontier{}
	f := &stubFetcher{links: []string{"https://monzo.com/a"}}
	w := newWorker(t, fr, &stubRobots{}, f, sink.NewStdoutSink(&bytes.Buffer{}), 1)

	err := w.CrawlOne(context.Background(), frontier.Item{URL: "https://monzo.com/", Depth: 1})
	require.NoError(t, err)
	assert.Empty(t, fr.pushed, "depth 1 page's children would be depth 2, exceeding maxDepth 1")
}

func TestCrawlOneRetriableBackoffEligibleRunsBackoffAndDoesNotRequeue(t *testing.T) {
	t.Parallel()
	fr := &recordingFrontier{}
	f := &stubFetcher{err: &fetch.RetriableStatusError{URL: "https://monzo.com/", Code: 503}}
	w := newWorker(t, fr, &stubRobots{}, f, sink.NewStdoutSink(&bytes.Buffer{}), 5)

	err := w.CrawlOne(context.Background(), frontier.Item{URL: "https://monzo.com/"})
	require.NoError(t, err)
	assert.Empty(t, fr.pushed)
}

func TestCrawlOneNonRetriableStatusReturnsWithoutBackoff(t *testing.T) {
	t.Parallel()
	fr := &recordingFrontier{}
	f := &stubFetcher{err: &fetch.RetriableStatusError{URL: "https://monzo.com/", Code: 404}}
	w := newWorker(t, fr, &stubRobots{}, f, sink.NewStdoutSink(&bytes.Buffer{}), 5)

	err := w.CrawlOne(context.Background(), frontier.Item{URL: "https://monzo.com/"})
	require.NoError(t, err)
	assert.Empty(t, fr.pushed)
}

func TestCrawlOneFatalErrorReturnsNil(t *testing.T) {
	t.Parallel()
	fr := &recordingFrontier{}
	f := &stubFetcher{err: &fetch.FatalError{URL: "https://monzo.com/", Reason: "boom"}}
	w := newWorker(t, fr, &stubRobots{}, f, sink.NewStdoutSink(&bytes.Buffer{}), 5)

	err := w.CrawlOne(context.Background(), frontier.Item{URL: "https://monzo.com/"})
	require.NoError(t, err)
	assert.Empty(t, fr.pushed)
}
