// Package sink implements the crawl output writer: one record per
// crawled page, the page URL followed by its filtered, ascending-sorted
// links, written without interleaving across workers.
package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Sink receives one record per successfully crawled page. Implementations
// must serialize concurrent calls to Emit themselves; the crawl worker
// does not hold any lock of its own around the call.
type Sink interface {
	Emit(page string, links []string) error
}

// StdoutSink writes a plain-text format: a header line followed by one
// indented line per link. A single mutex
// guards the writer so a page's lines never interleave with another
// worker's.
type StdoutSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutSink wraps w. Passing os.Stdout gives the reference behavior.
func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{w: w}
}

// Emit writes the header/links block for one page. links is sorted
// ascending before writing.
func (s *StdoutSink) Emit(page string, links []string) error {
	sorted := make([]string, len(links))
	copy(sorted, links)
	sort.Strings(sorted)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "%s  →  %d links\n", page, len(sorted)); err != nil {
		return fmt.Errorf("sink: write header: %w", err)
	}
	for _, l := range sorted {
		if _, err := fmt.Fprintf(s.w, "    %s\n", l); err != nil {
			return fmt.Errorf("sink: write link: %w", err)
		}
	}
	return nil
}

// Record is the structured form JSONLSink writes, one per line.
type Record struct {
	Page  string   `json:"page"`
	Links []string `json:"links"`
}

// JSONLSink writes one JSON object per page, newline-delimited. A
// structured alternative to the plain-text format, useful for piping
// crawl output into downstream tooling.
type JSONLSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLSink wraps w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{enc: json.NewEncoder(w)}
}

// Emit writes one Record as a JSON line.
func (s *JSONLSink) Emit(page string, links []string) error {
	sorted := make([]string, len(links))
	copy(sorted, links)
	sort.Strings(sorted)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(Record{Page: page, Links: sorted}); err != nil {
		return fmt.Errorf("sink: encode record: %w", err)
	}
	return nil
}

var (
	_ Sink = (*StdoutSink)(nil)
	_ Sink = (*JSONLSink)(nil)
)
