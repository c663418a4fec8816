// Package backoff implements the retriable-origin damping loop: a fixed
// number of jittered, doubling sleeps bounded by a maximum delay,
// cancellable at any sleep.
package backoff

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// Policy holds the bounds of one backoff run. All fields are taken
// directly from config.Config so the loop needs no other state.
type Policy struct {
	BaseMs    int
	MaxMs     int
	JitterMs  int
	Retries   int
}

// NewPolicy builds a Policy from config-shaped integer fields (kept as
// plain ints, not time.Duration, to mirror the millisecond units the
// configuration surface uses).
func NewPolicy(baseMs, maxMs, jitterMs, retries int) Policy {
	return Policy{BaseMs: baseMs, MaxMs: maxMs, JitterMs: jitterMs, Retries: retries}
}

// Run executes the loop:
//
//	attempt = 1, delay = BaseMs
//	while attempt <= Retries && delay <= MaxMs:
//	    sleep(delay + uniform(0, JitterMs))
//	    delay = min(delay*2, MaxMs); attempt++
//
// The backoff is advisory: it damps load against a struggling origin
// before the next pop, it does not retry the URL that triggered it. Run
// returns early if ctx is cancelled during a sleep.
func Run(ctx context.Context, p Policy) error {
	attempt := 1
	delay := p.BaseMs

	for attempt <= p.Retries && delay <= p.MaxMs {
		jitter := jitterMs(p.JitterMs)
		sleep := time.Duration(delay+jitter) * time.Millisecond

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > p.MaxMs {
			delay = p.MaxMs
		}
		attempt++
	}
	return nil
}

// jitterMs draws a uniform integer in [0, limit]. A zero or negative
// limit draws nothing.
func jitterMs(limit int) int {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)+1))
	if err != nil {
		return limit / 2
	}
	return int(n.Int64())
}
