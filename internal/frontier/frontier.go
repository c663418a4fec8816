// Package frontier implements the distributed frontier store: atomic
// enqueue-if-unseen, non-blocking and blocking pop, and the Seen/Pending
// bookkeeping backing them, on top of a Redis-compatible server.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// admissionScript atomically adds url to the Seen set and, only on first
// admission, pushes the queue entry onto Pending. Keeping the LPUSH
// payload (ARGV[2]) distinct from the SADD member (ARGV[1]) lets the
// queue entry carry a depth prefix (see encodeEntry) while Seen/dedup
// stays keyed on the bare URL.
//
// go-redis's Script.Run issues EVALSHA and transparently falls back to
// EVAL (then caches the new SHA) on a NOSCRIPT reply — no script-hash
// bookkeeping is needed at this call site.
var admissionScript = redis.NewScript(`
if redis.call('SADD', KEYS[2], ARGV[1]) == 1 then
	return redis.call('LPUSH', KEYS[1], ARGV[2])
else
	return 0
end
`)

// Item is a URL admitted to the frontier together with the depth at which
// it was discovered.
type Item struct {
	URL   string
	Depth int
}

// Store is a Redis-backed FrontierStore. The zero value is not usable;
// construct with New.
type Store struct {
	client    *redis.Client
	queueKey  string
	visitedKey string
	logger    *zap.Logger
}

// Config configures a Store.
type Config struct {
	Addr          string
	QueueKey      string
	VisitedSetKey string
}

// New constructs a Store and verifies connectivity with a PING.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("frontier: redis address must not be empty")
	}
	if cfg.QueueKey == "" || cfg.VisitedSetKey == "" {
		return nil, errors.New("frontier: queue key and visited set key must not be empty")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("frontier: ping %s: %w", cfg.Addr, err)
	}

	return &Store{
		client:     client,
		queueKey:   cfg.QueueKey,
		visitedKey: cfg.VisitedSetKey,
		logger:     logger,
	}, nil
}

// NewFromClient wraps an existing redis.Client — used by tests against
// miniredis, and by callers that already manage a shared connection.
func NewFromClient(client *redis.Client, queueKey, visitedKey string, logger *zap.Logger) *Store {
	return &Store{client: client, queueKey: queueKey, visitedKey: visitedKey, logger: logger}
}

// Push admits url at depth 0 if, and only if, url is not already in Seen.
// Returns false without touching the backend for a null/empty url.
func (s *Store) Push(ctx context.Context, url string) (bool, error) {
	return s.PushAtDepth(ctx, url, 0)
}

// PushAtDepth is Push with an explicit discovery depth recorded alongside
// the URL in Pending. Depth never affects Seen membership: admission
// dedup is on the URL string alone.
func (s *Store) PushAtDepth(ctx context.Context, url string, depth int) (bool, error) {
	if url == "" {
		return false, nil
	}
	entry := encodeEntry(depth, url)
	res, err := admissionScript.Run(ctx, s.client, []string{s.queueKey, s.visitedKey}, url, entry).Int64()
	if err != nil {
		return false, fmt.Errorf("frontier: push %s: %w", url, err)
	}
	return res > 0, nil
}

// Pop removes and returns one item from Pending, or (Item{}, false) if
// Pending is empty. Non-blocking.
func (s *Store) Pop(ctx context.Context) (Item, bool, error) {
	raw, err := s.client.RPop(ctx, s.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("frontier: pop: %w", err)
	}
	depth, url := decodeEntry(raw)
	return Item{URL: url, Depth: depth}, true, nil
}

// PopBlocking blocks for up to timeout waiting for an item to become
// available, returning (Item{}, false) on timeout. Used by the supervisor
// for drain detection.
func (s *Store) PopBlocking(ctx context.Context, timeout time.Duration) (Item, bool, error) {
	res, err := s.client.BRPop(ctx, timeout, s.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("frontier: pop blocking: %w", err)
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return Item{}, false, fmt.Errorf("frontier: unexpected BRPOP reply shape: %v", res)
	}
	depth, url := decodeEntry(res[1])
	return Item{URL: url, Depth: depth}, true, nil
}

// Size returns the cardinality of Pending; may be approximate under
// contention.
func (s *Store) Size(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, s.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("frontier: size: %w", err)
	}
	return n, nil
}

// HasSeen reports whether url has ever been admitted.
func (s *Store) HasSeen(ctx context.Context, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	ok, err := s.client.SIsMember(ctx, s.visitedKey, url).Result()
	if err != nil {
		return false, fmt.Errorf("frontier: has seen %s: %w", url, err)
	}
	return ok, nil
}

// VisitedCount returns |Seen|.
func (s *Store) VisitedCount(ctx context.Context) (int64, error) {
	n, err := s.client.SCard(ctx, s.visitedKey).Result()
	if err != nil {
		return 0, fmt.Errorf("frontier: visited count: %w", err)
	}
	return n, nil
}

// Clear empties Pending, keeping Seen intact.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.queueKey).Err(); err != nil {
		return fmt.Errorf("frontier: clear: %w", err)
	}
	return nil
}

// ClearAll empties both Pending and Seen. Used by tests.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.client.Del(ctx, s.queueKey, s.visitedKey).Err(); err != nil {
		return fmt.Errorf("frontier: clear all: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("frontier: close: %w", err)
	}
	return nil
}

// encodeEntry prefixes url with its depth so Pop can recover both without
// a second round trip. A plain bare URL (no numeric prefix) decodes to
// depth 0, so a queue populated by code predating this encoding remains
// readable.
func encodeEntry(depth int, url string) string {
	return strconv.Itoa(depth) + ":" + url
}

func decodeEntry(raw string) (int, string) {
	idx := strings.IndexByte(raw, ':')
	if idx <= 0 {
		return 0, raw
	}
	depth, err := strconv.Atoi(raw[:idx])
	if err != nil {
		return 0, raw
	}
	return depth, raw[idx+1:]
}
