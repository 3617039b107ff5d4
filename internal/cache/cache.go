// Package cache provides Redis-backed memoization of completed run
// results, keyed by a Play's content hash, so the batch CLI can skip
// replaying a Play it has already run byte-for-byte.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNoData = errors.New("cache: no cached entry")

// RunSummary is the minimal record memoized per run hash: enough to
// short-circuit a batch re-run without re-executing the bar loop.
type RunSummary struct {
	RunHash      string    `json:"run_hash"`
	PlayHash     string    `json:"play_hash"`
	ManifestPath string    `json:"manifest_path"`
	ComputedAt   time.Time `json:"computed_at"`
}

// Cache wraps a Redis client scoped to run-hash memoization.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Config configures a Cache connection.
type Config struct {
	Addr string
	DB   int
	TTL  time.Duration
}

// New connects to Redis and verifies reachability before returning.
func New(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func runKey(runHash string) string { return "btcore:run:" + runHash }

// Get returns the memoized summary for runHash, or ErrNoData if absent.
func (c *Cache) Get(ctx context.Context, runHash string) (*RunSummary, error) {
	data, err := c.client.Get(ctx, runKey(runHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("cache: get %s: %w", runHash, err)
	}
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", runHash, err)
	}
	return &summary, nil
}

// Set memoizes summary under its RunHash.
func (c *Cache) Set(ctx context.Context, summary RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", summary.RunHash, err)
	}
	if err := c.client.Set(ctx, runKey(summary.RunHash), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", summary.RunHash, err)
	}
	return nil
}

func (c *Cache) Close() error { return c.client.Close() }
