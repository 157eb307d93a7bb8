// Package redis caches the latest account snapshot and a rolling window of
// hashrate samples for the ducomon dashboard.
package redis

import (
	"cmp"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bardlex/ducomon/internal/snapshot"
)

// ErrNotFound is returned when no snapshot is cached for a user.
var ErrNotFound = stderrors.New("snapshot not found")

// connectTimeout bounds the ping made by NewClient
const connectTimeout = 5 * time.Second

// Client stores snapshots, hashrate samples and cycle counters per account
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration. Zero durations and sizes keep
// the values from the URL or the go-redis defaults.
type Config struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (cfg *Config) options() (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	opts.PoolSize = cmp.Or(cfg.PoolSize, opts.PoolSize)
	opts.DialTimeout = cmp.Or(cfg.DialTimeout, opts.DialTimeout)
	opts.ReadTimeout = cmp.Or(cfg.ReadTimeout, opts.ReadTimeout)
	opts.WriteTimeout = cmp.Or(cfg.WriteTimeout, opts.WriteTimeout)
	return opts, nil
}

// NewClient connects to cfg.URL and pings the server once
func NewClient(cfg *Config) (*Client, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", opts.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

func snapshotKey(username string) string { return "snapshot:" + username }
func hashrateKey(username string) string { return "hashrate:" + username }
func cyclesKey(username string) string   { return "cycles:" + username }

// SetSnapshot stores the latest snapshot of an account with expiration
func (c *Client) SetSnapshot(ctx context.Context, snap *snapshot.AccountSnapshot, expiration time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, snapshotKey(snap.Username), data, expiration).Err(); err != nil {
		return fmt.Errorf("set %s: %w", snapshotKey(snap.Username), err)
	}
	return nil
}

// GetSnapshot retrieves the latest cached snapshot of an account
func (c *Client) GetSnapshot(ctx context.Context, username string) (*snapshot.AccountSnapshot, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(username)).Bytes()
	switch {
	case stderrors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("get %s: %w", snapshotKey(username), err)
	}

	var snap snapshot.AccountSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return &snap, nil
}

// IncrementCycles counts exported cycles for an account
func (c *Client) IncrementCycles(ctx context.Context, username string, expiration time.Duration) (int64, error) {
	key := cyclesKey(username)

	var incr *redis.IntCmd
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, expiration)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

// GetCycles retrieves the exported cycle count of an account
func (c *Client) GetCycles(ctx context.Context, username string) (int64, error) {
	n, err := c.rdb.Get(ctx, cyclesKey(username)).Int64()
	switch {
	case stderrors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("get %s: %w", cyclesKey(username), err)
	}
	return n, nil
}

// RecordHashrate adds a total hashrate sample for an account and drops
// samples older than window
func (c *Client) RecordHashrate(ctx context.Context, username string, hashrate int64, at time.Time, window time.Duration) error {
	key := hashrateKey(username)
	timestamp := at.Unix()

	// Members are "<unix>:<hashrate>" so equal rates at different times
	// are kept as separate samples
	member := redis.Z{
		Score:  float64(timestamp),
		Member: fmt.Sprintf("%d:%d", timestamp, hashrate),
	}

	pipe := c.rdb.Pipeline()
	pipe.ZAdd(ctx, key, member)
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(timestamp-int64(window.Seconds()), 10))
	pipe.Expire(ctx, key, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record sample in %s: %w", key, err)
	}

	return nil
}

// GetAverageHashrate averages the samples recorded since now-window
func (c *Client) GetAverageHashrate(ctx context.Context, username string, now time.Time, window time.Duration) (float64, error) {
	minScore := now.Add(-window).Unix()

	values, err := c.rdb.ZRangeByScore(ctx, hashrateKey(username), &redis.ZRangeBy{
		Min: strconv.FormatInt(minScore, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read samples of %s: %w", username, err)
	}

	return averageSamples(values), nil
}

func averageSamples(members []string) float64 {
	var total float64
	var n int
	for _, m := range members {
		_, rate, ok := strings.Cut(m, ":")
		if !ok {
			continue
		}
		if hashrate, err := strconv.ParseFloat(rate, 64); err == nil {
			total += hashrate
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
