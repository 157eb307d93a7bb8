// Package database coordinates the optional Redis and InfluxDB snapshot sinks
// behind a single exporter.
package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/bardlex/ducomon/internal/database/influx"
	"github.com/bardlex/ducomon/internal/database/redis"
	"github.com/bardlex/ducomon/internal/snapshot"
	"github.com/bardlex/ducomon/internal/trend"
	"github.com/bardlex/ducomon/pkg/circuit"
	"github.com/bardlex/ducomon/pkg/errors"
	"github.com/bardlex/ducomon/pkg/log"
	"github.com/bardlex/ducomon/pkg/retry"
)

// DefaultHashrateWindow is how long hashrate samples are kept in Redis.
const DefaultHashrateWindow = time.Hour

// RecallWindow is how far back Recall looks for balance history.
const RecallWindow = 24 * time.Hour

// SnapshotCache is the Redis side of the manager
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snap *snapshot.AccountSnapshot, expiration time.Duration) error
	RecordHashrate(ctx context.Context, username string, hashrate int64, at time.Time, window time.Duration) error
	IncrementCycles(ctx context.Context, username string, expiration time.Duration) (int64, error)
	GetSnapshot(ctx context.Context, username string) (*snapshot.AccountSnapshot, error)
	GetCycles(ctx context.Context, username string) (int64, error)
	GetAverageHashrate(ctx context.Context, username string, now time.Time, window time.Duration) (float64, error)
	Close() error
}

// MetricsWriter is the InfluxDB side of the manager
type MetricsWriter interface {
	WriteCycle(ctx context.Context, snap *snapshot.AccountSnapshot, tr trend.Trend, cycleID string) error
	GetBalanceHistory(ctx context.Context, username string, duration time.Duration) ([]influx.BalancePoint, error)
	Close()
}

// Manager fans one cycle out to every configured sink. A nil sink is skipped.
type Manager struct {
	Redis  SnapshotCache
	Influx MetricsWriter

	snapshotTTL    time.Duration
	hashrateWindow time.Duration

	redisBreaker  *circuit.Breaker
	influxBreaker *circuit.Breaker
	retryConfig   *retry.Config
	logger        *log.Logger
}

// Config holds configuration for the sinks; a nil section disables that sink
type Config struct {
	Redis          *redis.Config
	Influx         *influx.Config
	SnapshotTTL    time.Duration
	HashrateWindow time.Duration
}

// NewManager connects every configured sink
func NewManager(cfg *Config, logger *log.Logger) (*Manager, error) {
	var (
		cache   SnapshotCache
		metrics MetricsWriter
	)

	if cfg.Redis != nil {
		redisClient, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCache, "redis_connection",
				"failed to connect to Redis")
		}
		cache = redisClient
	}

	if cfg.Influx != nil {
		influxClient, err := influx.NewClient(cfg.Influx)
		if err != nil {
			origErr := errors.Wrap(err, errors.ErrorTypeMetrics, "influx_connection",
				"failed to connect to InfluxDB")
			if cache != nil {
				if closeErr := cache.Close(); closeErr != nil {
					return nil, origErr.WithContext("cleanup_error", closeErr.Error())
				}
			}
			return nil, origErr
		}
		metrics = influxClient
	}

	return New(cache, metrics, cfg.SnapshotTTL, cfg.HashrateWindow, logger), nil
}

// New builds a manager over already connected sinks
func New(cache SnapshotCache, metrics MetricsWriter, snapshotTTL, hashrateWindow time.Duration, logger *log.Logger) *Manager {
	if hashrateWindow <= 0 {
		hashrateWindow = DefaultHashrateWindow
	}

	logger = logger.WithComponent("database")
	cbConfig := circuit.ExportConfig()
	cbConfig.OnStateChange = func(name string, from, to circuit.State) {
		logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}

	return &Manager{
		Redis:          cache,
		Influx:         metrics,
		snapshotTTL:    snapshotTTL,
		hashrateWindow: hashrateWindow,
		redisBreaker:   circuit.New("redis", cbConfig),
		influxBreaker:  circuit.New("influx", cbConfig),
		retryConfig:    retry.ExportConfig(),
		logger:         logger,
	}
}

// Enabled reports whether any sink is configured
func (m *Manager) Enabled() bool {
	return m.Redis != nil || m.Influx != nil
}

// Name identifies the exporter in logs
func (m *Manager) Name() string {
	return "database"
}

// Export writes one cycle to every sink. Sinks are independent: a failing
// Redis does not stop the InfluxDB write.
func (m *Manager) Export(ctx context.Context, snap *snapshot.AccountSnapshot, tr trend.Trend, cycleID string) error {
	var errs []error

	if m.Redis != nil {
		if err := m.redisBreaker.Execute(ctx, func() error {
			return retry.Do(ctx, m.retryConfig, func() error {
				return m.cacheSnapshot(ctx, snap)
			})
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if m.Influx != nil {
		if err := m.influxBreaker.Execute(ctx, func() error {
			return retry.Do(ctx, m.retryConfig, func() error {
				if err := m.Influx.WriteCycle(ctx, snap, tr, cycleID); err != nil {
					return errors.Wrap(err, errors.ErrorTypeMetrics, "write_cycle",
						"failed to write cycle metrics").
						WithContext("cycle_id", cycleID)
				}
				return nil
			})
		}); err != nil {
			errs = append(errs, err)
		}
	}

	return stderrors.Join(errs...)
}

func (m *Manager) cacheSnapshot(ctx context.Context, snap *snapshot.AccountSnapshot) error {
	if err := m.Redis.SetSnapshot(ctx, snap, m.snapshotTTL); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCache, "cache_snapshot",
			"failed to cache snapshot").
			WithContext("username", snap.Username)
	}

	if err := m.Redis.RecordHashrate(ctx, snap.Username, snap.TotalHashrate, snap.CapturedAt, m.hashrateWindow); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCache, "record_hashrate",
			"failed to record hashrate sample").
			WithContext("username", snap.Username)
	}

	if _, err := m.Redis.IncrementCycles(ctx, snap.Username, m.hashrateWindow); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCache, "count_cycle",
			"failed to count cycle").
			WithContext("username", snap.Username)
	}

	return nil
}

// Recall is what the sinks remember of an account from earlier runs
type Recall struct {
	LastSnapshot    *snapshot.AccountSnapshot // nil when nothing is cached
	Cycles          int64
	AverageHashrate float64
	BalancePoints   int
	BalanceChange   float64 // last minus first balance within RecallWindow
}

// Recall reads back what earlier runs exported for username. Every sink is
// read even when another fails; the errors are joined.
func (m *Manager) Recall(ctx context.Context, username string, now time.Time) (Recall, error) {
	var (
		r    Recall
		errs []error
	)

	if m.Redis != nil {
		snap, err := m.Redis.GetSnapshot(ctx, username)
		switch {
		case err == nil:
			r.LastSnapshot = snap
		case !stderrors.Is(err, redis.ErrNotFound):
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeCache, "recall_snapshot", "failed to read cached snapshot"))
		}

		if r.Cycles, err = m.Redis.GetCycles(ctx, username); err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeCache, "recall_cycles", "failed to read cycle count"))
		}
		if r.AverageHashrate, err = m.Redis.GetAverageHashrate(ctx, username, now, m.hashrateWindow); err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeCache, "recall_hashrate", "failed to read hashrate samples"))
		}
	}

	if m.Influx != nil {
		points, err := m.Influx.GetBalanceHistory(ctx, username, RecallWindow)
		if err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeMetrics, "recall_balance", "failed to read balance history"))
		} else if len(points) > 0 {
			r.BalancePoints = len(points)
			r.BalanceChange = points[len(points)-1].Balance - points[0].Balance
		}
	}

	return r, stderrors.Join(errs...)
}

// Close closes every sink
func (m *Manager) Close() error {
	var errs []error

	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if m.Influx != nil {
		m.Influx.Close()
	}

	return stderrors.Join(errs...)
}
