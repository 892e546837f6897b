// Package storage opens the configured domain.KVStore backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/whatasoda/twitch-clips-todo/internal/adapter/memory"
	"github.com/whatasoda/twitch-clips-todo/internal/adapter/postgres"
	"github.com/whatasoda/twitch-clips-todo/internal/adapter/redis"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/config"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/retry"
)

// Store is a KVStore that can also be pinged for readiness.
type Store interface {
	domain.KVStore
	Ping(ctx context.Context) error
}

// Observer receives backend operation outcomes; metrics.StorageMetrics implements it.
type Observer interface {
	ObserveCommand(name string, failed bool, duration time.Duration)
	ObserveQuery(name string, failed bool, duration time.Duration)
}

type Options struct {
	// Observer enables storage metrics when non-nil.
	Observer Observer
	// LeaseTTL enables leader election on backends that support it when positive.
	LeaseTTL time.Duration
}

// Backend is an opened store plus the function releasing its connections.
type Backend struct {
	Name  string
	Store Store
	// Guard is non-nil when the backend elects a leader for scheduled work.
	Guard func(ctx context.Context, job string) bool
	Close func()
}

// ConnectPolicy retries the initial connection while the backend is still starting up.
var ConnectPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: time.Second,
	MaxBackoff:     10 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Storage connection failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

// URL picks the connection URL cfg provides for its storage backend.
func URL(cfg *config.Config) string {
	switch cfg.StorageBackend {
	case config.StorageRedis:
		return cfg.RedisURL
	case config.StoragePostgres:
		return cfg.DatabaseURL
	default:
		return ""
	}
}

// Open connects to backend using url.
func Open(ctx context.Context, backend, url string, opts Options) (*Backend, error) {
	observer := opts.Observer
	switch backend {
	case config.StorageMemory:
		return &Backend{Name: backend, Store: memory.NewKVStore(), Close: func() {}}, nil

	case config.StorageRedis:
		var cmdObserver redis.CommandObserver
		breakerSettings := redis.DefaultBreakerSettings
		if observer != nil {
			cmdObserver = observer
			if bo, ok := observer.(redis.BreakerObserver); ok {
				breakerSettings.Observer = bo
			}
		}
		client, err := retry.Do(ctx, ConnectPolicy, retry.AlwaysRetry, func(ctx context.Context) (*goredis.Client, error) {
			return redis.NewClient(ctx, url, cmdObserver, redis.NewBreakerHook(breakerSettings))
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b := &Backend{
			Name:  backend,
			Store: redis.NewKVStore(client, redis.DefaultKeyPrefix),
			Close: func() { _ = client.Close() },
		}
		if opts.LeaseTTL > 0 {
			leader := redis.NewLeader(client, redis.DefaultLeaderKey, opts.LeaseTTL)
			b.Guard = leader.Guard
			b.Close = func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := leader.Release(releaseCtx); err != nil {
					slog.Warn("Failed to release leader lease", "error", err)
				}
				_ = client.Close()
			}
		}
		return b, nil

	case config.StoragePostgres:
		var tracer pgx.QueryTracer
		if observer != nil {
			tracer = postgres.NewTracer(observer)
		}
		pool, err := retry.Do(ctx, ConnectPolicy, retry.AlwaysRetry, func(ctx context.Context) (*pgxpool.Pool, error) {
			return postgres.Connect(ctx, url, tracer)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		err = retry.DoVoid(ctx, ConnectPolicy, retryableMigration, func(ctx context.Context) error {
			return postgres.RunMigrationsWithLock(ctx, pool)
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{Name: backend, Store: postgres.NewKVStore(pool), Close: pool.Close}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// retryableMigration retries a migration run only when it failed before reaching the server
// or timed out; schema errors stop at once.
func retryableMigration(err error) retry.Action {
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return retry.Retry
	}
	return retry.Stop
}
