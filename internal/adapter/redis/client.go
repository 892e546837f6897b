// Package redis stores the engine's key/value documents in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CommandObserver receives the outcome of every Redis command.
type CommandObserver interface {
	ObserveCommand(name string, failed bool, duration time.Duration)
}

// NewClient parses redisURL, installs a metrics hook when observer is non-nil followed by any
// extra hooks, and verifies the connection.
func NewClient(ctx context.Context, redisURL string, observer CommandObserver, hooks ...goredis.Hook) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if observer != nil {
		rdb.AddHook(&metricsHook{observer: observer})
	}
	for _, hook := range hooks {
		rdb.AddHook(hook)
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

type metricsHook struct {
	observer CommandObserver
}

var _ goredis.Hook = (*metricsHook)(nil)

func (h *metricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		h.observer.ObserveCommand("dial", err != nil, time.Since(start))
		return conn, err
	}
}

func (h *metricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observer.ObserveCommand(cmd.Name(), err != nil && !errors.Is(err, goredis.Nil), time.Since(start))
		return err
	}
}

func (h *metricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.observer.ObserveCommand("pipeline", err != nil, time.Since(start))
		return err
	}
}
