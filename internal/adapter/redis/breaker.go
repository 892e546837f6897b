package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// BreakerObserver is notified on every circuit breaker state transition.
type BreakerObserver interface {
	ObserveBreakerState(component, state string)
}

type BreakerSettings struct {
	// MinRequests is how many commands a window must see before the failure ratio counts.
	MinRequests  uint32
	FailureRatio float64
	// Interval is the closed-state window after which counts reset.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before letting a trial request through.
	OpenTimeout time.Duration
	// HalfOpenRequests successful trial requests close the breaker again.
	HalfOpenRequests uint32
	Observer         BreakerObserver
}

var DefaultBreakerSettings = BreakerSettings{
	MinRequests:      5,
	FailureRatio:     0.6,
	Interval:         10 * time.Second,
	OpenTimeout:      30 * time.Second,
	HalfOpenRequests: 1,
}

// BreakerHook fails commands fast while Redis is unavailable instead of letting every caller
// wait out its own timeout. redis.Nil and caller cancellation are not failures.
type BreakerHook struct {
	cb *gobreaker.CircuitBreaker
}

var _ goredis.Hook = (*BreakerHook)(nil)

func NewBreakerHook(s BreakerSettings) *BreakerHook {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: s.HalfOpenRequests,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= s.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			if s.Observer != nil {
				s.Observer.ObserveBreakerState(name, to.String())
			}
		},
		IsSuccessful: isSuccessful,
	})
	return &BreakerHook{cb: cb}
}

func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, goredis.Nil) ||
		errors.Is(err, context.Canceled)
}

func (h *BreakerHook) State() gobreaker.State {
	return h.cb.State()
}

func (h *BreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *BreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		_, err := h.cb.Execute(func() (any, error) {
			return nil, next(ctx, cmd)
		})
		if rejected(err) {
			err = fmt.Errorf("redis circuit breaker open: %w", err)
			cmd.SetErr(err)
		}
		return err
	}
}

func (h *BreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		_, err := h.cb.Execute(func() (any, error) {
			return nil, next(ctx, cmds)
		})
		if rejected(err) {
			err = fmt.Errorf("redis circuit breaker open: %w", err)
			for _, cmd := range cmds {
				cmd.SetErr(err)
			}
		}
		return err
	}
}

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
