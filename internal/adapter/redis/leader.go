package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultLeaderKey is the lease key shared by every instance using the same store.
const DefaultLeaderKey = DefaultKeyPrefix + "leader"

var errNotLeader = errors.New("not leader")

var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Leader is a single-holder lease on a Redis key. Instances that share a store use it so only
// one of them runs scheduled work; the holder keeps the lease by renewing it before ttl runs out.
type Leader struct {
	rdb        *goredis.Client
	key        string
	instanceID string
	ttl        time.Duration

	mu   sync.Mutex
	held bool
}

func NewLeader(rdb *goredis.Client, key string, ttl time.Duration) *Leader {
	if key == "" {
		key = DefaultLeaderKey
	}
	return &Leader{
		rdb:        rdb,
		key:        key,
		instanceID: uuid.NewString(),
		ttl:        ttl,
	}
}

func (l *Leader) InstanceID() string {
	return l.instanceID
}

// Acquire renews the lease when this instance holds it and otherwise tries to take it.
func (l *Leader) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		err := l.renew(ctx)
		if err == nil {
			return true, nil
		}
		l.held = false
		if !errors.Is(err, errNotLeader) {
			return false, err
		}
		slog.WarnContext(ctx, "Leader lease lost", "key", l.key, "instance_id", l.instanceID)
	}

	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if ok {
		slog.InfoContext(ctx, "Leader lease acquired", "key", l.key, "instance_id", l.instanceID)
	}
	l.held = ok
	return ok, nil
}

func (l *Leader) renew(ctx context.Context) error {
	result, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to renew lease: %w", err)
	}
	if result == 0 {
		return errNotLeader
	}
	return nil
}

// Release gives the lease up if this instance still holds it.
func (l *Leader) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = false
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Guard runs a job only while this instance holds the lease. Redis errors skip the firing.
func (l *Leader) Guard(ctx context.Context, job string) bool {
	ok, err := l.Acquire(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Leader check failed, skipping job", "job", job, "error", err)
		return false
	}
	if !ok {
		slog.DebugContext(ctx, "Not leader, skipping job", "job", job)
	}
	return ok
}
