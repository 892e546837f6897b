package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whatasoda/twitch-clips-todo/internal/adapter/memory"
)

func newTestTiered(t *testing.T) (*Tiered[string], *Memory[string], *Persistent[string], *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	fast := NewMemory[string](clock)
	slow := NewPersistent[string](memory.NewKVStore(), "", clock)
	return NewTiered[string](fast, slow, DefaultHydrateTTL), fast, slow, clock
}

func TestTiered_SlowHitHydratesFast(t *testing.T) {
	ctx := context.Background()
	tiered, fast, slow, _ := newTestTiered(t)

	require.NoError(t, slow.Set(ctx, "streamer:foo", "123", time.Hour))

	_, ok, _ := fast.Get(ctx, "streamer:foo")
	require.False(t, ok, "precondition: fast tier empty")

	v, ok, err := tiered.Get(ctx, "streamer:foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "123", v)

	v, ok, err = fast.Get(ctx, "streamer:foo")
	require.NoError(t, err)
	assert.True(t, ok, "slow hit should populate the fast tier")
	assert.Equal(t, "123", v)
}

func TestTiered_HydratedEntryUsesFallbackTTL(t *testing.T) {
	ctx := context.Background()
	tiered, fast, slow, clock := newTestTiered(t)

	require.NoError(t, slow.Set(ctx, "k", "v", 24*time.Hour))
	_, _, err := tiered.Get(ctx, "k")
	require.NoError(t, err)

	clock.Advance(DefaultHydrateTTL)
	_, ok, _ := fast.Get(ctx, "k")
	assert.False(t, ok, "hydrated entry lives for the fallback TTL only")

	_, ok, _ = slow.Get(ctx, "k")
	assert.True(t, ok)
}

func TestTiered_SetWritesBothTiers(t *testing.T) {
	ctx := context.Background()
	tiered, fast, slow, _ := newTestTiered(t)

	require.NoError(t, tiered.Set(ctx, "k", "v", time.Minute))

	_, ok, _ := fast.Get(ctx, "k")
	assert.True(t, ok)
	_, ok, _ = slow.Get(ctx, "k")
	assert.True(t, ok)
}

func TestTiered_DeleteClearsBothTiers(t *testing.T) {
	ctx := context.Background()
	tiered, fast, slow, _ := newTestTiered(t)

	require.NoError(t, tiered.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, tiered.Set(ctx, "b", "2", time.Minute))

	require.NoError(t, tiered.Delete(ctx, "a"))

	_, ok, _ := fast.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = slow.Get(ctx, "a")
	assert.False(t, ok)

	_, ok, _ = tiered.Get(ctx, "b")
	assert.True(t, ok)
}

func TestTiered_MissEverywhere(t *testing.T) {
	tiered, _, _, _ := newTestTiered(t)

	_, ok, err := tiered.Get(context.Background(), "nothing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTiered_SlowErrorSurfacesAfterBothAttempts(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("storage unavailable")
	clock := clockwork.NewFakeClock()
	fast := NewMemory[string](clock)
	slow := NewPersistent[string](failingStore{err: boom}, "", clock)
	tiered := NewTiered[string](fast, slow, 0)

	_, _, err := tiered.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)

	err = tiered.Set(ctx, "k", "v", time.Minute)
	assert.ErrorIs(t, err, boom)
	_, ok, _ := fast.Get(ctx, "k")
	assert.True(t, ok, "fast tier write completes even when the slow tier fails")
}
