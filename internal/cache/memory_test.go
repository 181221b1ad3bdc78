package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.Now)

	require.NoError(t, store.Set(ctx, "p1:d1", []byte("u1"), 5*time.Minute))

	value, ok, err := store.Get(ctx, "p1:d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("u1"), value)

	clock.now = clock.now.Add(5 * time.Minute)
	_, ok, err = store.Get(ctx, "p1:d1")
	require.NoError(t, err)
	assert.False(t, ok, "entry at its TTL must be stale")
	assert.Zero(t, store.Len())
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, store.Delete(ctx, "a", "missing"))

	_, ok, _ := store.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "b")
	assert.True(t, ok)
}

func TestMemoryStorePurge(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.Now)

	require.NoError(t, store.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, store.Set(ctx, "ignored", []byte("3"), 0))

	clock.now = clock.now.Add(time.Minute)
	assert.Equal(t, 1, store.Purge())
	assert.Equal(t, 1, store.Len())
}
