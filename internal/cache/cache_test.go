package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullCacheNeverHits(t *testing.T) {
	ctx := context.Background()
	var c Cache = NullCache{}
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
	_, hit, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	data, hit, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("v"), data)

	now = now.Add(2 * time.Minute)
	_, hit, _ = c.Get(ctx, "k")
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "forever", []byte("x"), 0))
	require.NoError(t, c.Delete(ctx, "forever"))
	_, hit, _ = c.Get(ctx, "forever")
	assert.False(t, hit)
}

func TestKeyIsStable(t *testing.T) {
	a := Key("timeline", "b1", 26, []string{"x"})
	assert.Equal(t, a, Key("timeline", "b1", 26, []string{"x"}))
	assert.NotEqual(t, a, Key("timeline", "b1", 27, []string{"x"}))
	assert.Len(t, a, len("timeline:")+64)
}

func TestOpenWithoutURLIsMemory(t *testing.T) {
	c, err := Open(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
}
