package opportunity

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() IdentifyResult {
	opp := storedOpp("p-1", "r-1")
	opp.ID = "o-1"
	return IdentifyResult{
		Success:       true,
		SubjectID:     "p-1",
		Opportunities: []Opportunity{opp},
		ContextDigest: "abc",
		GeneratedAt:   testNow,
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "p-1", sampleResult(), time.Minute))
	assert.True(t, mr.Exists("opportunities:subject:p-1"))

	got, ok, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", got.ContextDigest)
	require.Len(t, got.Opportunities, 1)
	assert.Equal(t, "o-1", got.Opportunities[0].ID)

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire after the TTL")
}

func TestRedisCacheInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "p-1", sampleResult(), time.Minute))
	require.NoError(t, cache.Invalidate(ctx, "p-1"))
	_, ok, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, mr.Set("opportunities:subject:p-1", "not json"))
	_, ok, err := cache.Get(ctx, "p-1")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := testNow
	cache := NewMemoryCache().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "p-1", sampleResult(), 10*time.Minute))

	now = now.Add(9 * time.Minute)
	got, ok, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p-1", got.SubjectID)

	now = now.Add(time.Minute)
	_, ok, err = cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "p-1", sampleResult(), 0))

	got, _, _ := cache.Get(ctx, "p-1")
	got.Opportunities[0].Title = "mutated"

	again, ok, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Infection", again.Opportunities[0].Title)

	require.NoError(t, cache.Invalidate(ctx, "p-1"))
	_, ok, _ = cache.Get(ctx, "p-1")
	assert.False(t, ok)
}
