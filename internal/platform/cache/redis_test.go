package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Product string  `json:"product"`
	OnHand  float64 `json:"on_hand"`
}

func newTestCache(t *testing.T, ttl time.Duration) *JSONCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewJSONCache(client, ttl)
}

func TestJSONCacheRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "stock:summary", summary{Product: "SPR200", OnHand: 42}))

	var got summary
	hit, err := c.Get(ctx, "stock:summary", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, summary{Product: "SPR200", OnHand: 42}, got)
}

func TestJSONCacheMiss(t *testing.T) {
	c := newTestCache(t, time.Minute)

	var got summary
	hit, err := c.Get(context.Background(), "stock:absent", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestJSONCacheInvalidate(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "stock:summary", summary{Product: "SPR1L", OnHand: 7}))
	require.NoError(t, c.Invalidate(ctx, "stock:summary"))

	var got summary
	hit, err := c.Get(ctx, "stock:summary", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestJSONCacheDisabledClient(t *testing.T) {
	c := NewJSONCache(nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", summary{}))
	var got summary
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, hit)
}
