package cache

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

func TestProductCache_RoundTripAndInvalidate(t *testing.T) {
	mr := newTestClient(t)
	client := NewRedisClient(mr.Addr(), "")
	defer client.Close()
	c := NewProductCache(client)
	ctx := context.Background()

	_, err := c.GetList(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	in := []model.Product{{ID: "p1", Name: "Hat", Price: 25, IsActive: true}}
	require.NoError(t, c.SetList(ctx, in))

	got, err := c.GetList(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Hat", got[0].Name)

	ttl := mr.TTL(productListKey)
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 11*time.Minute)

	require.NoError(t, c.Invalidate(ctx))
	_, err = c.GetList(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestProductCache_ExpiresAfterTTL(t *testing.T) {
	mr := newTestClient(t)
	client := NewRedisClient(mr.Addr(), "")
	defer client.Close()
	c := NewProductCache(client)
	ctx := context.Background()

	require.NoError(t, c.SetList(ctx, []model.Product{{ID: "p1"}}))
	mr.FastForward(12 * time.Minute)

	_, err := c.GetList(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestResendLimiter_Cooldown(t *testing.T) {
	mr := newTestClient(t)
	client := NewRedisClient(mr.Addr(), "")
	defer client.Close()
	l := NewResendLimiter(client, time.Minute)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, ok)

	// 別注文は独立
	ok, err = l.Allow(ctx, "o2")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(61 * time.Second)
	ok, err = l.Allow(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResendLimiter_RedisDown(t *testing.T) {
	mr := newTestClient(t)
	client := NewRedisClient(mr.Addr(), "")
	defer client.Close()
	l := NewResendLimiter(client, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "o1")
	assert.Error(t, err)
}
