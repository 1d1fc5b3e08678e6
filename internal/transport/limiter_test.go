package transport

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowLimiterAdmitsUpToMax(t *testing.T) {
	l := NewWindowLimiter(2, 60*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	assert.Less(t, time.Since(start), 30*time.Millisecond)

	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestWindowLimiterHonoursContext(t *testing.T) {
	l := NewWindowLimiter(1, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}

func TestWindowLimiterSlides(t *testing.T) {
	now := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewWindowLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.Zero(t, l.reserve())
	now = now.Add(30 * time.Second)
	assert.Zero(t, l.reserve())
	assert.Equal(t, 30*time.Second, l.reserve())

	now = now.Add(31 * time.Second)
	assert.Zero(t, l.reserve(), "first send left the window")
}

func TestWindowLimiterDisabled(t *testing.T) {
	l := NewWindowLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisWindowLimiter(t *testing.T) {
	mr, client := setupTestRedis(t)
	now := time.Date(2031, 1, 1, 10, 15, 0, 0, time.UTC)

	l := NewRedisWindowLimiter(client, "dispatch:ratelimit:smtp", 2, time.Hour)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)

	key := "dispatch:ratelimit:smtp:" + strconv.FormatInt(now.UnixNano()/int64(time.Hour), 10)
	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "2", val)
	assert.True(t, mr.TTL(key) > 0)
}

func TestRedisWindowLimiterSharedAcrossInstances(t *testing.T) {
	_, client := setupTestRedis(t)
	now := time.Date(2031, 1, 1, 10, 15, 0, 0, time.UTC)

	a := NewRedisWindowLimiter(client, "shared", 1, time.Hour)
	b := NewRedisWindowLimiter(client, "shared", 1, time.Hour)
	a.now = func() time.Time { return now }
	b.now = a.now

	allowed, _, err := a.take(context.Background())
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, retryIn, err := b.take(context.Background())
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 45*time.Minute, retryIn)
}

func TestRedisWindowLimiterUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	l := NewRedisWindowLimiter(client, "k", 1, time.Second)
	err := l.Wait(context.Background())
	assert.Error(t, err)
}

func TestNewRedisClientFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClientFromURL(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	client.Close()

	_, err = NewRedisClientFromURL(context.Background(), "::not a url")
	assert.Error(t, err)
}
