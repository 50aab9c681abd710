package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
)

func sample() domain.RetrievalResult {
	return domain.RetrievalResult{
		Passages: []domain.Passage{{ID: 3, Text: "काठमाडौं"}, {ID: 1, Text: "पोखरा"}},
		Scores:   []float64{0.9, 0.4, 0.1},
		IDs:      []int{3, 1, 99},
		Context:  "काठमाडौं\n\nपोखरा",
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("q", 5), Key("  q \n", 5))
	assert.NotEqual(t, Key("q", 5), Key("q", 6))
	assert.NotEqual(t, Key("q", 5), Key("r", 5))
	assert.Contains(t, Key("q", 5), keyPrefix)
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	c.Set(context.Background(), "k", sample())
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestLRU(t *testing.T) {
	c, err := NewLRU(1, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "a", sample())
	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, sample(), got)

	c.Set(ctx, "b", sample())
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok, "evicted by size")
	assert.Equal(t, 1, c.Len())
}

func TestLRUExpiry(t *testing.T) {
	c, err := NewLRU(4, time.Second)
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Set(context.Background(), "a", sample())
	now = now.Add(2 * time.Second)
	_, ok := c.Get(context.Background(), "a")
	assert.False(t, ok)
}

func TestLRUInvalidSize(t *testing.T) {
	_, err := NewLRU(0, 0)
	assert.Error(t, err)
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())
	return client, mr
}

func TestRedis(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	c := NewRedisWithClient(client, time.Minute, nil)
	ctx := context.Background()
	key := Key("नेपालको राजधानी", 5)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, sample())
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, sample(), got)

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok, "expired")
}

func TestRedisCorruptEntryIsMiss(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	require.NoError(t, mr.Set("k", "{not json"))
	_, ok := NewRedisWithClient(client, 0, nil).Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestRedisMismatchedEntryIsMiss(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	c := NewRedisWithClient(client, 0, nil)
	ctx := context.Background()
	for key, raw := range map[string]string{
		"texts":  `{"ids":[1],"scores":[0.5],"passages":[1],"texts":[],"context":"x"}`,
		"scores": `{"ids":[1,2],"scores":[0.5],"passages":[],"texts":[],"context":"x"}`,
	} {
		require.NoError(t, mr.Set(key, raw))
		var ok bool
		assert.NotPanics(t, func() { _, ok = c.Get(ctx, key) }, key)
		assert.False(t, ok, key)
	}
}

func TestNewRedisFromURL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c, err := NewRedis(context.Background(), "redis://"+mr.Addr(), time.Minute, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = NewRedis(context.Background(), "::bad", time.Minute, nil)
	assert.Error(t, err)
}
