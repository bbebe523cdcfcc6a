package storage

import (
	"context"
	"strconv"
	"testing"

	configs "go_mock_resolver/internal/infra/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisRuleCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	cache := NewRedisRuleCache(client)

	_, err := cache.GetRuleFromCache(ctx, "users")
	assert.ErrorIs(t, err, ErrCacheMiss)

	in := sampleRule("users", 7)
	require.NoError(t, cache.SetRuleToCache(ctx, in))
	got, err := cache.GetRuleFromCache(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, int64(7), got.Seq)
	assert.True(t, in.Response.Content.Equal(got.Response.Content))

	require.NoError(t, cache.DeleteRuleFromCache(ctx, "users"))
	_, err = cache.GetRuleFromCache(ctx, "users")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisRuleIndexOrderedBySeq(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	cache := NewRedisRuleCache(client)

	late := sampleRule("late", 20)
	late.Match.Path = "/api/users/{id}"
	early := sampleRule("early", 5)
	early.Match.Path = "/api/users/{uid}"
	early.Match.Methods = []string{"GET", "DELETE"}

	require.NoError(t, cache.UpdateIndexCache(ctx, late))
	require.NoError(t, cache.UpdateIndexCache(ctx, early))

	ids, err := cache.GetIndexCache(ctx, "http_get_/api/users/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, ids)

	ids, err = cache.GetIndexCache(ctx, "http_delete_/api/users/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"early"}, ids)
	assert.True(t, mr.Exists(indexKeyPrefix+"http_delete_/api/users/*"))

	require.NoError(t, cache.RemoveFromIndex(ctx, early))
	ids, err = cache.GetIndexCache(ctx, "http_get_/api/users/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, ids)
	ids, err = cache.GetIndexCache(ctx, "http_delete_/api/users/*")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient(configs.Default())
	require.NoError(t, err)
	assert.Nil(t, client, "disabled redis yields no client")

	mr := miniredis.RunT(t)
	cfg := configs.Default()
	cfg.RedisConfig.Enabled = true
	cfg.RedisConfig.Host = mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg.RedisConfig.Port = port
	client, err = NewRedisClient(cfg)
	require.NoError(t, err)
	require.NotNil(t, client)
	client.Close()

	mr.Close()
	_, err = NewRedisClient(cfg)
	assert.Error(t, err)
}
