package flagstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis tests in short mode.")
	}
	addr := os.Getenv("GUARDCACHE_TEST_REDIS")
	if addr == "" {
		t.Skip("GUARDCACHE_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available, skipping test: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRequiresClient(t *testing.T) {
	_, err := NewRedis(RedisConfig{})
	require.ErrorIs(t, err, ErrNilClient)
}

func TestRedisNegativeSafetyTTLDisablesExpiry(t *testing.T) {
	// no connection is made until a command runs
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	s, err := NewRedis(RedisConfig{Client: client, SafetyTTL: -4 * time.Minute})
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), s.ttl)
}

func TestRedisNegativeSafetyTTLCreate(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	s, err := NewRedis(RedisConfig{Client: client, Namespace: "guardcache-test", SafetyTTL: -time.Second})
	require.NoError(t, err)

	k := t.Name()
	f, err := s.Create(ctx, k)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Release(ctx, f) })

	ttl, err := client.TTL(ctx, s.key(k)).Result()
	require.NoError(t, err)
	require.Equal(t, time.Duration(-1), ttl)
}

func TestRedisFlagEncoding(t *testing.T) {
	f := Flag{Key: "k", Owner: "abc-123", CreatedAt: time.UnixMicro(1700000000123456)}
	got, err := parseRedisFlag("k", encodeRedisFlag(f))
	require.NoError(t, err)
	require.Equal(t, f.Owner, got.Owner)
	require.True(t, f.CreatedAt.Equal(got.CreatedAt))

	_, err = parseRedisFlag("k", "garbage")
	require.Error(t, err)
}

func TestRedisContract(t *testing.T) {
	client := newTestRedis(t)
	s, err := NewRedis(RedisConfig{Client: client, Namespace: "guardcache-test"})
	require.NoError(t, err)
	runStoreSuite(t, s)
}

func TestRedisSafetyTTL(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	s, err := NewRedis(RedisConfig{Client: client, Namespace: "guardcache-test", SafetyTTL: 50 * time.Millisecond})
	require.NoError(t, err)

	k := t.Name()
	_, err = s.Create(ctx, k)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		held, err := s.Exists(ctx, k)
		return err == nil && !held
	}, 2*time.Second, 10*time.Millisecond)
}
