package redis

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("want ErrNilClient, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis tests in short mode.")
	}
	addr := os.Getenv("GUARDCACHE_TEST_REDIS")
	if addr == "" {
		t.Skip("GUARDCACHE_TEST_REDIS not set")
	}
	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available, skipping test: %v", err)
	}

	p, err := New(Config{Client: client, Prefix: "guardcache-test:", CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	k := t.Name()
	_ = p.Del(ctx, k)
	if ok, err := p.Set(ctx, k, []byte("v"), time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	got, hit, err := p.Get(ctx, k)
	if err != nil || !hit || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get: hit=%v err=%v got=%q", hit, err, got)
	}
	if err := p.Del(ctx, k); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, hit, _ := p.Get(ctx, k); hit {
		t.Fatalf("expected miss after Del")
	}
}
