package flagstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNilClient is returned by NewRedis without a client.
var ErrNilClient = errors.New("flagstore: nil redis client")

// Lua keeps release and stale-clear atomic: read + compare + delete in one step.
var (
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0`)

	clearStaleScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	return 0
end
local ts = tonumber(string.match(v, '^(%d+):'))
if ts and ts < tonumber(ARGV[1]) then
	return redis.call('DEL', KEYS[1])
end
return 0`)
)

// RedisConfig configures a Redis-backed flag store.
type RedisConfig struct {
	Client    redis.UniversalClient
	Namespace string // logical namespace; flag keys are "flag:<ns>:<key>"
	// SafetyTTL is applied to every flag so a crashed writer cannot hold a key
	// past it even when no waiter clears it. Values <= 0 disable expiry.
	SafetyTTL   time.Duration
	CloseClient bool // set true only if this store exclusively owns the client
}

// Redis shares flags across processes.
// A flag is a string key created with SET NX whose value is "<created unix micros>:<owner>".
type Redis struct {
	rdb         redis.UniversalClient
	ns          string
	ttl         time.Duration
	closeClient bool
	now         func() time.Time
}

var _ FlagStore = (*Redis)(nil)

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.SafetyTTL < 0 {
		cfg.SafetyTTL = 0
	}
	return &Redis{
		rdb:         cfg.Client,
		ns:          cfg.Namespace,
		ttl:         cfg.SafetyTTL,
		closeClient: cfg.CloseClient,
		now:         time.Now,
	}, nil
}

func (s *Redis) key(k string) string { return "flag:" + s.ns + ":" + k }

func (s *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis flag exists: %w", err)
	}
	return n > 0, nil
}

func (s *Redis) Lookup(ctx context.Context, key string) (Flag, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return Flag{}, false, nil
	}
	if err != nil {
		return Flag{}, false, fmt.Errorf("redis flag lookup: %w", err)
	}
	f, err := parseRedisFlag(key, raw)
	if err != nil {
		return Flag{}, false, err
	}
	return f, true, nil
}

func (s *Redis) Create(ctx context.Context, key string) (Flag, error) {
	f := Flag{Key: key, Owner: newOwner(), CreatedAt: time.UnixMicro(s.now().UnixMicro())}
	ok, err := s.rdb.SetNX(ctx, s.key(key), encodeRedisFlag(f), s.ttl).Result()
	if err != nil {
		return Flag{}, fmt.Errorf("redis flag create: %w", err)
	}
	if !ok {
		return Flag{}, ErrLockConflict
	}
	return f, nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis flag delete: %w", err)
	}
	return nil
}

func (s *Redis) Release(ctx context.Context, f Flag) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{s.key(f.Key)}, encodeRedisFlag(f)).Err(); err != nil {
		return fmt.Errorf("redis flag release: %w", err)
	}
	return nil
}

func (s *Redis) ClearStale(ctx context.Context, key string, olderThan time.Duration) (bool, error) {
	cutoff := s.now().Add(-olderThan).UnixMicro()
	n, err := clearStaleScript.Run(ctx, s.rdb, []string{s.key(key)}, cutoff).Int()
	if err != nil {
		return false, fmt.Errorf("redis flag clear stale: %w", err)
	}
	return n > 0, nil
}

// Close releases the underlying client only when this store owns it.
func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
	}
	return nil
}

func encodeRedisFlag(f Flag) string {
	return strconv.FormatInt(f.CreatedAt.UnixMicro(), 10) + ":" + f.Owner
}

func parseRedisFlag(key, raw string) (Flag, error) {
	ts, owner, ok := strings.Cut(raw, ":")
	if !ok {
		return Flag{}, fmt.Errorf("redis flag parse at %s: missing separator", key)
	}
	us, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Flag{}, fmt.Errorf("redis flag parse at %s: %w", key, err)
	}
	return Flag{Key: key, Owner: owner, CreatedAt: time.UnixMicro(us)}, nil
}
