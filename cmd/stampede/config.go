package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type config struct {
	flags    string // local | redis | postgres
	provider string // ristretto | bigcache | redis
	codec    string // json | msgpack | cbor

	redisAddr   string
	postgresDSN string
	metricsAddr string
	debug       bool

	instances    int
	workers      int
	keys         int
	produceDelay time.Duration

	pollInterval time.Duration
	maxWait      time.Duration
	staleAfter   time.Duration
}

// NonSensitiveString omits connection strings.
func (c *config) NonSensitiveString() string {
	return fmt.Sprintf("config{flags: %s, provider: %s, codec: %s, instances: %d, workers: %d, keys: %d}",
		c.flags, c.provider, c.codec, c.instances, c.workers, c.keys)
}

// parseConfig reads GUARDCACHE_* environment variables; command-line flags
// override them.
func parseConfig(args []string, getenv func(string) string) (config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	envInt := func(key string, def int) (int, error) {
		raw := getenv(key)
		if raw == "" {
			return def, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, raw)
		}
		return n, nil
	}
	envDur := func(key string, def time.Duration) (time.Duration, error) {
		raw := getenv(key)
		if raw == "" {
			return def, nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, raw)
		}
		return d, nil
	}

	var (
		cfg config
		err error
	)
	cfg.instances, err = envInt("GUARDCACHE_INSTANCES", 4)
	if err != nil {
		return config{}, err
	}
	cfg.workers, err = envInt("GUARDCACHE_WORKERS", 64)
	if err != nil {
		return config{}, err
	}
	cfg.keys, err = envInt("GUARDCACHE_KEYS", 4)
	if err != nil {
		return config{}, err
	}
	cfg.produceDelay, err = envDur("GUARDCACHE_PRODUCE_DELAY", 500*time.Millisecond)
	if err != nil {
		return config{}, err
	}
	cfg.pollInterval, err = envDur("GUARDCACHE_POLL_INTERVAL", 50*time.Millisecond)
	if err != nil {
		return config{}, err
	}
	cfg.maxWait, err = envDur("GUARDCACHE_MAX_WAIT", 30*time.Second)
	if err != nil {
		return config{}, err
	}
	cfg.staleAfter, err = envDur("GUARDCACHE_STALE_AFTER", 2*time.Minute)
	if err != nil {
		return config{}, err
	}

	fset := flag.NewFlagSet("stampede", flag.ContinueOnError)
	fset.StringVar(&cfg.flags, "flags", env("GUARDCACHE_FLAGS", "local"), "flag store: local, redis or postgres")
	fset.StringVar(&cfg.provider, "provider", env("GUARDCACHE_PROVIDER", "ristretto"), "value provider: ristretto, bigcache or redis")
	fset.StringVar(&cfg.codec, "codec", env("GUARDCACHE_CODEC", "json"), "value codec: json, msgpack or cbor")
	fset.StringVar(&cfg.redisAddr, "redis-addr", env("GUARDCACHE_REDIS_ADDR", "localhost:6379"), "redis address")
	fset.StringVar(&cfg.postgresDSN, "postgres-dsn", getenv("GUARDCACHE_POSTGRES_DSN"), "postgres connection string")
	fset.StringVar(&cfg.metricsAddr, "metrics-addr", getenv("GUARDCACHE_METRICS_ADDR"), "serve /metrics on this address")
	fset.BoolVar(&cfg.debug, "debug", getenv("GUARDCACHE_DEBUG") != "", "debug logging")
	fset.IntVar(&cfg.instances, "instances", cfg.instances, "cache instances sharing the stores")
	fset.IntVar(&cfg.workers, "workers", cfg.workers, "concurrent callers")
	fset.IntVar(&cfg.keys, "keys", cfg.keys, "distinct keys")
	fset.DurationVar(&cfg.produceDelay, "produce-delay", cfg.produceDelay, "simulated producer latency")
	fset.DurationVar(&cfg.pollInterval, "poll", cfg.pollInterval, "flag poll interval")
	fset.DurationVar(&cfg.maxWait, "max-wait", cfg.maxWait, "bound on waiting for a flag; negative waits forever")
	fset.DurationVar(&cfg.staleAfter, "stale-after", cfg.staleAfter, "force-clear flags older than this; negative disables")
	if err := fset.Parse(args); err != nil {
		return config{}, err
	}

	switch cfg.flags {
	case "local", "redis":
	case "postgres":
		if cfg.postgresDSN == "" {
			return config{}, fmt.Errorf("%w: GUARDCACHE_POSTGRES_DSN", ErrMissingRequiredValue)
		}
	default:
		return config{}, fmt.Errorf("%w: flags (%s)", ErrInvalidValue, cfg.flags)
	}
	switch cfg.provider {
	case "ristretto", "bigcache", "redis":
	default:
		return config{}, fmt.Errorf("%w: provider (%s)", ErrInvalidValue, cfg.provider)
	}
	switch cfg.codec {
	case "json", "msgpack", "cbor":
	default:
		return config{}, fmt.Errorf("%w: codec (%s)", ErrInvalidValue, cfg.codec)
	}
	if cfg.instances <= 0 || cfg.workers <= 0 || cfg.keys <= 0 {
		return config{}, fmt.Errorf("%w: instances, workers and keys must be > 0", ErrInvalidValue)
	}
	return cfg, nil
}

func lookupEnv(key string) string { return os.Getenv(key) }
