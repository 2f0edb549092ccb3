// Command stampede hammers a guarded cache with concurrent callers and reports
// how many times each value was actually produced.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/guardcache"
	"github.com/unkn0wn-root/guardcache/codec"
	"github.com/unkn0wn-root/guardcache/flagstore"
	asynchook "github.com/unkn0wn-root/guardcache/hooks/async"
	promhooks "github.com/unkn0wn-root/guardcache/hooks/prom"
	gczap "github.com/unkn0wn-root/guardcache/log/zap"
	"github.com/unkn0wn-root/guardcache/provider"
	bcprov "github.com/unkn0wn-root/guardcache/provider/bigcache"
	rdprov "github.com/unkn0wn-root/guardcache/provider/redis"
	rtprov "github.com/unkn0wn-root/guardcache/provider/ristretto"
)

type report struct {
	Key        string    `json:"key" msgpack:"key" cbor:"1,keyasint"`
	Generation int64     `json:"generation" msgpack:"generation" cbor:"2,keyasint"`
	ProducedAt time.Time `json:"producedAt" msgpack:"producedAt" cbor:"3,keyasint"`
}

func main() {
	cfg, err := parseConfig(os.Args[1:], lookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var logger *zap.Logger
	if cfg.debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("stampede failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	logger.Info("starting", zap.String("config", cfg.NonSensitiveString()))

	var rdb goredis.UniversalClient
	if cfg.flags == "redis" || cfg.provider == "redis" {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.redisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	flags, err := newFlagStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer flags.Close(context.Background())

	prov, err := newProvider(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer prov.Close(context.Background())

	reg := prometheus.NewRegistry()
	metrics, err := promhooks.New(promhooks.Config{Registerer: reg})
	if err != nil {
		return err
	}
	hooks := asynchook.New(metrics, 2, 1024)
	defer hooks.Close()

	if cfg.metricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	cdc, err := newCodec(cfg.codec)
	if err != nil {
		return err
	}

	// Each instance stands in for one replica: own singleflight group, shared stores.
	caches := make([]guardcache.Cache[report], cfg.instances)
	for i := range caches {
		caches[i], err = guardcache.New[report](guardcache.Options[report]{
			Namespace:    "stampede",
			Provider:     sharedProvider{prov},
			Codec:        cdc,
			Flags:        sharedFlags{flags},
			Logger:       gczap.ZapLogger{L: logger.With(zap.Int("instance", i))},
			Hooks:        hooks,
			PollInterval: cfg.pollInterval,
			MaxWait:      cfg.maxWait,
			StaleAfter:   cfg.staleAfter,
		})
		if err != nil {
			return err
		}
	}

	produced := make([]atomic.Int64, cfg.keys)
	var failures atomic.Int64

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			idx := w % cfg.keys
			key := "report:" + strconv.Itoa(idx)
			_, err := caches[w%len(caches)].Remember(ctx, key, time.Minute, func(ctx context.Context) (report, error) {
				gen := produced[idx].Add(1)
				t := time.NewTimer(cfg.produceDelay)
				defer t.Stop()
				select {
				case <-ctx.Done():
					return report{}, ctx.Err()
				case <-t.C:
				}
				return report{Key: key, Generation: gen, ProducedAt: time.Now()}, nil
			})
			if err != nil {
				failures.Add(1)
				logger.Warn("remember failed", zap.String("key", key), zap.Error(err))
			}
		}(w)
	}
	wg.Wait()

	for i := range produced {
		logger.Info("key produced",
			zap.String("key", "report:"+strconv.Itoa(i)),
			zap.Int64("producerCalls", produced[i].Load()),
		)
	}
	logger.Info("done",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("failures", failures.Load()),
		zap.Uint64("droppedHookEvents", hooks.Dropped()),
	)
	return nil
}

func newFlagStore(ctx context.Context, cfg config, rdb goredis.UniversalClient) (flagstore.FlagStore, error) {
	switch cfg.flags {
	case "redis":
		return flagstore.NewRedis(flagstore.RedisConfig{
			Client:    rdb,
			Namespace: "stampede",
			SafetyTTL: 2 * cfg.staleAfter,
		})
	case "postgres":
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := flagstore.Migrate(ctx, db, "", slog.Default()); err != nil {
			_ = db.Close()
			return nil, err
		}
		return flagstore.NewPostgres(flagstore.PostgresConfig{DB: db, CloseDB: true})
	default:
		return flagstore.NewLocal(time.Minute, 10*time.Minute), nil
	}
}

func newProvider(ctx context.Context, cfg config, rdb goredis.UniversalClient) (provider.Provider, error) {
	switch cfg.provider {
	case "bigcache":
		return bcprov.New(ctx, bcprov.Config{
			LifeWindow:         10 * time.Minute,
			CleanWindow:        time.Minute,
			MaxEntriesInWindow: 10_000,
			MaxEntrySize:       512,
		})
	case "redis":
		return rdprov.New(rdprov.Config{Client: rdb, Prefix: "stampede:"})
	default:
		return rtprov.New(rtprov.Config{NumCounters: 100_000, MaxCost: 64 << 20, BufferItems: 64})
	}
}

func newCodec(name string) (codec.Codec[report], error) {
	switch name {
	case "msgpack":
		return codec.Msgpack[report]{}, nil
	case "cbor":
		return codec.NewCBOR[report](true)
	default:
		return codec.JSON[report]{}, nil
	}
}

// Caches must not close the stores they share; run closes them once.
type sharedProvider struct{ provider.Provider }

func (sharedProvider) Close(context.Context) error { return nil }

type sharedFlags struct{ flagstore.FlagStore }

func (sharedFlags) Close(context.Context) error { return nil }
