// Command diningprobe binds a customer- or restaurant-side satellite to the
// configured transport and object store and logs every callback it receives.
package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-dining-satellite/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-dining-satellite/internal/storage/firestore"
	"github.com/tinywideclouds/go-dining-satellite/internal/storage/postgres"
	natstransport "github.com/tinywideclouds/go-dining-satellite/internal/transport/nats"
	pstransport "github.com/tinywideclouds/go-dining-satellite/internal/transport/pubsub"
	redistransport "github.com/tinywideclouds/go-dining-satellite/internal/transport/redis"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"github.com/tinywideclouds/go-dining-satellite/satellite"
	"github.com/tinywideclouds/go-dining-satellite/satellite/config"
)

//go:embed local.yaml
var configFile []byte

// cleanup runs in reverse order on exit.
type cleanup []func()

func (c *cleanup) add(f func()) { *c = append(*c, f) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	logger := newLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("Probe exited with error", "err", err)
		os.Exit(1)
	}
}

// newLogger honours LOG_LEVEL and defaults to info.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With("service", "dining-probe")
}

func run(ctx context.Context, logger *slog.Logger) error {
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		return fmt.Errorf("unmarshal embedded yaml config: %w", err)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return err
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		return err
	}

	var done cleanup
	defer func() { done.run() }()

	transport, err := newTransport(ctx, cfg.Transport, &done, logger)
	if err != nil {
		return err
	}
	store, err := newObjectStore(ctx, cfg, &done, logger)
	if err != nil {
		return err
	}

	opts := satellite.Options{FetchTimeout: cfg.FetchTimeout}
	listener := logListener{logger: logger.With("role", cfg.Role, "identity", cfg.IdentityID)}

	var (
		unregister func(context.Context) error
		wait       func()
	)
	switch cfg.Role {
	case dining.KindUser:
		sat := satellite.NewUserSatellite(transport, store, opts, logger)
		if err := sat.Register(ctx, &dining.UserInfo{ObjectID: cfg.IdentityID}, listener); err != nil {
			return fmt.Errorf("register user satellite: %w", err)
		}
		unregister, wait = sat.Unregister, sat.Wait
	default:
		sat := satellite.NewRestaurantSatellite(transport, store, opts, logger)
		if err := sat.Register(ctx, &dining.RestaurantInfo{ObjectID: cfg.IdentityID}, listener); err != nil {
			return fmt.Errorf("register restaurant satellite: %w", err)
		}
		unregister, wait = sat.Unregister, sat.Wait
	}
	logger.Info("Probe listening", "role", cfg.Role, "identity", cfg.IdentityID, "transport", cfg.Transport.Kind, "store", cfg.Store.Kind)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := unregister(shutdownCtx); err != nil {
		logger.Warn("Unregister failed", "err", err)
	}
	wait()
	return nil
}

func newTransport(ctx context.Context, cfg config.TransportConfig, done *cleanup, logger *slog.Logger) (dining.Transport, error) {
	switch cfg.Kind {
	case config.TransportRedis:
		rdb, err := redistransport.Dial(cfg.RedisAddr, "", 0)
		if err != nil {
			return nil, err
		}
		t := redistransport.NewTransport(rdb, logger)
		done.add(func() {
			_ = t.Close()
			_ = rdb.Close()
		})
		return t, nil

	case config.TransportNATS:
		t, err := natstransport.Connect(cfg.NatsURL, logger)
		if err != nil {
			return nil, err
		}
		done.add(func() { _ = t.Close() })
		return t, nil

	case config.TransportPubsub:
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		t := pstransport.NewTransport(client, pstransport.Config{
			ProjectID: cfg.ProjectID,
			TopicID:   cfg.TopicID,
		}, logger)
		done.add(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := t.Close(closeCtx); err != nil {
				logger.Warn("Pub/Sub transport close failed", "err", err)
			}
			_ = client.Close()
		})
		return t, nil
	}
	return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
}

func newObjectStore(ctx context.Context, cfg *config.Config, done *cleanup, logger *slog.Logger) (dining.ObjectStore, error) {
	var repo dining.ObjectRepository

	switch cfg.Store.Kind {
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.Store.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		done.add(func() { _ = client.Close() })
		repo = fsStore.NewObjectStore(client, cfg.Store.CollectionPrefix)

	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		done.add(pool.Close)
		pgStore := postgres.NewObjectStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		repo = pgStore

	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
	logger.Info("ObjectStore initialized", "type", cfg.Store.Kind)

	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedisClient(cfg.Cache.RedisAddr, "", 0)
		if err != nil {
			return nil, fmt.Errorf("connect to redis cache: %w", err)
		}
		done.add(func() { _ = redisClient.Close() })
		repo = cache.NewCachedObjectStore(repo, redisClient, cfg.Cache.TTL, logger)
		logger.Info("ObjectStore upgraded", "type", "redis_cached_"+string(cfg.Store.Kind), "ttl", cfg.Cache.TTL)
	}
	return repo, nil
}
