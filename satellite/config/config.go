// Package config loads the satellite probe configuration: an embedded YAML
// base mapped by NewConfigFromYaml, then environment overrides and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

type TransportKind string

const (
	TransportRedis  TransportKind = "redis"
	TransportNATS   TransportKind = "nats"
	TransportPubsub TransportKind = "pubsub"
)

type StoreKind string

const (
	StoreFirestore StoreKind = "firestore"
	StorePostgres  StoreKind = "postgres"
)

type TransportConfig struct {
	Kind      TransportKind
	RedisAddr string
	NatsURL   string
	ProjectID string
	TopicID   string
}

type StoreConfig struct {
	Kind        StoreKind
	ProjectID   string
	PostgresDSN string
	// CollectionPrefix namespaces Firestore collections.
	CollectionPrefix string
}

// CacheConfig puts a Redis read-through cache in front of the store.
type CacheConfig struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
}

type Config struct {
	// Role is the side of the session this probe plays.
	Role         dining.IdentityKind
	IdentityID   string
	FetchTimeout time.Duration

	Transport TransportConfig
	Store     StoreConfig
	Cache     CacheConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	override := func(key string, apply func(string)) {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			apply(val)
		}
	}

	override("SATELLITE_ROLE", func(v string) { cfg.Role = dining.IdentityKind(v) })
	override("SATELLITE_IDENTITY", func(v string) { cfg.IdentityID = v })
	override("TRANSPORT_KIND", func(v string) { cfg.Transport.Kind = TransportKind(v) })
	override("REDIS_ADDR", func(v string) {
		cfg.Transport.RedisAddr = v
		cfg.Cache.RedisAddr = v
	})
	override("NATS_URL", func(v string) { cfg.Transport.NatsURL = v })
	override("PROJECT_ID", func(v string) {
		cfg.Transport.ProjectID = v
		cfg.Store.ProjectID = v
	})
	override("TOPIC_ID", func(v string) { cfg.Transport.TopicID = v })
	override("STORE_KIND", func(v string) { cfg.Store.Kind = StoreKind(v) })
	override("POSTGRES_DSN", func(v string) { cfg.Store.PostgresDSN = v })
	override("CACHE_ENABLED", func(v string) {
		enabled, _ := strconv.ParseBool(v)
		cfg.Cache.Enabled = enabled
	})

	var fetchErr error
	override("FETCH_TIMEOUT", func(v string) {
		d, err := time.ParseDuration(v)
		if err != nil {
			fetchErr = fmt.Errorf("invalid FETCH_TIMEOUT %q: %w", v, err)
			return
		}
		cfg.FetchTimeout = d
	})
	if fetchErr != nil {
		return nil, fetchErr
	}

	// Final validation
	if cfg.Role != dining.KindUser && cfg.Role != dining.KindRestaurant {
		return nil, fmt.Errorf("role must be %q or %q, got %q", dining.KindUser, dining.KindRestaurant, cfg.Role)
	}
	if cfg.IdentityID == "" {
		return nil, fmt.Errorf("identity id is required (set via YAML or SATELLITE_IDENTITY env var)")
	}

	switch cfg.Transport.Kind {
	case TransportRedis:
		if cfg.Transport.RedisAddr == "" {
			return nil, fmt.Errorf("redis transport requires an address")
		}
	case TransportNATS:
		if cfg.Transport.NatsURL == "" {
			return nil, fmt.Errorf("nats transport requires a url")
		}
	case TransportPubsub:
		if cfg.Transport.ProjectID == "" || cfg.Transport.TopicID == "" {
			return nil, fmt.Errorf("pubsub transport requires project_id and topic_id")
		}
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}

	switch cfg.Store.Kind {
	case StoreFirestore:
		if cfg.Store.ProjectID == "" {
			return nil, fmt.Errorf("firestore store requires project_id")
		}
	case StorePostgres:
		if cfg.Store.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres store requires a dsn (POSTGRES_DSN)")
		}
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}

	if cfg.Cache.Enabled && cfg.Cache.RedisAddr == "" {
		return nil, fmt.Errorf("cache is enabled but no redis address is set")
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
