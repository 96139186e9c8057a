package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

type YamlTransportConfig struct {
	Kind      string `yaml:"kind"`
	RedisAddr string `yaml:"redis_addr"`
	NatsURL   string `yaml:"nats_url"`
	TopicID   string `yaml:"topic_id"`
}

type YamlStoreConfig struct {
	Kind             string `yaml:"kind"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	CollectionPrefix string `yaml:"collection_prefix"`
}

type YamlCacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RedisAddr string `yaml:"redis_addr"`
	TTL       string `yaml:"ttl"`
}

// YamlConfig mirrors the raw probe yaml file.
type YamlConfig struct {
	ProjectID    string              `yaml:"project_id"`
	Role         string              `yaml:"role"`
	IdentityID   string              `yaml:"identity_id"`
	FetchTimeout string              `yaml:"fetch_timeout"`
	Transport    YamlTransportConfig `yaml:"transport"`
	Store        YamlStoreConfig     `yaml:"store"`
	Cache        YamlCacheConfig     `yaml:"cache"`
}

// NewConfigFromYaml converts the YamlConfig into a base Config.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	fetchTimeout, err := parseDuration("fetch_timeout", baseCfg.FetchTimeout)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("cache.ttl", baseCfg.Cache.TTL)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Role:         dining.IdentityKind(baseCfg.Role),
		IdentityID:   baseCfg.IdentityID,
		FetchTimeout: fetchTimeout,
		Transport: TransportConfig{
			Kind:      TransportKind(baseCfg.Transport.Kind),
			RedisAddr: baseCfg.Transport.RedisAddr,
			NatsURL:   baseCfg.Transport.NatsURL,
			ProjectID: baseCfg.ProjectID,
			TopicID:   baseCfg.Transport.TopicID,
		},
		Store: StoreConfig{
			Kind:             StoreKind(baseCfg.Store.Kind),
			ProjectID:        baseCfg.ProjectID,
			PostgresDSN:      baseCfg.Store.PostgresDSN,
			CollectionPrefix: baseCfg.Store.CollectionPrefix,
		},
		Cache: CacheConfig{
			Enabled:   baseCfg.Cache.Enabled,
			RedisAddr: baseCfg.Cache.RedisAddr,
			TTL:       cacheTTL,
		},
	}

	logger.Debug("YAML config mapping complete",
		"role", cfg.Role,
		"transport", cfg.Transport.Kind,
		"store", cfg.Store.Kind,
	)
	return cfg, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return d, nil
}
