package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-dining-satellite/relayservice/config"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"
)

const sampleYaml = `
project_id: yaml-project
listen_addr: ":9000"
topic_id: yaml-topic
subscription_id: yaml-subscription
subscription_dlq_topic_id: yaml-dlq
num_pipeline_workers: 5
cors:
  allowed_origins: ["http://yaml.com"]
  role: editor
redis:
  enabled: true
  addr: localhost:6379
  device_ttl: 30m
vapid:
  public_key: yaml-public-key
  private_key: yaml-private-key
  subscriber_email: yaml@test.com
apns:
  enabled: true
  key_id: K
  team_id: T
  bundle_id: com.dineon.app
  key_path: /keys/apns.p8
  sandbox: true
`

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal([]byte(sampleYaml), &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)

		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 30*time.Minute, cfg.Redis.DeviceTTL)

		assert.Equal(t, "yaml-public-key", cfg.Vapid.PublicKey)
		assert.Equal(t, "yaml@test.com", cfg.Vapid.SubscriberEmail)

		assert.True(t, cfg.APNS.Enabled)
		assert.True(t, cfg.APNS.Sandbox)
		assert.Equal(t, "/keys/apns.p8", cfg.APNS.KeyPath)

		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - handles missing optional fields", func(t *testing.T) {
		cfg, err := config.NewConfigFromYaml(&config.YamlConfig{
			ProjectID:      "minimal-project",
			SubscriptionID: "minimal-sub",
		}, logger)

		require.NoError(t, err)
		assert.Equal(t, "minimal-project", cfg.ProjectID)
		assert.Equal(t, 0, cfg.NumPipelineWorkers)
		assert.Empty(t, cfg.ListenAddr)
		assert.Empty(t, cfg.Vapid.PublicKey)
		assert.False(t, cfg.APNS.Enabled)
	})

	t.Run("Failure - bad duration", func(t *testing.T) {
		_, err := config.NewConfigFromYaml(&config.YamlConfig{
			RedisConfig: config.YamlRedisConfig{DeviceTTL: "soon"},
		}, logger)
		assert.Error(t, err)
	})
}
