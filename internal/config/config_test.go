package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "marketplace-service", cfg.ServiceName)
	assert.Equal(t, 10*time.Second, cfg.WebhookTimeout)
	assert.False(t, cfg.VerifySignatureHash)
	assert.Nil(t, cfg.KafkaBrokers)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CONTRACT_VERIFY_HASH", "true")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.VerifySignatureHash)
	assert.Equal(t, 3*time.Second, cfg.WebhookTimeout)
}
