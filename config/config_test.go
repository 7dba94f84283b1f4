package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg := LoadEnv()

	assert.Equal(t, EnvDevelopment, cfg.Server.AppEnv)
	assert.Equal(t, "console", cfg.Logger.Encoding)
	assert.True(t, cfg.Bootstrap.Enabled)
	assert.Equal(t, time.Duration(0), cfg.Bootstrap.Interval)
	assert.Equal(t, "https://famme.no/products.json", cfg.Bootstrap.SourceURL)
	assert.Equal(t, 250, cfg.Bootstrap.PageSize)
	assert.Equal(t, 50, cfg.Bootstrap.MaxProducts)
	assert.Equal(t, 10*time.Second, cfg.Bootstrap.FetchTimeout)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("BOOTSTRAP_ENABLED", "false")
	t.Setenv("BOOTSTRAP_INTERVAL", "6h")
	t.Setenv("BOOTSTRAP_MAX_PRODUCTS", "120")
	t.Setenv("BOOTSTRAP_MANUAL_ID_FLOOR", "5000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := LoadEnv()

	assert.False(t, cfg.Bootstrap.Enabled)
	assert.Equal(t, 6*time.Hour, cfg.Bootstrap.Interval)
	assert.Equal(t, 120, cfg.Bootstrap.MaxProducts)
	assert.Equal(t, int64(5000), cfg.Bootstrap.ManualIDFloor)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadEnv_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("BOOTSTRAP_PAGE_SIZE", "lots")
	t.Setenv("BOOTSTRAP_FETCH_TIMEOUT", "soon")

	cfg := LoadEnv()

	assert.Equal(t, 250, cfg.Bootstrap.PageSize)
	assert.Equal(t, 10*time.Second, cfg.Bootstrap.FetchTimeout)
}
