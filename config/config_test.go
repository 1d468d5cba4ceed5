package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://api.salon.test
booking:
  success_dismiss: 5s
events:
  driver: kafka
  kafka:
    brokers: [k1:9092, k2:9092]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.salon.test", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Booking.SuccessDismiss)
	assert.Equal(t, "Basic Manicure", cfg.Booking.DefaultService)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "kafka", cfg.Events.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Kafka.Brokers)
	assert.Equal(t, "salon-audit-worker", cfg.Events.Kafka.GroupID)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowOrigins)
	assert.False(t, cfg.Server.SecureCookies)
	assert.Equal(t, 30*time.Minute, cfg.Visitors.TTL)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: https://file.example\n")
	t.Setenv("BOOKING_API_URL", "https://env.example")
	t.Setenv("BOOKING_PORT", "9090")
	t.Setenv("BOOKING_REQUEST_TIMEOUT", "2s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example", cfg.API.BaseURL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.API.RequestTimeout)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "events:\n  driver: nats\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.driver")
}
