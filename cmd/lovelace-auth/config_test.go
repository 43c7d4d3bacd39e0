package main

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	secret := strings.Repeat("x", 48)
	t.Setenv("JWT_SECRET", base64.StdEncoding.EncodeToString([]byte(secret)))
	t.Setenv("JWT_ACCESS_TTL", "10m")
	t.Setenv("COOKIE_SAME_SITE", "lax")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RATE_LIMIT_LOGIN_CAPACITY", "9")
	t.Setenv("OTEL_METRICS_INTERVAL", "30s")

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, []byte(secret), cfg.Engine.JWT.Secret)
	assert.Equal(t, 10*time.Minute, cfg.Engine.JWT.AccessTTL)
	assert.Equal(t, http.SameSiteLaxMode, cfg.Engine.Cookie.SameSite)
	assert.False(t, cfg.Engine.Cookie.Secure)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 9, cfg.Engine.RateLimit.Login.Capacity)
	assert.False(t, cfg.Engine.Security.ProductionMode)
	assert.Equal(t, 30*time.Second, cfg.OTelInterval)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := loadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRawShortSecretRejected(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")
	_, err := loadConfig()
	assert.Error(t, err)
}

func TestLoadConfigProductionRequiresSecureCookie(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("p", 40))
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("COOKIE_SECURE", "false")

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestParseSameSite(t *testing.T) {
	_, err := parseSameSite("sideways")
	assert.Error(t, err)

	v, err := parseSameSite("NONE")
	require.NoError(t, err)
	assert.Equal(t, http.SameSiteNoneMode, v)
}
