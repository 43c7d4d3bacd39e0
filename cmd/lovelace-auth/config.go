package main

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aloneinabyss/lovelace"
)

type serverConfig struct {
	HTTPAddr      string
	Environment   string
	LogLevel      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
	SQLitePath    string
	KafkaBrokers  []string
	KafkaTopic    string
	SentryDSN     string
	// OTelInterval is how often OTel metrics are pushed to stderr. Zero leaves only /metrics.
	OTelInterval  time.Duration
	Engine        lovelace.Config
}

func loadConfig() (serverConfig, error) {
	cfg := serverConfig{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		SQLitePath:    getEnv("SQLITE_PATH", ""),
		KafkaBrokers:  splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "auth-notifications"),
		SentryDSN:     getEnv("SENTRY_DSN", ""),
		OTelInterval:  getEnvAsDuration("OTEL_METRICS_INTERVAL", 0),
	}

	ec := lovelace.DefaultConfig()
	secret, err := decodeSecret(getEnv("JWT_SECRET", ""))
	if err != nil {
		return serverConfig{}, err
	}
	ec.JWT.Secret = secret
	ec.JWT.AccessTTL = getEnvAsDuration("JWT_ACCESS_TTL", ec.JWT.AccessTTL)
	ec.JWT.RefreshTTL = getEnvAsDuration("JWT_REFRESH_TTL", ec.JWT.RefreshTTL)
	ec.JWT.Issuer = getEnv("JWT_ISSUER", ec.JWT.Issuer)
	ec.JWT.Audience = getEnv("JWT_AUDIENCE", ec.JWT.Audience)

	ec.Cookie.Name = getEnv("COOKIE_NAME", ec.Cookie.Name)
	ec.Cookie.Path = getEnv("COOKIE_PATH", ec.Cookie.Path)
	ec.Cookie.Domain = getEnv("COOKIE_DOMAIN", ec.Cookie.Domain)
	ec.Cookie.Secure = getEnvAsBool("COOKIE_SECURE", ec.Cookie.Secure)
	sameSite, err := parseSameSite(getEnv("COOKIE_SAME_SITE", "strict"))
	if err != nil {
		return serverConfig{}, err
	}
	ec.Cookie.SameSite = sameSite

	ec.RateLimit.Enabled = getEnvAsBool("RATE_LIMIT_ENABLED", ec.RateLimit.Enabled)
	ec.RateLimit.Login.Capacity = getEnvAsInt("RATE_LIMIT_LOGIN_CAPACITY", ec.RateLimit.Login.Capacity)
	ec.RateLimit.Refresh.Capacity = getEnvAsInt("RATE_LIMIT_REFRESH_CAPACITY", ec.RateLimit.Refresh.Capacity)
	ec.RateLimit.Global.Capacity = getEnvAsInt("RATE_LIMIT_GLOBAL_CAPACITY", ec.RateLimit.Global.Capacity)
	ec.RateLimit.TrustForwardedFor = getEnvAsBool("RATE_LIMIT_TRUST_FORWARDED_FOR", false)

	ec.Audit.Enabled = true
	ec.Metrics.Enabled = getEnvAsBool("METRICS_ENABLED", true)
	ec.Metrics.EnableLatencyHistograms = getEnvAsBool("METRICS_LATENCY_HISTOGRAMS", false)
	ec.Security.ProductionMode = cfg.Environment == "production"

	cfg.Engine = ec
	return cfg, ec.Validate()
}

// decodeSecret accepts a base64 encoded or raw JWT secret.
func decodeSecret(v string) ([]byte, error) {
	if v == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil && len(b) >= 32 {
		return b, nil
	}
	return []byte(v), nil
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("COOKIE_SAME_SITE must be strict, lax or none, got %q", v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvAsBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
