package lovelace

import (
	"net/http"
	"testing"
	"time"
)

func TestDefaultConfigNeedsOnlySecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing secret to be rejected")
	}

	cfg.JWT.Secret = append([]byte(nil), testSecret...)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with secret invalid: %v", err)
	}

	if cfg.RateLimit.Login.Capacity != 5 || cfg.RateLimit.Login.Window != time.Minute {
		t.Fatalf("unexpected login bucket %+v", cfg.RateLimit.Login)
	}
	if cfg.RateLimit.Refresh.Capacity != 30 || cfg.RateLimit.Global.Capacity != 100 {
		t.Fatalf("unexpected refresh/global buckets %+v / %+v", cfg.RateLimit.Refresh, cfg.RateLimit.Global)
	}
	if cfg.Cookie.Name != "refresh_token" || cfg.Cookie.Path != "/api/auth" || !cfg.Cookie.Secure || cfg.Cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("unexpected cookie defaults %+v", cfg.Cookie)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "baseline",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "short secret",
			mutate: func(c *Config) {
				c.JWT.Secret = []byte("too-short")
			},
			wantValid: false,
		},
		{
			name: "zero access ttl",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "refresh ttl not above access ttl",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = c.JWT.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "cookie name blank",
			mutate: func(c *Config) {
				c.Cookie.Name = "  "
			},
			wantValid: false,
		},
		{
			name: "cookie path relative",
			mutate: func(c *Config) {
				c.Cookie.Path = "api/auth"
			},
			wantValid: false,
		},
		{
			name: "samesite none without secure",
			mutate: func(c *Config) {
				c.Cookie.SameSite = http.SameSiteNoneMode
				c.Cookie.Secure = false
			},
			wantValid: false,
		},
		{
			name: "samesite lax without secure",
			mutate: func(c *Config) {
				c.Cookie.SameSite = http.SameSiteLaxMode
				c.Cookie.Secure = false
			},
			wantValid: true,
		},
		{
			name: "zero login capacity",
			mutate: func(c *Config) {
				c.RateLimit.Login.Capacity = 0
			},
			wantValid: false,
		},
		{
			name: "zero global window",
			mutate: func(c *Config) {
				c.RateLimit.Global.Window = 0
			},
			wantValid: false,
		},
		{
			name: "buckets ignored when disabled",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = false
				c.RateLimit.Login.Capacity = 0
			},
			wantValid: true,
		},
		{
			name: "password max below min",
			mutate: func(c *Config) {
				c.Password.MinLength = 10
				c.Password.MaxLength = 8
			},
			wantValid: false,
		},
		{
			name: "verification cooldown not below ttl",
			mutate: func(c *Config) {
				c.EmailVerification.ResendCooldown = c.EmailVerification.TokenTTL
			},
			wantValid: false,
		},
		{
			name: "reset ttl zero",
			mutate: func(c *Config) {
				c.PasswordReset.TokenTTL = 0
			},
			wantValid: false,
		},
		{
			name: "negative reset cooldown",
			mutate: func(c *Config) {
				c.PasswordReset.RequestCooldown = -time.Second
			},
			wantValid: false,
		},
		{
			name: "no default roles",
			mutate: func(c *Config) {
				c.Account.DefaultRoles = nil
			},
			wantValid: false,
		},
		{
			name: "username bounds inverted",
			mutate: func(c *Config) {
				c.Account.UsernameMinLen = 10
				c.Account.UsernameMaxLen = 5
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected invalid config")
			}
		})
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.JWT.Secret = nil

	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithUserProvider(newMockUserProvider()).Build(); err == nil {
		t.Fatal("expected Build to reject invalid config")
	}
}

func TestBuildRequiresDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(testConfig()).WithUserProvider(newMockUserProvider()).Build(); err == nil {
		t.Fatal("expected Build without redis to fail")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected Build without user provider to fail")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithConfig(testConfig()).WithRedis(rdb).WithUserProvider(newMockUserProvider())

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestEngineConfigIsACopy(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	engine := buildTestEngine(t, rdb, newMockUserProvider(), engineOptions{config: &cfg})

	cfg.JWT.Secret[0] ^= 0xff
	cfg.Account.DefaultRoles[0] = "ROLE_ADMIN"

	got := engine.Config()
	if got.JWT.Secret[0] == cfg.JWT.Secret[0] {
		t.Fatal("engine shares the caller's secret slice")
	}
	if got.Account.DefaultRoles[0] != "ROLE_USER" {
		t.Fatal("engine shares the caller's roles slice")
	}

	got.Account.DefaultRoles[0] = "ROLE_ROOT"
	if engine.Config().Account.DefaultRoles[0] != "ROLE_USER" {
		t.Fatal("Config must return a copy")
	}
}
