package lovelace

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Config is the complete engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT               JWTConfig
	Cookie            CookieConfig
	RateLimit         RateLimitConfig
	Revocation        RevocationConfig
	Password          PasswordConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	Account           AccountConfig
	Audit             AuditConfig
	Notification      NotificationConfig
	Metrics           MetricsConfig
	Security          SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token issuance. Access and refresh tokens share Secret.
type JWTConfig struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Secret       []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig describes the refresh-token cookie. The refresh token is never written to a
// response body.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// BucketLimit is the capacity of one fixed window.
type BucketLimit struct {
	Capacity int
	Window   time.Duration
}

// RateLimitConfig configures the three request buckets.
type RateLimitConfig struct {
	Enabled   bool
	KeyPrefix string
	Login     BucketLimit
	Refresh   BucketLimit
	Global    BucketLimit
	// RedisTimeout bounds each counter round trip before the local fallback takes over.
	RedisTimeout time.Duration
	// TrustForwardedFor makes the first X-Forwarded-For entry the client IP.
	TrustForwardedFor bool
}

// RevocationConfig configures the token blacklist.
type RevocationConfig struct {
	KeyPrefix    string
	RedisTimeout time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id parameters and the password policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	MinLength      int
	MaxLength      int
}

/*
====================================
SINGLE-USE TOKEN CONFIG
====================================
*/

// EmailVerificationConfig configures verification tokens.
type EmailVerificationConfig struct {
	TokenTTL time.Duration
	// ResendCooldown suppresses a new token while the previous one is younger than this.
	ResendCooldown time.Duration
}

// PasswordResetConfig configures reset tokens.
type PasswordResetConfig struct {
	TokenTTL time.Duration
	// RequestCooldown rejects a new request while the previous token is younger than this.
	RequestCooldown time.Duration
}

// AccountConfig configures registration.
type AccountConfig struct {
	DefaultRoles   []string
	UsernameMinLen int
	UsernameMaxLen int
}

/*
====================================
SIDE CHANNELS
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// NotificationConfig controls the asynchronous notification dispatcher.
type NotificationConfig struct {
	BufferSize int
	DropIfFull bool
	// SendTimeout bounds a single Notifier call on the dispatcher goroutine.
	SendTimeout time.Duration
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds deployment-wide hardening switches.
type SecurityConfig struct {
	ProductionMode bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. JWT.Secret is left empty and must be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   7 * 24 * time.Hour,
			Issuer:       "lovelace",
			Leeway:       5 * time.Second,
			MaxFutureIAT: 10 * time.Minute,
		},
		Cookie: CookieConfig{
			Name:     "refresh_token",
			Path:     "/api/auth",
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			KeyPrefix:    "ratelimit:",
			Login:        BucketLimit{Capacity: 5, Window: time.Minute},
			Refresh:      BucketLimit{Capacity: 30, Window: time.Minute},
			Global:       BucketLimit{Capacity: 100, Window: time.Minute},
			RedisTimeout: 250 * time.Millisecond,
		},
		Revocation: RevocationConfig{
			KeyPrefix:    "blacklist:token:",
			RedisTimeout: time.Second,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			MinLength:      6,
			MaxLength:      128,
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL:       24 * time.Hour,
			ResendCooldown: 5 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:        time.Hour,
			RequestCooldown: 5 * time.Minute,
		},
		Account: AccountConfig{
			DefaultRoles:   []string{"ROLE_USER"},
			UsernameMinLen: 3,
			UsernameMaxLen: 32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Notification: NotificationConfig{
			BufferSize:  256,
			DropIfFull:  true,
			SendTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.Account.DefaultRoles = append([]string(nil), cfg.Account.DefaultRoles...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found, or nil.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be greater than AccessTTL")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 256 bits")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Cookie
	if strings.TrimSpace(c.Cookie.Name) == "" {
		return errors.New("Cookie Name is required")
	}
	if c.Cookie.Path == "" || !strings.HasPrefix(c.Cookie.Path, "/") {
		return errors.New("Cookie Path must start with /")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return errors.New("Cookie SameSite=None requires Secure")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		for name, b := range map[string]BucketLimit{
			"Login":   c.RateLimit.Login,
			"Refresh": c.RateLimit.Refresh,
			"Global":  c.RateLimit.Global,
		} {
			if b.Capacity <= 0 {
				return errors.New("RateLimit " + name + " Capacity must be > 0")
			}
			if b.Window <= 0 {
				return errors.New("RateLimit " + name + " Window must be > 0")
			}
		}
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Single-use tokens
	if c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification TokenTTL must be > 0")
	}
	if c.EmailVerification.ResendCooldown < 0 || c.EmailVerification.ResendCooldown >= c.EmailVerification.TokenTTL {
		return errors.New("EmailVerification ResendCooldown must be within [0, TokenTTL)")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.RequestCooldown < 0 || c.PasswordReset.RequestCooldown >= c.PasswordReset.TokenTTL {
		return errors.New("PasswordReset RequestCooldown must be within [0, TokenTTL)")
	}

	// Account
	if len(c.Account.DefaultRoles) == 0 {
		return errors.New("Account DefaultRoles must not be empty")
	}
	if c.Account.UsernameMinLen < 1 || c.Account.UsernameMaxLen < c.Account.UsernameMinLen {
		return errors.New("Account username length bounds are invalid")
	}

	if c.Security.ProductionMode {
		if c.JWT.AccessTTL > time.Hour {
			return errors.New("ProductionMode requires JWT AccessTTL <= 1h")
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires JWT RefreshTTL <= 30d")
		}
		if !c.Cookie.Secure {
			return errors.New("ProductionMode requires secure cookies")
		}
		if !c.RateLimit.Enabled {
			return errors.New("ProductionMode requires rate limiting")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 || c.Password.SaltLength < 16 {
			return errors.New("ProductionMode requires Password KeyLength >= 32 and SaltLength >= 16")
		}
	}

	return nil
}
