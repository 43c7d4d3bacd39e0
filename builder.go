package lovelace

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aloneinabyss/lovelace/internal"
	"github.com/aloneinabyss/lovelace/internal/flows"
	"github.com/aloneinabyss/lovelace/internal/rate"
	"github.com/aloneinabyss/lovelace/jwt"
	"github.com/aloneinabyss/lovelace/password"
	"github.com/aloneinabyss/lovelace/revocation"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be used for one successful Build only.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	auditSink    AuditSink
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client shared by the revocation store and the rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the account store.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the audit sink and enables the audit dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithNotifier sets the outbound notification sink. Without one, notifications are logged at
// debug level and discarded.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the structured logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the engine clock. Token issuance, expiry checks and single-use token
// windows all read it.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		Secret:       cloneBytes(cfg.JWT.Secret),
		Issuer:       cfg.JWT.Issuer,
		Audience:     cfg.JWT.Audience,
		Leeway:       cfg.JWT.Leeway,
		MaxFutureIAT: cfg.JWT.MaxFutureIAT,
		Now:          now,
	})
	if err != nil {
		return nil, err
	}

	// -------- PASSWORDS --------
	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}
	dummyPassword, err := internal.NewDummyPassword()
	if err != nil {
		return nil, err
	}
	dummyHash, err := ph.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	// -------- REDIS-BACKED STORES --------
	store := revocation.New(b.redis, revocation.Config{
		KeyPrefix:        cfg.Revocation.KeyPrefix,
		OperationTimeout: cfg.Revocation.RedisTimeout,
		Now:              now,
		Logger:           logger,
	})
	fallback := rate.NewLocalCounter(now)
	limiter := rate.New(b.redis, rate.Config{
		KeyPrefix:        cfg.RateLimit.KeyPrefix,
		OperationTimeout: cfg.RateLimit.RedisTimeout,
		Logger:           logger,
	}, fallback)

	metrics := NewMetrics(cfg.Metrics)

	notifier := b.notifier
	if notifier == nil {
		notifier = NotifierFunc(func(ctx context.Context, n Notification) error {
			logger.DebugContext(ctx, "notification discarded, no notifier configured", "template", n.Template)
			return nil
		})
	}

	engine := &Engine{
		config:        cloneConfig(cfg),
		logger:        logger,
		now:           now,
		jwtManager:    jm,
		revocation:    store,
		rateLimiter:   limiter,
		rateFallback:  fallback,
		passwordHash:  ph,
		dummyHash:     dummyHash,
		userProvider:  b.userProvider,
		audit:         newAuditDispatcher(cfg.Audit, b.auditSink),
		notifications: newNotificationDispatcher(cfg.Notification, notifier, logger, metrics),
		metrics:       metrics,
		stopJanitor:   make(chan struct{}),
	}
	engine.flows = flows.New(engine.flowDeps())

	engine.janitorDone.Add(1)
	go engine.runJanitor()

	b.built = true

	return engine, nil
}

func (e *Engine) flowDeps() flows.Deps {
	return flows.Deps{
		Refresh: flows.RefreshDeps{
			DecodeRefresh: func(token string) (*jwt.Claims, error) {
				return e.jwtManager.DecodeAs(token, jwt.TypeRefresh)
			},
			LoadAccount: func(ctx context.Context, username string) (flows.Account, error) {
				user, err := e.userProvider.GetUserByUsername(ctx, username)
				if err != nil {
					return flows.Account{}, err
				}
				return accountOf(user), nil
			},
			IssuePair: func(a flows.Account) (flows.TokenPair, error) {
				pair, err := e.issuePair(Principal{UserID: a.ID, Username: a.Username, Email: a.Email, Roles: a.Roles})
				if err != nil {
					return flows.TokenPair{}, err
				}
				return flows.TokenPair(pair), nil
			},
			Now:             e.now,
			Revocation:      e.revocation,
			AccountNotFound: ErrUserNotFound,
		},
		Validate: flows.ValidateDeps{
			DecodeAccess: func(token string) (*jwt.Claims, error) {
				return e.jwtManager.DecodeAs(token, jwt.TypeAccess)
			},
			LoadAccount: func(ctx context.Context, userID string) (flows.Account, error) {
				user, err := e.userProvider.GetUserByID(ctx, userID)
				if err != nil {
					return flows.Account{}, err
				}
				return accountOf(user), nil
			},
			Now:             e.now,
			Revocation:      e.revocation,
			AccountNotFound: ErrUserNotFound,
		},
		Logout: flows.LogoutDeps{
			Identify:   e.jwtManager.Identify,
			Now:        e.now,
			Revocation: e.revocation,
		},
	}
}

func accountOf(u UserRecord) flows.Account {
	return flows.Account{
		ID:                u.ID,
		Username:          u.Username,
		Email:             u.Email,
		Roles:             u.Roles,
		Enabled:           u.Enabled,
		PasswordChangedAt: u.PasswordChangedAt,
	}
}
