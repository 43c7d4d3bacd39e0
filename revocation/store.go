package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when Redis could not serve a revocation read or write.
var ErrUnavailable = errors.New("revocation store unavailable")

// DefaultKeyPrefix namespaces revocation entries in Redis.
const DefaultKeyPrefix = "blacklist:token:"

// Config tunes a Store.
type Config struct {
	KeyPrefix string
	// OperationTimeout bounds each Redis call. Zero leaves the caller's deadline in charge.
	OperationTimeout time.Duration
	Now              func() time.Time
	Logger           *slog.Logger
}

// Store records revoked tokens until their natural expiry.
//
//	Docs: revocation/doc.go
type Store struct {
	redis    redis.UniversalClient
	config   Config
	fallback *memorySet
}

// New creates a revocation [Store] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		redis:    redisClient,
		config:   cfg,
		fallback: newMemorySet(cfg.Now),
	}
}

// Revoke marks token as revoked for ttl. A non-positive ttl means the token has already
// expired and nothing is stored.
//
// When Redis is unreachable the entry is kept in the degraded-mode set and the returned
// error wraps [ErrUnavailable].
//
//	Performance: 1 Redis SET.
func (s *Store) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 || token == "" {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.redis.Set(ctx, s.key(token), "1", ttl).Err(); err != nil {
		s.fallback.add(digest(token), ttl)
		s.config.Logger.Warn("revocation: redis write failed, entry kept in memory", "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeOnce revokes token only if it is not revoked already. claimed is true for exactly one
// caller per token, which lets refresh rotation treat the revoke as a single-use claim.
//
// A non-positive ttl claims nothing and returns false. On Redis failure the token is still
// recorded locally, claimed is false and the error wraps [ErrUnavailable].
//
//	Performance: 1 Redis SET NX.
func (s *Store) RevokeOnce(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 || token == "" {
		return false, nil
	}

	d := digest(token)
	if s.fallback.contains(d) {
		return false, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	claimed, err := s.redis.SetNX(ctx, s.config.KeyPrefix+d, "1", ttl).Result()
	if err != nil {
		s.fallback.add(d, ttl)
		s.config.Logger.Warn("revocation: redis claim failed, entry kept in memory", "error", err)
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return claimed, nil
}

// IsRevoked reports whether token has been revoked.
//
// It fails closed: if Redis cannot answer, it returns true with an error wrapping
// [ErrUnavailable].
//
//	Performance: 1 Redis EXISTS (0 on a degraded-mode hit).
func (s *Store) IsRevoked(ctx context.Context, token string) (bool, error) {
	d := digest(token)
	if s.fallback.contains(d) {
		return true, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.redis.Exists(ctx, s.config.KeyPrefix+d).Result()
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// DegradedEntries returns the number of live entries held only in memory.
func (s *Store) DegradedEntries() int {
	return s.fallback.len()
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) key(token string) string {
	return s.config.KeyPrefix + digest(token)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
