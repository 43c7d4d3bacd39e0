package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType discriminates access tokens from refresh tokens inside the signed claim set.
type TokenType string

const (
	// TypeAccess marks short-lived bearer tokens presented on API calls.
	TypeAccess TokenType = "access"
	// TypeRefresh marks long-lived tokens exchanged for a new pair.
	TypeRefresh TokenType = "refresh"
)

// MinSecretLength is the minimum accepted HS256 secret size in bytes.
const MinSecretLength = 32

// Config defines the signing and validation settings of a Manager.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	// Secret is the single HS256 key shared by access and refresh tokens.
	Secret       []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	// Now overrides the clock used for issuance and expiry checks. Nil means time.Now.
	Now func() time.Time
}

// Manager issues and decodes signed, expiring claim sets.
type Manager struct {
	config Config
}

// Claims is the decoded, flattened view of a token.
type Claims struct {
	ID        string
	Subject   string
	UserID    string
	Roles     []string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// wireClaims is the JSON layout signed into every token.
type wireClaims struct {
	UID   string    `json:"uid"`
	Roles []string  `json:"roles,omitempty"`
	Type  TokenType `json:"typ"`
	// IssuedAtMillis carries issued-at at millisecond precision; "iat" is whole seconds.
	IssuedAtMillis int64 `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.Secret = append([]byte(nil), cfg.Secret...)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a claim set for subject/userID/roles that expires after ttl.
//
// Every token carries a random jti, so two tokens issued for the same principal in the same
// instant still differ and can be revoked independently.
func (m *Manager) Issue(subject, userID string, roles []string, typ TokenType, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("invalid TTL configuration")
	}
	if subject == "" || userID == "" {
		return "", errors.New("subject and user id are required")
	}
	switch typ {
	case TypeAccess, TypeRefresh:
	default:
		return "", fmt.Errorf("unsupported token type %q", typ)
	}

	now := m.config.Now()
	claims := wireClaims{
		UID:            userID,
		Roles:          append([]string(nil), roles...),
		Type:           typ,
		IssuedAtMillis: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Decode verifies signature and expiry and returns the flattened claims.
//
// Failures are always *DecodeError; use KindOf or errors.As to branch on the reason.
func (m *Manager) Decode(token string) (*Claims, error) {
	return m.decode(token, true)
}

// DecodeAs is Decode plus a token-type check. A refresh token presented where an access token is
// expected (or the reverse) fails with KindWrongType.
func (m *Manager) DecodeAs(token string, typ TokenType) (*Claims, error) {
	claims, err := m.decode(token, true)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, &DecodeError{Kind: KindWrongType, Err: fmt.Errorf("expected %s token, got %q", typ, claims.Type)}
	}
	return claims, nil
}

// Identify verifies the signature but not expiry. It is only suitable for keying
// non-security decisions such as rate-limit buckets.
func (m *Manager) Identify(token string) (*Claims, error) {
	return m.decode(token, false)
}

func (m *Manager) decode(token string, validateTime bool) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &DecodeError{Kind: KindMalformed, Err: errors.New("empty token")}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if !validateTime {
		options = append(options, jwt.WithoutClaimsValidation())
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &wireClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	wc, ok := parsed.Claims.(*wireClaims)
	if !ok || !parsed.Valid {
		return nil, &DecodeError{Kind: KindMalformed, Err: jwt.ErrTokenInvalidClaims}
	}
	if wc.Subject == "" || wc.UID == "" || wc.IssuedAt == nil || wc.ExpiresAt == nil {
		return nil, &DecodeError{Kind: KindMalformed, Err: errors.New("missing required claims")}
	}
	if validateTime && m.config.MaxFutureIAT > 0 {
		if wc.IssuedAt.Time.After(m.config.Now().Add(m.config.MaxFutureIAT)) {
			return nil, &DecodeError{Kind: KindMalformed, Err: errors.New("token iat too far in the future")}
		}
	}

	issuedAt := wc.IssuedAt.Time
	if wc.IssuedAtMillis > 0 {
		ms := time.UnixMilli(wc.IssuedAtMillis)
		// iat_ms must agree with the signed iat to the second.
		if ms.Unix() != issuedAt.Unix() {
			return nil, &DecodeError{Kind: KindMalformed, Err: errors.New("iat_ms disagrees with iat")}
		}
		issuedAt = ms
	}

	return &Claims{
		ID:        wc.ID,
		Subject:   wc.Subject,
		UserID:    wc.UID,
		Roles:     wc.Roles,
		Type:      wc.Type,
		IssuedAt:  issuedAt,
		ExpiresAt: wc.ExpiresAt.Time,
	}, nil
}

// Remaining returns how long the token behind c stays valid at now. It is never negative.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c == nil {
		return 0
	}
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
