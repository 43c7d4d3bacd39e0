package lovelace

import (
	"context"
	"time"
)

// UserRecord is the account record owned by the [UserProvider].
//
// Single-use tokens are stored as SHA-256 hex digests; the plaintext only ever travels to the
// user inside a notification.
type UserRecord struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	EmailVerified bool
	// Enabled implies EmailVerified.
	Enabled bool
	Roles   []string
	// PasswordChangedAt never moves backwards. Tokens issued before it are rejected.
	PasswordChangedAt time.Time

	VerificationTokenHash      string
	VerificationTokenCreatedAt time.Time
	VerificationTokenExpiresAt time.Time

	ResetTokenHash      string
	ResetTokenCreatedAt time.Time
	ResetTokenExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserProvider is the persistence boundary for accounts.
//
// Lookups return [ErrUserNotFound] for unknown keys. Create returns [ErrUserExists] when the
// username or email is taken. Save overwrites the record identified by ID.
type UserProvider interface {
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByVerificationToken(ctx context.Context, tokenHash string) (UserRecord, error)
	GetUserByResetToken(ctx context.Context, tokenHash string) (UserRecord, error)
	CreateUser(ctx context.Context, user UserRecord) (UserRecord, error)
	SaveUser(ctx context.Context, user UserRecord) error
}

// Principal is the identity a token is issued for.
type Principal struct {
	UserID   string
	Username string
	Email    string
	Roles    []string
}

func principalOf(u UserRecord) Principal {
	return Principal{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Roles:    append([]string(nil), u.Roles...),
	}
}

// TokenPair is a freshly issued access/refresh pair with their expiries.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// UserSummary is the non-secret view of an account returned to clients.
type UserSummary struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func summaryOf(p Principal) UserSummary {
	return UserSummary{ID: p.UserID, Username: p.Username, Email: p.Email, Roles: p.Roles}
}

// LoginResult is returned by [Engine.Login] and [Engine.Refresh].
type LoginResult struct {
	Tokens TokenPair
	User   UserSummary
}

// AuthResult is the identity established by [Engine.Authenticate]. Roles come from the token
// claims, not from the user record.
type AuthResult struct {
	UserID    string
	Username  string
	Roles     []string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether role is among the token's roles.
func (r *AuthResult) HasRole(role string) bool {
	if r == nil {
		return false
	}
	for _, have := range r.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// RegisterRequest is the input of [Engine.Register].
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// RateLimitDecision is the outcome of [Engine.RateLimit].
type RateLimitDecision struct {
	Allowed      bool
	Limit        int
	Remaining    int
	ResetSeconds int
	Degraded     bool
}

// RateLimitBucket selects one of the configured request buckets.
type RateLimitBucket string

const (
	BucketLogin   RateLimitBucket = "login"
	BucketRefresh RateLimitBucket = "refresh"
	BucketGlobal  RateLimitBucket = "global"
)
