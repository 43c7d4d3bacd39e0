// Package gormstore implements [lovelace.UserProvider] on GORM. PostgreSQL is used in
// production and SQLite (pure Go driver) for local runs and tests.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aloneinabyss/lovelace"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to dsn. postgres:// and postgresql:// URLs use the PostgreSQL driver; anything
// else is treated as a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// Store is a [lovelace.UserProvider] backed by a gorm connection.
type Store struct {
	db *gorm.DB
}

// New wraps db. Call [Store.Migrate] once before first use.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the users table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&userModel{})
}

// GetUserByID returns the account with id or [lovelace.ErrUserNotFound].
func (s *Store) GetUserByID(ctx context.Context, id string) (lovelace.UserRecord, error) {
	return s.first(ctx, "id = ?", id)
}

// GetUserByUsername matches username exactly.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (lovelace.UserRecord, error) {
	return s.first(ctx, "username = ?", username)
}

// GetUserByEmail lowercases email before matching.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (lovelace.UserRecord, error) {
	return s.first(ctx, "email = ?", strings.ToLower(email))
}

// GetUserByVerificationToken looks up an account by the digest of its pending verification token.
func (s *Store) GetUserByVerificationToken(ctx context.Context, tokenHash string) (lovelace.UserRecord, error) {
	if tokenHash == "" {
		return lovelace.UserRecord{}, lovelace.ErrUserNotFound
	}
	return s.first(ctx, "verification_token_hash = ?", tokenHash)
}

// GetUserByResetToken looks up an account by the digest of its pending reset token.
func (s *Store) GetUserByResetToken(ctx context.Context, tokenHash string) (lovelace.UserRecord, error) {
	if tokenHash == "" {
		return lovelace.UserRecord{}, lovelace.ErrUserNotFound
	}
	return s.first(ctx, "reset_token_hash = ?", tokenHash)
}

// CreateUser inserts user, failing with [lovelace.ErrUserExists] when a unique field is taken.
func (s *Store) CreateUser(ctx context.Context, user lovelace.UserRecord) (lovelace.UserRecord, error) {
	m := toModel(user)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return lovelace.UserRecord{}, translate(err)
	}
	return m.record(), nil
}

// SaveUser overwrites every column of the row identified by user.ID.
func (s *Store) SaveUser(ctx context.Context, user lovelace.UserRecord) error {
	m := toModel(user)
	res := s.db.WithContext(ctx).
		Model(&userModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(&m)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return lovelace.ErrUserNotFound
	}
	return nil
}

func (s *Store) first(ctx context.Context, query string, arg any) (lovelace.UserRecord, error) {
	var m userModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&m).Error; err != nil {
		return lovelace.UserRecord{}, translate(err)
	}
	return m.record(), nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return lovelace.ErrUserNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return fmt.Errorf("%w: %w", lovelace.ErrUserExists, err)
	default:
		return err
	}
}

// isUniqueViolation catches drivers that do not implement error translation.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}
