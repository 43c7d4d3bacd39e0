package gormstore

import (
	"strings"
	"time"

	"github.com/aloneinabyss/lovelace"
)

type userModel struct {
	ID                string `gorm:"primaryKey;size:36"`
	Username          string `gorm:"uniqueIndex;size:64;not null"`
	Email             string `gorm:"uniqueIndex;size:320;not null"`
	PasswordHash      string `gorm:"not null"`
	EmailVerified     bool   `gorm:"not null;default:false"`
	Enabled           bool   `gorm:"not null;default:false"`
	Roles             string `gorm:"size:512;not null"`
	PasswordChangedAt time.Time

	VerificationTokenHash      string `gorm:"index;size:64"`
	VerificationTokenCreatedAt time.Time
	VerificationTokenExpiresAt time.Time

	ResetTokenHash      string `gorm:"index;size:64"`
	ResetTokenCreatedAt time.Time
	ResetTokenExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userModel) TableName() string { return "users" }

// Roles are stored as a comma separated column; role names never contain commas.
const roleSeparator = ","

func toModel(u lovelace.UserRecord) userModel {
	return userModel{
		ID:                         u.ID,
		Username:                   u.Username,
		Email:                      strings.ToLower(u.Email),
		PasswordHash:               u.PasswordHash,
		EmailVerified:              u.EmailVerified,
		Enabled:                    u.Enabled,
		Roles:                      strings.Join(u.Roles, roleSeparator),
		PasswordChangedAt:          u.PasswordChangedAt.UTC(),
		VerificationTokenHash:      u.VerificationTokenHash,
		VerificationTokenCreatedAt: u.VerificationTokenCreatedAt.UTC(),
		VerificationTokenExpiresAt: u.VerificationTokenExpiresAt.UTC(),
		ResetTokenHash:             u.ResetTokenHash,
		ResetTokenCreatedAt:        u.ResetTokenCreatedAt.UTC(),
		ResetTokenExpiresAt:        u.ResetTokenExpiresAt.UTC(),
		CreatedAt:                  u.CreatedAt.UTC(),
		UpdatedAt:                  u.UpdatedAt.UTC(),
	}
}

func (m userModel) record() lovelace.UserRecord {
	var roles []string
	if m.Roles != "" {
		roles = strings.Split(m.Roles, roleSeparator)
	}
	return lovelace.UserRecord{
		ID:                         m.ID,
		Username:                   m.Username,
		Email:                      m.Email,
		PasswordHash:               m.PasswordHash,
		EmailVerified:              m.EmailVerified,
		Enabled:                    m.Enabled,
		Roles:                      roles,
		PasswordChangedAt:          m.PasswordChangedAt.UTC(),
		VerificationTokenHash:      m.VerificationTokenHash,
		VerificationTokenCreatedAt: m.VerificationTokenCreatedAt.UTC(),
		VerificationTokenExpiresAt: m.VerificationTokenExpiresAt.UTC(),
		ResetTokenHash:             m.ResetTokenHash,
		ResetTokenCreatedAt:        m.ResetTokenCreatedAt.UTC(),
		ResetTokenExpiresAt:        m.ResetTokenExpiresAt.UTC(),
		CreatedAt:                  m.CreatedAt.UTC(),
		UpdatedAt:                  m.UpdatedAt.UTC(),
	}
}
