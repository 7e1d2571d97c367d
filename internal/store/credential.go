package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/edusystems/school_management/internal/models"
)

var (
	ErrNotFound = errors.New("store: not found")
)

const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

// CredentialStore owns all lockout and token-version bookkeeping. Counters
// are bumped with single UPDATE statements so concurrent logins and
// invalidations never lose updates to read-modify-write races.
type CredentialStore struct {
	DB                *gorm.DB
	MaxFailedAttempts uint
	LockoutDuration   time.Duration
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{
		DB:                db,
		MaxFailedAttempts: DefaultMaxFailedAttempts,
		LockoutDuration:   DefaultLockoutDuration,
	}
}

func (s *CredentialStore) FindByID(ctx context.Context, id uint) (*models.Credential, error) {
	var cred models.Credential
	if err := s.DB.WithContext(ctx).First(&cred, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &cred, nil
}

func (s *CredentialStore) FindByPhone(ctx context.Context, phone string) (*models.Credential, error) {
	var cred models.Credential
	if err := s.DB.WithContext(ctx).Where("phone = ?", phone).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &cred, nil
}

func (s *CredentialStore) Create(ctx context.Context, cred *models.Credential) error {
	if err := s.DB.WithContext(ctx).Create(cred).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RecordLoginFailure increments the failure counter and arms the lockout
// window once the threshold is crossed. Both happen in one conditional
// UPDATE so concurrent brute-force attempts serialize on the row.
func (s *CredentialStore) RecordLoginFailure(ctx context.Context, id uint) error {
	lockedUntil := time.Now().Add(s.LockoutDuration)
	err := s.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
			"account_locked_until": gorm.Expr(
				"CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE account_locked_until END",
				s.MaxFailedAttempts, lockedUntil,
			),
		}).Error
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *CredentialStore) RecordLoginSuccess(ctx context.Context, id uint) error {
	err := s.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failed_login_attempts": 0,
			"account_locked_until":  nil,
		}).Error
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// BumpTokenVersion invalidates every token issued to the principal so far.
func (s *CredentialStore) BumpTokenVersion(ctx context.Context, id uint) error {
	return s.bumpVersion(ctx, s.DB.WithContext(ctx).Model(&models.Credential{}).Where("id = ?", id))
}

func (s *CredentialStore) BumpTokenVersionForRole(ctx context.Context, role models.Role) error {
	return s.bumpVersion(ctx, s.DB.WithContext(ctx).Model(&models.Credential{}).Where("role = ?", role))
}

func (s *CredentialStore) BumpAllTokenVersions(ctx context.Context) error {
	return s.bumpVersion(ctx, s.DB.WithContext(ctx).Model(&models.Credential{}).Where("1 = 1"))
}

func (s *CredentialStore) bumpVersion(_ context.Context, tx *gorm.DB) error {
	if err := tx.Update("token_version", gorm.Expr("token_version + 1")).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ChangePassword swaps the hash, clears the lockout state and bumps the
// token version in one transaction, so every previously issued token dies
// with the old password.
func (s *CredentialStore) ChangePassword(ctx context.Context, id uint, newHash string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Credential{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"password_hash":         newHash,
				"failed_login_attempts": 0,
				"account_locked_until":  nil,
				"last_password_change":  time.Now(),
				"token_version":         gorm.Expr("token_version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
