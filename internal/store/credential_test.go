package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edusystems/school_management/internal/models"
)

func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Credential{}, &models.MealPlan{}, &models.MealPlanApproval{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func seedCredential(t *testing.T, db *gorm.DB, phone string, role models.Role) *models.Credential {
	t.Helper()
	cred := &models.Credential{
		Phone:        phone,
		PasswordHash: "x",
		Role:         role,
		Status:       models.StatusActive,
	}
	require.NoError(t, db.Create(cred).Error)
	return cred
}

func TestLockoutAfterThreshold(t *testing.T) {
	db := initTestDB(t)
	s := NewCredentialStore(db)
	s.MaxFailedAttempts = 3
	ctx := context.Background()

	cred := seedCredential(t, db, "+77010000001", models.RoleTeacher)

	require.NoError(t, s.RecordLoginFailure(ctx, cred.ID))
	require.NoError(t, s.RecordLoginFailure(ctx, cred.ID))

	got, err := s.FindByID(ctx, cred.ID)
	require.NoError(t, err)
	require.Equal(t, uint(2), got.FailedLoginAttempts)
	require.False(t, got.Locked(time.Now()))

	require.NoError(t, s.RecordLoginFailure(ctx, cred.ID))

	got, err = s.FindByID(ctx, cred.ID)
	require.NoError(t, err)
	require.Equal(t, uint(3), got.FailedLoginAttempts)
	require.True(t, got.Locked(time.Now()))
	require.True(t, got.AccountLockedUntil.After(time.Now()))
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	db := initTestDB(t)
	s := NewCredentialStore(db)
	ctx := context.Background()

	cred := seedCredential(t, db, "+77010000002", models.RoleStudent)
	require.NoError(t, s.RecordLoginFailure(ctx, cred.ID))
	require.NoError(t, s.RecordLoginFailure(ctx, cred.ID))

	require.NoError(t, s.RecordLoginSuccess(ctx, cred.ID))

	got, err := s.FindByID(ctx, cred.ID)
	require.NoError(t, err)
	require.Equal(t, uint(0), got.FailedLoginAttempts)
	require.Nil(t, got.AccountLockedUntil)
}

func TestBumpTokenVersion(t *testing.T) {
	db := initTestDB(t)
	s := NewCredentialStore(db)
	ctx := context.Background()

	teacher := seedCredential(t, db, "+77010000003", models.RoleTeacher)
	student := seedCredential(t, db, "+77010000004", models.RoleStudent)

	require.NoError(t, s.BumpTokenVersion(ctx, teacher.ID))

	got, err := s.FindByID(ctx, teacher.ID)
	require.NoError(t, err)
	require.Equal(t, uint(1), got.TokenVersion)

	got, err = s.FindByID(ctx, student.ID)
	require.NoError(t, err)
	require.Equal(t, uint(0), got.TokenVersion)

	require.NoError(t, s.BumpTokenVersionForRole(ctx, models.RoleStudent))
	got, err = s.FindByID(ctx, student.ID)
	require.NoError(t, err)
	require.Equal(t, uint(1), got.TokenVersion)

	require.NoError(t, s.BumpAllTokenVersions(ctx))
	got, err = s.FindByID(ctx, teacher.ID)
	require.NoError(t, err)
	require.Equal(t, uint(2), got.TokenVersion)
}

func TestChangePassword(t *testing.T) {
	db := initTestDB(t)
	s := NewCredentialStore(db)
	s.MaxFailedAttempts = 1
	ctx := context.Background()

	cred := seedCredential(t, db, "+77010000005", models.RoleParent)
	require.NoError(t, s.RecordLoginFailure(ctx, cred.ID))

	before := time.Now()
	require.NoError(t, s.ChangePassword(ctx, cred.ID, "new-hash"))

	got, err := s.FindByID(ctx, cred.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)
	require.Equal(t, uint(0), got.FailedLoginAttempts)
	require.Nil(t, got.AccountLockedUntil)
	require.Equal(t, uint(1), got.TokenVersion, "password change must invalidate old tokens")
	require.False(t, got.LastPasswordChange.Before(before.Add(-time.Second)))

	require.ErrorIs(t, s.ChangePassword(ctx, 9999, "x"), ErrNotFound)
}

func TestFindByPhone(t *testing.T) {
	db := initTestDB(t)
	s := NewCredentialStore(db)
	ctx := context.Background()

	seedCredential(t, db, "+77010000006", models.RoleDoctor)

	got, err := s.FindByPhone(ctx, "+77010000006")
	require.NoError(t, err)
	require.Equal(t, models.RoleDoctor, got.Role)

	_, err = s.FindByPhone(ctx, "+70000000000")
	require.ErrorIs(t, err, ErrNotFound)
}
