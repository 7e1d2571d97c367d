package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edusystems/school_management/internal/models"
)

func seedMealPlan(t *testing.T, s *MealPlanStore) *models.MealPlan {
	t.Helper()
	plan := &models.MealPlan{
		BranchID:  1,
		WeekStart: time.Now().Truncate(24 * time.Hour),
		Menu:      `{"monday":"soup"}`,
	}
	require.NoError(t, s.Create(context.Background(), plan))
	return plan
}

func TestMealPlanApprovedByAllRequiredRoles(t *testing.T) {
	s := NewMealPlanStore(initTestDB(t))
	ctx := context.Background()
	plan := seedMealPlan(t, s)

	got, err := s.Decide(ctx, plan.ID, 10, models.RoleDirector, true, "")
	require.NoError(t, err)
	require.Equal(t, models.MealPlanPending, got.Status)

	got, err = s.Decide(ctx, plan.ID, 11, models.RoleDoctor, true, "")
	require.NoError(t, err)
	require.Equal(t, models.MealPlanPending, got.Status)

	got, err = s.Decide(ctx, plan.ID, 12, models.RoleHR, true, "ok")
	require.NoError(t, err)
	require.Equal(t, models.MealPlanApproved, got.Status)
	require.False(t, got.AutoApproved)
}

func TestMealPlanRejectedByAnyRole(t *testing.T) {
	s := NewMealPlanStore(initTestDB(t))
	ctx := context.Background()
	plan := seedMealPlan(t, s)

	_, err := s.Decide(ctx, plan.ID, 10, models.RoleDirector, true, "")
	require.NoError(t, err)

	got, err := s.Decide(ctx, plan.ID, 11, models.RoleDoctor, false, "menu unbalanced")
	require.NoError(t, err)
	require.Equal(t, models.MealPlanRejected, got.Status)

	// Decided plans take no further votes.
	_, err = s.Decide(ctx, plan.ID, 12, models.RoleHR, true, "")
	require.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestMealPlanDuplicateRoleVote(t *testing.T) {
	s := NewMealPlanStore(initTestDB(t))
	ctx := context.Background()
	plan := seedMealPlan(t, s)

	_, err := s.Decide(ctx, plan.ID, 10, models.RoleDirector, true, "")
	require.NoError(t, err)

	_, err = s.Decide(ctx, plan.ID, 20, models.RoleDirector, true, "")
	require.ErrorIs(t, err, ErrDuplicateDecision)
}

func TestAutoApproveStale(t *testing.T) {
	db := initTestDB(t)
	s := NewMealPlanStore(db)
	ctx := context.Background()

	stale := seedMealPlan(t, s)
	fresh := seedMealPlan(t, s)

	// Age the first plan past the auto-approval threshold.
	old := time.Now().Add(-73 * time.Hour)
	require.NoError(t, db.Model(&models.MealPlan{}).
		Where("id = ?", stale.ID).
		Update("created_at", old).Error)

	n, err := s.AutoApproveStale(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := s.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, models.MealPlanApproved, got.Status)
	require.True(t, got.AutoApproved)

	got, err = s.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, models.MealPlanPending, got.Status)
}
