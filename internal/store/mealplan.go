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
	ErrAlreadyDecided    = errors.New("store: meal plan already decided")
	ErrDuplicateDecision = errors.New("store: approver role already voted")
)

// RequiredApprovers are the roles that must all approve a meal plan before
// it leaves the pending state on its own.
var RequiredApprovers = []models.Role{models.RoleDirector, models.RoleDoctor, models.RoleHR}

type MealPlanStore struct {
	DB *gorm.DB
}

func NewMealPlanStore(db *gorm.DB) *MealPlanStore {
	return &MealPlanStore{DB: db}
}

func (s *MealPlanStore) Create(ctx context.Context, plan *models.MealPlan) error {
	plan.Status = models.MealPlanPending
	if err := s.DB.WithContext(ctx).Create(plan).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *MealPlanStore) FindByID(ctx context.Context, id uint) (*models.MealPlan, error) {
	var plan models.MealPlan
	if err := s.DB.WithContext(ctx).First(&plan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &plan, nil
}

func (s *MealPlanStore) List(ctx context.Context, branchID uint, status string, offset, limit int) (int64, []models.MealPlan, error) {
	q := s.DB.WithContext(ctx).Model(&models.MealPlan{})
	if branchID != 0 {
		q = q.Where("branch_id = ?", branchID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, fmt.Errorf("db error: %w", err)
	}

	var plans []models.MealPlan
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&plans).Error; err != nil {
		return 0, nil, fmt.Errorf("db error: %w", err)
	}
	return total, plans, nil
}

// Decide records one approver's decision and advances the plan status:
// any rejection rejects the plan, approval by every required role approves
// it, anything else leaves it pending.
func (s *MealPlanStore) Decide(ctx context.Context, planID, approverID uint, role models.Role, approved bool, comment string) (*models.MealPlan, error) {
	var plan models.MealPlan
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&plan, planID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if plan.Status != models.MealPlanPending {
			return ErrAlreadyDecided
		}

		var existing int64
		if err := tx.Model(&models.MealPlanApproval{}).
			Where("meal_plan_id = ? AND role = ?", planID, role).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateDecision
		}

		approval := models.MealPlanApproval{
			MealPlanID: planID,
			ApproverID: approverID,
			Role:       role,
			Approved:   approved,
			Comment:    comment,
		}
		if err := tx.Create(&approval).Error; err != nil {
			return err
		}

		if !approved {
			plan.Status = models.MealPlanRejected
			return tx.Model(&plan).Update("status", models.MealPlanRejected).Error
		}

		var roles []models.Role
		if err := tx.Model(&models.MealPlanApproval{}).
			Where("meal_plan_id = ? AND approved = ?", planID, true).
			Distinct().Pluck("role", &roles).Error; err != nil {
			return err
		}
		have := make(map[models.Role]bool, len(roles))
		for _, r := range roles {
			have[r] = true
		}
		for _, required := range RequiredApprovers {
			if !have[required] {
				return nil // still pending
			}
		}
		plan.Status = models.MealPlanApproved
		return tx.Model(&plan).Update("status", models.MealPlanApproved).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyDecided), errors.Is(err, ErrDuplicateDecision):
			return nil, err
		default:
			return nil, fmt.Errorf("db error: %w", err)
		}
	}
	return &plan, nil
}

// AutoApproveStale flips pending plans older than the threshold to approved
// in a single batch UPDATE. Driven by the periodic job in cmd/server.
func (s *MealPlanStore) AutoApproveStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := s.DB.WithContext(ctx).Model(&models.MealPlan{}).
		Where("status = ? AND created_at <= ?", models.MealPlanPending, cutoff).
		Updates(map[string]any{
			"status":        models.MealPlanApproved,
			"auto_approved": true,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("db error: %w", res.Error)
	}
	return res.RowsAffected, nil
}
