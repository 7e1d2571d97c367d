package models

import (
	"time"
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Credential is the single login record shared by every principal kind.
// Role is the discriminant; lockout and token-version bookkeeping live
// here once instead of being duplicated per principal table.
type Credential struct {
	ID                  uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Phone               string     `gorm:"unique;not null"          json:"phone"`
	PasswordHash        string     `gorm:"not null"                 json:"-"`
	Role                Role       `gorm:"not null;index"           json:"role"`
	BranchID            uint       `gorm:"index"                    json:"branch_id"`
	Status              string     `gorm:"not null;default:active"  json:"status"`
	TokenVersion        uint       `gorm:"not null;default:0"       json:"-"`
	FailedLoginAttempts uint       `gorm:"not null;default:0"       json:"-"`
	AccountLockedUntil  *time.Time `json:"-"`
	LastPasswordChange  time.Time  `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Locked reports whether the credential is inside a lockout window.
func (c *Credential) Locked(now time.Time) bool {
	return c.AccountLockedUntil != nil && c.AccountLockedUntil.After(now)
}

func (c *Credential) Active() bool {
	return c.Status == StatusActive
}

type Announcement struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"not null"                 json:"title"`
	Body      string    `gorm:"not null"                 json:"body"`
	BranchID  uint      `gorm:"index"                    json:"branch_id"`
	Audience  Role      `gorm:"not null"                 json:"audience"`
	AuthorID  uint      `gorm:"not null"                 json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	MealPlanPending  = "pending"
	MealPlanApproved = "approved"
	MealPlanRejected = "rejected"
)

type MealPlan struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	BranchID     uint      `gorm:"index;not null"           json:"branch_id"`
	WeekStart    time.Time `gorm:"not null"                 json:"week_start"`
	Menu         string    `gorm:"not null"                 json:"menu"`
	Status       string    `gorm:"not null;default:pending;index" json:"status"`
	AutoApproved bool      `gorm:"default:false"            json:"auto_approved"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type MealPlanApproval struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	MealPlanID uint      `gorm:"index;not null"           json:"meal_plan_id"`
	ApproverID uint      `gorm:"not null"                 json:"approver_id"`
	Role       Role      `gorm:"not null"                 json:"role"`
	Approved   bool      `gorm:"not null"                 json:"approved"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}
