package mealplan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edusystems/school_management/internal/logging"
	authmw "github.com/edusystems/school_management/internal/middleware/auth"
	"github.com/edusystems/school_management/internal/models"
	"github.com/edusystems/school_management/internal/mykafka"
	"github.com/edusystems/school_management/internal/store"
)

const eventsTopic = "mealplan_events"

type MealPlanHandler struct {
	Store    *store.MealPlanStore
	Producer *mykafka.Producer
}

func (h *MealPlanHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, eventsTopic, fmt.Sprint(event["meal_plan_id"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Warn("kafka_publish_failed", "error", err)
	}
}

func (h *MealPlanHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		BranchID  uint      `json:"branch_id"`
		WeekStart time.Time `json:"week_start"`
		Menu      string    `json:"menu"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.BranchID == 0 || req.Menu == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "branch_id and menu required")
	}

	plan := models.MealPlan{
		BranchID:  req.BranchID,
		WeekStart: req.WeekStart,
		Menu:      req.Menu,
	}
	if err := h.Store.Create(ctx, &plan); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, map[string]any{
		"type":         "mealplan_created",
		"meal_plan_id": plan.ID,
		"branch_id":    plan.BranchID,
	})
	return c.JSON(http.StatusCreated, plan)
}

func (h *MealPlanHandler) Get(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	plan, err := h.Store.FindByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "meal plan not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, plan)
}

func (h *MealPlanHandler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 10
	}
	branchID, _ := strconv.Atoi(c.QueryParam("branch_id"))

	total, plans, err := h.Store.List(c.Request().Context(), uint(branchID), c.QueryParam("status"), (page-1)*size, size)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data": plans,
		"meta": map[string]any{
			"page":  page,
			"size":  size,
			"total": total,
		},
	})
}

// Decide records one approver's verdict. Gated in the router to the
// approver roles; the identity's role is what gets recorded, so an
// approver cannot vote on another role's behalf.
func (h *MealPlanHandler) Decide(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "mealplan_decide")

	ident, ok := authmw.CurrentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Approved bool   `json:"approved"`
		Comment  string `json:"comment"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	plan, err := h.Store.Decide(ctx, uint(id), ident.ID, ident.Role, req.Approved, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "meal plan not found")
		case errors.Is(err, store.ErrAlreadyDecided):
			return echo.NewHTTPError(http.StatusConflict, "meal plan already decided")
		case errors.Is(err, store.ErrDuplicateDecision):
			return echo.NewHTTPError(http.StatusConflict, "role already voted")
		default:
			l.Error("decide_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	h.publish(c, map[string]any{
		"type":         "mealplan_decision",
		"meal_plan_id": plan.ID,
		"approver_id":  ident.ID,
		"role":         ident.Role,
		"approved":     req.Approved,
		"status":       plan.Status,
	})

	l.Info("mealplan_decision", "meal_plan_id", plan.ID, "status", plan.Status)
	return c.JSON(http.StatusOK, plan)
}
