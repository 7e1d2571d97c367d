package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auth counters sit on the request hot path, so everything here is a plain
// pre-registered counter vec.
var (
	LoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	TokenVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_verifications_total",
		Help: "Access token verifications by outcome.",
	}, []string{"outcome"})

	LockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Credentials locked out after repeated failures.",
	})

	SessionInvalidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_session_invalidations_total",
		Help: "Bulk token-version bumps by scope.",
	}, []string{"scope"})

	MealPlanAutoApprovalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mealplan_auto_approvals_total",
		Help: "Meal plans auto-approved by the periodic job.",
	})
)

func init() {
	prometheus.MustRegister(
		LoginsTotal,
		TokenVerificationsTotal,
		LockoutsTotal,
		SessionInvalidationsTotal,
		MealPlanAutoApprovalsTotal,
	)
}
