package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	announcementh "github.com/edusystems/school_management/internal/handlers/announcement"
	authh "github.com/edusystems/school_management/internal/handlers/auth"
	mealplanh "github.com/edusystems/school_management/internal/handlers/mealplan"
	authmw "github.com/edusystems/school_management/internal/middleware/auth"
	"github.com/edusystems/school_management/internal/middleware/csrf"
	"github.com/edusystems/school_management/internal/middleware/ratelimit"
	"github.com/edusystems/school_management/internal/models"
)

type Deps struct {
	DB                  *gorm.DB
	AuthHandler         *authh.AuthHandler
	AnnouncementHandler *announcementh.AnnouncementHandler
	MealPlanHandler     *mealplanh.MealPlanHandler
	Auth                *authmw.Middleware
	LoginLimiter        *ratelimit.Limiter
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error {
		if sqlDB, err := d.DB.DB(); err != nil || sqlDB.Ping() != nil {
			return c.NoContent(503)
		}
		return c.NoContent(200)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1", csrf.Middleware(csrf.Config{
		SkipPaths: []string{"/api/v1/login", "/api/v1/refresh", "/api/v1/logout"},
	}))

	v1.POST("/login", d.AuthHandler.Login, d.LoginLimiter.Middleware())
	v1.POST("/refresh", d.AuthHandler.Refresh)
	v1.POST("/logout", d.AuthHandler.LogOut)

	authed := v1.Group("", d.Auth.Authenticate, authmw.RouteAccess(authmw.DefaultRouteAccess))

	authed.POST("/account/password", d.AuthHandler.ChangePassword)

	admin := authed.Group("/admin", authmw.Authorize(models.RoleAdmin))

	admin.POST("/credentials", d.AuthHandler.Register)
	admin.POST("/sessions/invalidate", d.AuthHandler.InvalidateSessions)

	announcements := authed.Group("/announcements")

	announcements.GET("", d.AnnouncementHandler.List)
	announcements.GET("/search", d.AnnouncementHandler.Search)
	announcements.GET("/:id", d.AnnouncementHandler.Get)
	announcements.POST("", d.AnnouncementHandler.Create, authmw.Authorize(models.RoleAdmin, models.RoleDirector, models.RoleHR))
	announcements.PATCH("/:id", d.AnnouncementHandler.Patch, authmw.Authorize(models.RoleAdmin, models.RoleDirector, models.RoleHR))
	announcements.DELETE("/:id", d.AnnouncementHandler.Delete, authmw.Authorize(models.RoleAdmin, models.RoleDirector, models.RoleHR))

	mealplans := authed.Group("/mealplans")

	mealplans.GET("", d.MealPlanHandler.List)
	mealplans.GET("/:id", d.MealPlanHandler.Get)
	mealplans.POST("", d.MealPlanHandler.Create, authmw.Authorize(models.RoleAdmin, models.RoleStaff))
	mealplans.POST("/:id/decision", d.MealPlanHandler.Decide, authmw.Authorize(models.RoleDirector, models.RoleDoctor, models.RoleHR))
}
