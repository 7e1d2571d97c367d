package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edusystems/school_management/internal/hash"
	"github.com/edusystems/school_management/internal/logging"
	"github.com/edusystems/school_management/internal/metrics"
	authmw "github.com/edusystems/school_management/internal/middleware/auth"
	"github.com/edusystems/school_management/internal/models"
	"github.com/edusystems/school_management/internal/mykafka"
	"github.com/edusystems/school_management/internal/store"
	"github.com/edusystems/school_management/internal/token"
)

const eventsTopic = "auth_events"

type AuthHandler struct {
	Store    *store.CredentialStore
	Tokens   *token.Service
	Producer *mykafka.Producer
}

func (h *AuthHandler) publish(c echo.Context, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, eventsTopic, fmt.Sprint(event["principal_id"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Warn("kafka_publish_failed", "error", err)
	}
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	cred, err := h.Store.FindByPhone(ctx, req.Phone)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.Error("login_failed", "status", 500, "reason", "db_error", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		l.Warn("login_failed", "status", 401, "reason", "unknown_phone")
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid phone or password")
	}

	if !cred.Active() {
		l.Warn("login_failed", "status", 401, "reason", "credential_disabled", "principal_id", cred.ID)
		metrics.LoginsTotal.WithLabelValues("disabled").Inc()
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid phone or password")
	}

	// Lockout wins over password correctness, and is the one failure
	// allowed a distinct message since it is not secret-dependent.
	if cred.Locked(time.Now()) {
		l.Warn("login_failed", "status", 423, "reason", "account_locked", "principal_id", cred.ID)
		metrics.LoginsTotal.WithLabelValues("locked").Inc()
		return echo.NewHTTPError(http.StatusLocked, "account temporarily locked")
	}

	if !hash.CheckPassword(cred.PasswordHash, req.Password) {
		if err := h.Store.RecordLoginFailure(ctx, cred.ID); err != nil {
			l.Error("login_failed", "status", 500, "reason", "db_error", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		if after, err := h.Store.FindByID(ctx, cred.ID); err == nil && after.Locked(time.Now()) {
			metrics.LockoutsTotal.Inc()
			h.publish(c, map[string]interface{}{
				"type":         "account_locked",
				"principal_id": cred.ID,
				"locked_until": after.AccountLockedUntil,
			})
		}
		l.Warn("login_failed", "status", 401, "reason", "invalid_password", "principal_id", cred.ID)
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid phone or password")
	}

	if err := h.Store.RecordLoginSuccess(ctx, cred.ID); err != nil {
		l.Error("login_failed", "status", 500, "reason", "db_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	accessToken, refreshToken, err := h.issuePair(cred)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create token")
	}

	c.SetCookie(CreateCookie(AccessCookieName, accessToken, "/", time.Now().Add(h.Tokens.AccessTTL)))
	c.SetCookie(CreateCookie(RefreshCookieName, refreshToken, "/", time.Now().Add(h.Tokens.RefreshTTL)))

	h.publish(c, map[string]interface{}{
		"type":         "login_succeeded",
		"principal_id": cred.ID,
		"role":         cred.Role,
	})

	l.Info("login_successful", "principal_id", cred.ID, "role", cred.Role)
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"role":          cred.Role,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	raw := ""
	if cookie, err := c.Cookie(RefreshCookieName); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.Bind(&req); err == nil {
			raw = req.RefreshToken
		}
	}
	if raw == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	claims, err := h.Tokens.VerifyRefreshToken(raw)
	if err != nil {
		l.Warn("refresh_failed", "reason", err.Error())
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	id, err := claims.PrincipalID()
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cred, err := h.Store.FindByID(ctx, id)
	if err != nil || !cred.Active() {
		l.Warn("refresh_failed", "reason", "credential_unavailable", "principal_id", id)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if claims.TokenVersion != cred.TokenVersion {
		l.Warn("refresh_failed", "reason", "token_revoked", "principal_id", id)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	accessToken, refreshToken, err := h.issuePair(cred)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "reason", "cannot create token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create token")
	}

	c.SetCookie(CreateCookie(AccessCookieName, accessToken, "/", time.Now().Add(h.Tokens.AccessTTL)))
	c.SetCookie(CreateCookie(RefreshCookieName, refreshToken, "/", time.Now().Add(h.Tokens.RefreshTTL)))

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

// LogOut clears every auth cookie and acks. It deliberately does not bump
// the token version: single-session logout is cookie-only, and the short
// access TTL bounds residual validity. Invalidate-everywhere is a separate
// administrative action.
func (h *AuthHandler) LogOut(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth_logout")

	clearAuthCookies(c)
	l.Info("successful_logout")
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logged out",
	})
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_change_password")

	ident, ok := authmw.CurrentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.NewPassword == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "new password required")
	}

	cred, err := h.Store.FindByID(ctx, ident.ID)
	if err != nil {
		l.Error("change_password_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if !hash.CheckPassword(cred.PasswordHash, req.CurrentPassword) {
		l.Warn("change_password_failed", "status", 401, "reason", "wrong_current_password", "principal_id", cred.ID)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid password")
	}

	newHash, err := hash.HashPassword(req.NewPassword)
	if err != nil {
		l.Error("change_password_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	// ChangePassword bumps the token version, so the caller's own token
	// (and every other outstanding one) is dead after this returns.
	if err := h.Store.ChangePassword(ctx, cred.ID, newHash); err != nil {
		l.Error("change_password_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	clearAuthCookies(c)
	h.publish(c, map[string]interface{}{
		"type":         "password_changed",
		"principal_id": cred.ID,
	})

	l.Info("password_changed", "principal_id", cred.ID)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "password changed, please log in again",
	})
}

// Register creates a credential. Admin-gated in the router: principals are
// provisioned administratively, never self-service.
func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
		Role     string `json:"role"`
		BranchID uint   `json:"branch_id"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Phone == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phone and password required")
	}

	if _, err := h.Store.FindByPhone(ctx, req.Phone); err == nil {
		l.Warn("register_failed", "status", 409, "reason", "phone_exists")
		return echo.NewHTTPError(http.StatusConflict, "credential already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	cred := models.Credential{
		Phone:              req.Phone,
		PasswordHash:       pwHash,
		Role:               role,
		BranchID:           req.BranchID,
		Status:             models.StatusActive,
		LastPasswordChange: time.Now(),
	}
	if err := h.Store.Create(ctx, &cred); err != nil {
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, map[string]interface{}{
		"type":         "credential_created",
		"principal_id": cred.ID,
		"role":         cred.Role,
	})

	l.Info("register_success", "status", 201, "principal_id", cred.ID)
	return c.JSON(http.StatusCreated, cred)
}

// InvalidateSessions bumps token versions for one principal, a whole role,
// or everyone. Admin-gated in the router.
func (h *AuthHandler) InvalidateSessions(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_invalidate_sessions")

	var req struct {
		Scope       string `json:"scope"`
		PrincipalID uint   `json:"principal_id"`
		Role        string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	switch req.Scope {
	case "principal":
		if req.PrincipalID == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "principal_id required")
		}
		if err := h.Store.BumpTokenVersion(ctx, req.PrincipalID); err != nil {
			l.Error("invalidate_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	case "role":
		role, err := models.ParseRole(req.Role)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err := h.Store.BumpTokenVersionForRole(ctx, role); err != nil {
			l.Error("invalidate_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	case "all":
		if err := h.Store.BumpAllTokenVersions(ctx); err != nil {
			l.Error("invalidate_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "scope must be principal, role or all")
	}

	metrics.SessionInvalidationsTotal.WithLabelValues(req.Scope).Inc()
	h.publish(c, map[string]interface{}{
		"type":         "sessions_invalidated",
		"scope":        req.Scope,
		"principal_id": req.PrincipalID,
		"role":         req.Role,
	})

	l.Info("sessions_invalidated", "scope", req.Scope)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "sessions invalidated",
	})
}

func (h *AuthHandler) issuePair(cred *models.Credential) (string, string, error) {
	accessToken, err := h.Tokens.IssueAccessToken(cred)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := h.Tokens.IssueRefreshToken(cred)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}
