package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/edusystems/school_management/internal/logging"
	"github.com/edusystems/school_management/internal/metrics"
	"github.com/edusystems/school_management/internal/store"
	"github.com/edusystems/school_management/internal/token"
)

// AccessCookieName carries the access token for browser clients; API
// clients use the Authorization header instead.
const AccessCookieName = "auth_token"

type Middleware struct {
	Tokens *token.Service
	Store  *store.CredentialStore
}

// Authenticate verifies the access token, checks the embedded tokenVersion
// against the live credential and attaches the caller's Identity. Every
// token-level failure collapses to the same 401 so callers learn nothing
// about why they were refused.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("middleware", "authenticate")

		raw := extractToken(c)
		if raw == "" {
			metrics.TokenVerificationsTotal.WithLabelValues("missing").Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}

		claims, err := m.Tokens.VerifyAccessToken(raw)
		if err != nil {
			l.Warn("token_rejected", "reason", err.Error())
			metrics.TokenVerificationsTotal.WithLabelValues("invalid").Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}

		id, err := claims.PrincipalID()
		if err != nil {
			metrics.TokenVerificationsTotal.WithLabelValues("invalid").Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}

		cred, err := m.Store.FindByID(ctx, id)
		if err != nil {
			l.Warn("token_rejected", "reason", "credential_not_found", "principal_id", id)
			metrics.TokenVerificationsTotal.WithLabelValues("unknown_principal").Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		if !cred.Active() {
			l.Warn("token_rejected", "reason", "credential_disabled", "principal_id", id)
			metrics.TokenVerificationsTotal.WithLabelValues("disabled").Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}

		// The sole revocation mechanism: a stale version means the token
		// was issued before a password change or an explicit invalidation.
		if claims.TokenVersion != cred.TokenVersion {
			l.Warn("token_rejected", "reason", "token_revoked", "principal_id", id)
			metrics.TokenVerificationsTotal.WithLabelValues("revoked").Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}

		metrics.TokenVerificationsTotal.WithLabelValues("ok").Inc()
		setIdentity(c, Identity{
			ID:           cred.ID,
			Role:         cred.Role,
			BranchID:     cred.BranchID,
			TokenVersion: cred.TokenVersion,
		})
		return next(c)
	}
}

func extractToken(c echo.Context) string {
	if cookie, err := c.Cookie(AccessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
