package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/edusystems/school_management/internal/models"
)

// Authorize gates a handler to the given roles. It expects Authenticate to
// have run first; an absent identity is treated as unauthenticated, not
// forbidden. models.RoleAny admits any authenticated caller.
func Authorize(roles ...models.Role) echo.MiddlewareFunc {
	allowed := make(map[models.Role]bool, len(roles))
	wildcard := false
	for _, r := range roles {
		if r == models.RoleAny {
			wildcard = true
		}
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, ok := CurrentIdentity(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			if wildcard || allowed[ident.Role] {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
	}
}
