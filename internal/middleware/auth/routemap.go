package auth

import (
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/edusystems/school_management/internal/models"
)

// RouteRule maps a path pattern to the roles permitted to reach it.
type RouteRule struct {
	Pattern *regexp.Regexp
	Roles   []models.Role
}

// RouteAccessMap is an ordered rule list; the first matching pattern wins.
// It is static configuration, never mutated at runtime, and is applied at
// the edge independently of the per-handler Authorize wrappers. Both
// layers must agree on who may reach a route.
type RouteAccessMap []RouteRule

func Rule(pattern string, roles ...models.Role) RouteRule {
	return RouteRule{Pattern: regexp.MustCompile(pattern), Roles: roles}
}

// RolesFor returns the allowed roles for the first rule matching path.
func (m RouteAccessMap) RolesFor(path string) ([]models.Role, bool) {
	for _, rule := range m {
		if rule.Pattern.MatchString(path) {
			return rule.Roles, true
		}
	}
	return nil, false
}

// Allows reports whether role may reach path. Unmatched paths are allowed:
// they are either public or guarded by their own Authorize wrapper.
func (m RouteAccessMap) Allows(path string, role models.Role) bool {
	roles, ok := m.RolesFor(path)
	if !ok {
		return true
	}
	for _, r := range roles {
		if r == models.RoleAny || r == role {
			return true
		}
	}
	return false
}

// RouteAccess enforces the map against the identity attached by
// Authenticate.
func RouteAccess(m RouteAccessMap) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			roles, matched := m.RolesFor(path)
			if !matched {
				return next(c)
			}
			ident, ok := CurrentIdentity(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			for _, r := range roles {
				if r == models.RoleAny || r == ident.Role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
	}
}

// DefaultRouteAccess mirrors the route registrations in the router; the
// admin prefix must stay first so it wins over the broader rules below.
var DefaultRouteAccess = RouteAccessMap{
	Rule(`^/api/v1/admin/`, models.RoleAdmin),
	Rule(`^/api/v1/mealplans/\d+/decision$`, models.RoleDirector, models.RoleDoctor, models.RoleHR),
	Rule(`^/api/v1/mealplans`, models.RoleAny),
	Rule(`^/api/v1/announcements`, models.RoleAny),
	Rule(`^/api/v1/account/`, models.RoleAny),
}
