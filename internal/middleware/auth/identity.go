package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/edusystems/school_management/internal/models"
)

const identityKey = "identity"

// Identity is the verified caller attached to the request context by
// Authenticate.
type Identity struct {
	ID           uint
	Role         models.Role
	BranchID     uint
	TokenVersion uint
}

func setIdentity(c echo.Context, id Identity) {
	c.Set(identityKey, id)
}

// CurrentIdentity returns the identity attached by Authenticate, if any.
func CurrentIdentity(c echo.Context) (Identity, bool) {
	v := c.Get(identityKey)
	if v == nil {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
