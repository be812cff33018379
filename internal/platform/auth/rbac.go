package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HasRole reports whether roles grants one of wanted. Admin grants all.
func HasRole(roles []string, wanted ...string) bool {
	for _, has := range roles {
		if has == RoleAdmin {
			return true
		}
		for _, w := range wanted {
			if has == w {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// CanAccessOrganization reports whether the caller in c may act on orgID.
// Admins and callers without an organization claim are not restricted.
func CanAccessOrganization(c echo.Context, orgID uuid.UUID) bool {
	ctx := c.Request().Context()
	callerOrg := OrganizationFromContext(ctx)
	if callerOrg == uuid.Nil || HasRole(RolesFromContext(ctx)) {
		return true
	}
	return callerOrg == orgID
}
