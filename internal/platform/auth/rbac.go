package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. Administrators pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// ProfileID returns the caller's patient or doctor id when the caller holds
// role, and a 403 otherwise.
func ProfileID(c echo.Context, role string) (uuid.UUID, error) {
	p, ok := PrincipalFromContext(c.Request().Context())
	if !ok || p.Role != role || p.ProfileID == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("caller is not a %s", role))
	}
	return p.ProfileID, nil
}
