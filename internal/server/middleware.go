package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/novaplayer/api/internal/auth"
)

// Context keys set by the auth middleware.
const (
	ctxUserID = "userID"
	ctxEmail  = "email"
)

// requireAuth verifies the bearer session token and injects the user
// identity into the request context.
func requireAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxEmail, claims.Email)
			return next(c)
		}
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}
