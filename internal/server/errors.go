package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/novaplayer/api/internal/shared"
)

// mapError translates the service error taxonomy into HTTP responses.
func mapError(err error) error {
	switch {
	case errors.Is(err, shared.ErrIncorrectCredentials),
		errors.Is(err, shared.ErrInvalidToken),
		errors.Is(err, shared.ErrNotConnected),
		errors.Is(err, shared.ErrSessionExpired):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())

	case errors.Is(err, shared.ErrNotVerified):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())

	case errors.Is(err, shared.ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())

	case errors.Is(err, shared.ErrInvalidCode),
		errors.Is(err, shared.ErrInvalidResetToken),
		errors.Is(err, shared.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.Is(err, shared.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, shared.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, "spotify is throttling requests, try again shortly")

	case errors.Is(err, shared.ErrUpstream):
		return echo.NewHTTPError(http.StatusBadGateway, "spotify request failed")

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
