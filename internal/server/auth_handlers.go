package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/novaplayer/api/internal/shared"
)

const stateCookie = "oauth_state"

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.Email == "" || req.Name == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email, name and password are required")
	}

	profile, err := s.auth.Register(c.Request().Context(), req.Email, req.Name, req.Password)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, profile)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	token, profile, err := s.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"token": token, "user": profile})
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (s *Server) handleVerify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	if err := s.auth.Verify(c.Request().Context(), req.Email, req.Code); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "verified"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	// Whether or not the email exists, the response is the same to avoid
	// account enumeration.
	if err := s.auth.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		if !errors.Is(err, shared.ErrUserNotFound) {
			return mapError(err)
		}
		s.logger.Debug("password reset for unknown email", "email", req.Email)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "reset link sent"})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handleResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "password is required")
	}

	if err := s.auth.ResetPassword(c.Request().Context(), req.Token, req.Password); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "password updated"})
}

// handleSpotifyConsent starts the OAuth flow: a random state rides in a
// short-lived cookie and in the consent URL.
func (s *Server) handleSpotifyConsent(c echo.Context) error {
	state := shared.GenerateID()
	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, s.auth.AuthCodeURL(state))
}

// handleSpotifyCallback finishes the OAuth flow and hands the session token
// to the frontend via redirect.
func (s *Server) handleSpotifyCallback(c echo.Context) error {
	state := c.QueryParam("state")
	cookie, err := c.Cookie(stateCookie)
	if err != nil || state == "" || cookie.Value != state {
		return echo.NewHTTPError(http.StatusBadRequest, "state mismatch")
	}

	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing authorization code")
	}

	token, err := s.auth.HandleCallback(c.Request().Context(), code)
	if err != nil {
		return mapError(err)
	}

	return c.Redirect(http.StatusFound, s.frontendURL+"/callback?token="+token)
}

func (s *Server) handleMe(c echo.Context) error {
	profile, err := s.auth.Profile(userID(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) handleSpotifyRefresh(c echo.Context) error {
	accessToken, err := s.gateway.Refresh(c.Request().Context(), userID(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"access_token": accessToken})
}
