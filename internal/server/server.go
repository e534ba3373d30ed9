package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/novaplayer/api/internal/auth"
	"github.com/novaplayer/api/internal/services"
	"github.com/novaplayer/api/internal/shared"
)

// Server wires the HTTP routes over the auth and Spotify services.
type Server struct {
	echo    *echo.Echo
	logger  *log.Logger
	auth    *auth.Service
	spotify *services.SpotifyService
	video   *services.VideoService
	gateway *services.Gateway

	jwtSecret   []byte
	frontendURL string
}

// Opts configures a [Server].
type Opts struct {
	Logger         *log.Logger
	Auth           *auth.Service
	Spotify        *services.SpotifyService
	Video          *services.VideoService
	Gateway        *services.Gateway
	JWTSecret      string
	FrontendURL    string
	AllowedOrigins []string
}

// New creates a [Server] with middleware and routes registered.
func New(opts Opts) *Server {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     opts.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowCredentials: true,
	}))
	e.Use(requestLogger(opts.Logger))

	s := &Server{
		echo:        e,
		logger:      opts.Logger,
		auth:        opts.Auth,
		spotify:     opts.Spotify,
		video:       opts.Video,
		gateway:     opts.Gateway,
		jwtSecret:   []byte(opts.JWTSecret),
		frontendURL: opts.FrontendURL,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	protect := requireAuth(s.jwtSecret)

	authGroup := s.echo.Group("/auth")
	authGroup.POST("/register", s.handleRegister)
	authGroup.POST("/login", s.handleLogin)
	authGroup.POST("/verify", s.handleVerify)
	authGroup.POST("/forgot-password", s.handleForgotPassword)
	authGroup.POST("/reset-password", s.handleResetPassword)
	authGroup.GET("/spotify", s.handleSpotifyConsent)
	authGroup.GET("/spotify/callback", s.handleSpotifyCallback)
	authGroup.GET("/me", s.handleMe, protect)
	authGroup.POST("/spotify/refresh", s.handleSpotifyRefresh, protect)

	sp := s.echo.Group("/spotify", protect)
	sp.GET("/playlists", s.handleUserPlaylists)
	sp.GET("/search", s.handleSearch)
	sp.GET("/top-tracks", s.handleTopTracks)
	sp.GET("/playlist/:id", s.handleGetPlaylist)
	sp.GET("/saved-tracks", s.handleSavedTracks)
	sp.POST("/playlist", s.handleCreatePlaylist)
	sp.PUT("/playlist/:id", s.handleEditPlaylist)
	sp.DELETE("/playlist/:id", s.handleDeletePlaylist)
	sp.GET("/artist/:id", s.handleGetArtist)
	sp.GET("/artist/:id/top-tracks", s.handleArtistTopTracks)
	sp.GET("/artist/:id/is-following", s.handleFollowsArtist)
	sp.PUT("/artist/:id/follow", s.handleFollowArtist)
	sp.DELETE("/artist/:id/follow", s.handleUnfollowArtist)
	sp.GET("/token", s.handleAccessToken)
	sp.PUT("/play", s.handlePlay)
	sp.PUT("/transfer", s.handleTransfer)
	sp.GET("/currently-playing", s.handleCurrentlyPlaying)
	sp.GET("/recently-played", s.handleRecentlyPlayed)
	sp.GET("/queue", s.handleGetQueue)
	sp.POST("/queue", s.handleAddToQueue)
	sp.PUT("/seek", s.handleSeek)
	sp.PUT("/pause", s.handlePause)
	sp.PUT("/resume", s.handleResume)
	sp.POST("/next", s.handleNext)
	sp.POST("/previous", s.handlePrevious)
	sp.PUT("/volume", s.handleVolume)
	sp.GET("/check-saved/:id", s.handleCheckSaved)
	sp.PUT("/save-track/:id", s.handleSaveTrack)
	sp.DELETE("/remove-track/:id", s.handleRemoveTrack)
	sp.GET("/video", s.handleVideo)
	sp.GET("/featured", s.handleFeatured)
	sp.GET("/categories", s.handleCategories)
	sp.GET("/categories/:id/playlists", s.handleCategoryPlaylists)
	sp.GET("/user-profile/:id", s.handlePublicUserProfile)
	sp.GET("/user-profile/:id/playlists", s.handlePublicUserPlaylists)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestLogger logs one line per request.
func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info("request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"elapsed", time.Since(start),
			)
			return nil
		}
	}
}
