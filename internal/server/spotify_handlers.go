package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/novaplayer/api/internal/services"
)

func (s *Server) handleUserPlaylists(c echo.Context) error {
	playlists, err := s.spotify.UserPlaylists(c.Request().Context(), userID(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, playlists)
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	result, err := s.spotify.Search(c.Request().Context(), userID(c), query)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleTopTracks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.spotify.TopTracks(c.Request().Context(), userID(c)))
}

func (s *Server) handleGetPlaylist(c echo.Context) error {
	playlist, err := s.spotify.GetPlaylist(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, playlist)
}

func (s *Server) handleSavedTracks(c echo.Context) error {
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	page, err := s.spotify.SavedTracks(c.Request().Context(), userID(c), offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, page)
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func (s *Server) handleCreatePlaylist(c echo.Context) error {
	var req createPlaylistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	playlist, err := s.spotify.CreatePlaylist(c.Request().Context(), userID(c), req.Name, req.Description, req.Image)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, playlist)
}

type editPlaylistRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
}

func (s *Server) handleEditPlaylist(c echo.Context) error {
	var req editPlaylistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	update := services.PlaylistUpdate{Name: req.Name, Description: req.Description, Image: req.Image}
	if err := s.spotify.EditPlaylist(c.Request().Context(), userID(c), c.Param("id"), update); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeletePlaylist(c echo.Context) error {
	if err := s.spotify.DeletePlaylist(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetArtist(c echo.Context) error {
	artist, err := s.spotify.GetArtist(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, artist)
}

func (s *Server) handleArtistTopTracks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.spotify.ArtistTopTracks(c.Request().Context(), userID(c), c.Param("id")))
}

func (s *Server) handleFollowsArtist(c echo.Context) error {
	follows := s.spotify.FollowsArtist(c.Request().Context(), userID(c), c.Param("id"))
	return c.JSON(http.StatusOK, map[string]bool{"following": follows})
}

func (s *Server) handleFollowArtist(c echo.Context) error {
	if err := s.spotify.FollowArtist(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "following"})
}

func (s *Server) handleUnfollowArtist(c echo.Context) error {
	if err := s.spotify.UnfollowArtist(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "unfollowed"})
}

func (s *Server) handleAccessToken(c echo.Context) error {
	token, err := s.spotify.AccessToken(userID(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"access_token": token})
}

type playRequest struct {
	DeviceID   string   `json:"device_id"`
	ContextURI string   `json:"context_uri"`
	URIs       []string `json:"uris"`
}

func (s *Server) handlePlay(c echo.Context) error {
	var req playRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	if err := s.spotify.Play(c.Request().Context(), userID(c), req.DeviceID, req.ContextURI, req.URIs); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "playing"})
}

type transferRequest struct {
	DeviceID string `json:"device_id"`
}

func (s *Server) handleTransfer(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil || req.DeviceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "device_id is required")
	}

	if err := s.spotify.Transfer(c.Request().Context(), userID(c), req.DeviceID); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "transferred"})
}

func (s *Server) handleCurrentlyPlaying(c echo.Context) error {
	return c.JSON(http.StatusOK, s.spotify.CurrentlyPlaying(c.Request().Context(), userID(c)))
}

func (s *Server) handleRecentlyPlayed(c echo.Context) error {
	return c.JSON(http.StatusOK, s.spotify.RecentlyPlayed(c.Request().Context(), userID(c)))
}

func (s *Server) handleGetQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, s.spotify.GetQueue(c.Request().Context(), userID(c)))
}

type queueRequest struct {
	URI      string `json:"uri"`
	DeviceID string `json:"device_id"`
}

func (s *Server) handleAddToQueue(c echo.Context) error {
	var req queueRequest
	if err := c.Bind(&req); err != nil || req.URI == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "uri is required")
	}

	if err := s.spotify.AddToQueue(c.Request().Context(), userID(c), req.URI, req.DeviceID); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "queued"})
}

type seekRequest struct {
	PositionMS int    `json:"position_ms"`
	DeviceID   string `json:"device_id"`
}

func (s *Server) handleSeek(c echo.Context) error {
	var req seekRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	if err := s.spotify.Seek(c.Request().Context(), userID(c), req.PositionMS, req.DeviceID); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "seeked"})
}

type deviceRequest struct {
	DeviceID string `json:"device_id"`
}

func (s *Server) handlePause(c echo.Context) error {
	var req deviceRequest
	_ = c.Bind(&req)
	paused := s.spotify.Pause(c.Request().Context(), userID(c), req.DeviceID)
	return c.JSON(http.StatusOK, map[string]bool{"success": paused})
}

func (s *Server) handleResume(c echo.Context) error {
	var req deviceRequest
	_ = c.Bind(&req)
	if err := s.spotify.Resume(c.Request().Context(), userID(c), req.DeviceID); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "playing"})
}

func (s *Server) handleNext(c echo.Context) error {
	var req deviceRequest
	_ = c.Bind(&req)
	if err := s.spotify.Next(c.Request().Context(), userID(c), req.DeviceID); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "skipped"})
}

func (s *Server) handlePrevious(c echo.Context) error {
	var req deviceRequest
	_ = c.Bind(&req)
	if err := s.spotify.Previous(c.Request().Context(), userID(c), req.DeviceID); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "skipped back"})
}

type volumeRequest struct {
	VolumePercent int    `json:"volume_percent"`
	DeviceID      string `json:"device_id"`
}

func (s *Server) handleVolume(c echo.Context) error {
	var req volumeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.VolumePercent < 0 || req.VolumePercent > 100 {
		return echo.NewHTTPError(http.StatusBadRequest, "volume_percent must be between 0 and 100")
	}

	changed := s.spotify.SetVolume(c.Request().Context(), userID(c), req.VolumePercent, req.DeviceID)
	return c.JSON(http.StatusOK, map[string]bool{"success": changed})
}

func (s *Server) handleCheckSaved(c echo.Context) error {
	saved := s.spotify.CheckSaved(c.Request().Context(), userID(c), c.Param("id"))
	return c.JSON(http.StatusOK, map[string]bool{"saved": saved})
}

func (s *Server) handleSaveTrack(c echo.Context) error {
	if err := s.spotify.SaveTrack(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleRemoveTrack(c echo.Context) error {
	if err := s.spotify.RemoveTrack(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleVideo(c echo.Context) error {
	track := c.QueryParam("track")
	artist := c.QueryParam("artist")
	if track == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter track is required")
	}

	return c.JSON(http.StatusOK, s.video.FindVideo(c.Request().Context(), track, artist))
}

func (s *Server) handleFeatured(c echo.Context) error {
	return c.JSON(http.StatusOK, s.spotify.FeaturedPlaylists(c.Request().Context(), userID(c)))
}

func (s *Server) handleCategories(c echo.Context) error {
	categories, err := s.spotify.Categories(c.Request().Context(), userID(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, categories)
}

func (s *Server) handleCategoryPlaylists(c echo.Context) error {
	playlists, err := s.spotify.CategoryPlaylists(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, playlists)
}

func (s *Server) handlePublicUserProfile(c echo.Context) error {
	profile, err := s.spotify.PublicUserProfile(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) handlePublicUserPlaylists(c echo.Context) error {
	return c.JSON(http.StatusOK, s.spotify.PublicUserPlaylists(c.Request().Context(), userID(c), c.Param("id")))
}
