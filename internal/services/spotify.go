// Spotify domain operations backed by the [Gateway].
package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/novaplayer/api/internal/shared"
)

// SpotifyService exposes the music operations the HTTP layer serves.
//
// State-changing operations surface gateway errors. Read-heavy polling
// operations degrade to an empty result on transient upstream failure, and
// cacheable reads fall back to stale snapshots through [GetCached].
type SpotifyService struct {
	gateway *Gateway
	cache   Cache
	store   CredentialStore
	logger  *log.Logger
}

// NewSpotifyService creates a [SpotifyService].
func NewSpotifyService(gateway *Gateway, cache Cache, store CredentialStore, logger *log.Logger) *SpotifyService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SpotifyService{gateway: gateway, cache: cache, store: store, logger: logger}
}

// UserPlaylists retrieves the authenticated user's playlists.
func (s *SpotifyService) UserPlaylists(ctx context.Context, userID string) ([]SimplePlaylist, error) {
	resp, err := s.gateway.Do(ctx, NewRequest(userID, http.MethodGet, "/me/playlists"))
	if err != nil {
		return nil, err
	}

	var page Paginated[SimplePlaylist]
	if err := resp.JSON(&page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Search looks up tracks and artists matching the query.
func (s *SpotifyService) Search(ctx context.Context, userID, query string) (*SearchResult, error) {
	req := NewRequest(userID, http.MethodGet, "/search").
		WithParam("q", query).
		WithParam("type", "track,artist").
		WithParam("limit", "10")

	resp, err := s.gateway.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var result SearchResult
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TopTracks retrieves the user's top tracks. Best-effort: an upstream
// failure yields an empty list.
func (s *SpotifyService) TopTracks(ctx context.Context, userID string) []Track {
	req := NewRequest(userID, http.MethodGet, "/me/top/tracks").WithParam("limit", "10")

	resp, err := s.gateway.Do(ctx, req)
	if err != nil {
		s.logger.Debug("top tracks unavailable", "user", userID, "err", err)
		return []Track{}
	}

	var page Paginated[Track]
	if err := resp.JSON(&page); err != nil {
		return []Track{}
	}
	return page.Items
}

// GetPlaylist retrieves a playlist with its tracks.
func (s *SpotifyService) GetPlaylist(ctx context.Context, userID, playlistID string) (*Playlist, error) {
	resp, err := s.gateway.Do(ctx, NewRequest(userID, http.MethodGet, "/playlists/"+playlistID))
	if err != nil {
		return nil, err
	}

	var playlist Playlist
	if err := resp.JSON(&playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// SavedTracks retrieves a page of the user's saved tracks starting at offset.
func (s *SpotifyService) SavedTracks(ctx context.Context, userID string, offset int) (*Paginated[SavedTrack], error) {
	req := NewRequest(userID, http.MethodGet, "/me/tracks").
		WithParam("limit", "50").
		WithParam("offset", fmt.Sprintf("%d", offset))

	resp, err := s.gateway.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var page Paginated[SavedTrack]
	if err := resp.JSON(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

// createPlaylistBody is the playlist-creation payload. Playlists are created
// private; visibility is managed in the Spotify client.
type createPlaylistBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

// CreatePlaylist creates a playlist owned by the user's Spotify account and
// optionally uploads a JPEG cover. A failed cover upload is logged, not
// fatal: the playlist already exists at that point.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID, name, description, imageBase64 string) (*Playlist, error) {
	user, err := s.store.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNotConnected, err)
	}
	if !user.Connected() || user.SpotifyID == nil {
		return nil, shared.ErrNotConnected
	}

	req := NewRequest(userID, http.MethodPost, "/users/"+*user.SpotifyID+"/playlists").
		WithBody(createPlaylistBody{Name: name, Description: description, Public: false})

	resp, err := s.gateway.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var playlist Playlist
	if err := resp.JSON(&playlist); err != nil {
		return nil, err
	}

	if imageBase64 != "" {
		if err := s.uploadCover(ctx, userID, playlist.ID, imageBase64); err != nil {
			s.logger.Warn("cover upload failed", "user", userID, "playlist", playlist.ID, "err", err)
		}
	}

	return &playlist, nil
}

// uploadCover sends the base64 JPEG directly as the request body, as the
// upstream requires.
func (s *SpotifyService) uploadCover(ctx context.Context, userID, playlistID, imageBase64 string) error {
	req := NewRequest(userID, http.MethodPut, "/playlists/"+playlistID+"/images").
		WithRawBody([]byte(imageBase64), "image/jpeg")
	_, err := s.gateway.Do(ctx, req)
	return err
}

// PlaylistUpdate carries the fields of an edit request; nil fields are untouched.
type PlaylistUpdate struct {
	Name        *string
	Description *string
	Image       *string
}

// EditPlaylist updates a playlist's name, description, and/or cover image.
func (s *SpotifyService) EditPlaylist(ctx context.Context, userID, playlistID string, update PlaylistUpdate) error {
	if update.Name != nil || update.Description != nil {
		body := map[string]string{}
		if update.Name != nil {
			body["name"] = *update.Name
		}
		if update.Description != nil {
			body["description"] = *update.Description
		}

		req := NewRequest(userID, http.MethodPut, "/playlists/"+playlistID).WithBody(body)
		if _, err := s.gateway.Do(ctx, req); err != nil {
			return err
		}
	}

	if update.Image != nil {
		if err := s.uploadCover(ctx, userID, playlistID, *update.Image); err != nil {
			return err
		}
	}

	return nil
}

// DeletePlaylist removes the playlist from the user's library. Spotify has
// no hard delete; unfollowing is the documented equivalent.
func (s *SpotifyService) DeletePlaylist(ctx context.Context, userID, playlistID string) error {
	_, err := s.gateway.Do(ctx, NewRequest(userID, http.MethodDelete, "/playlists/"+playlistID+"/followers"))
	return err
}

// GetArtist retrieves artist details, cached for an hour.
func (s *SpotifyService) GetArtist(ctx context.Context, userID, artistID string) (*Artist, error) {
	return GetCached(ctx, s.cache, userID, "artist:"+artistID, TTLArtist, func(ctx context.Context) (*Artist, error) {
		resp, err := s.gateway.Do(ctx, NewRequest(userID, http.MethodGet, "/artists/"+artistID))
		if err != nil {
			return nil, err
		}

		var artist Artist
		if err := resp.JSON(&artist); err != nil {
			return nil, err
		}
		return &artist, nil
	})
}

// ArtistTopTracks retrieves an artist's top tracks in the user's market.
// Best-effort: failures yield an empty list.
func (s *SpotifyService) ArtistTopTracks(ctx context.Context, userID, artistID string) []Track {
	req := NewRequest(userID, http.MethodGet, "/artists/"+artistID+"/top-tracks").
		WithParam("market", s.Region(ctx, userID))

	resp, err := s.gateway.Do(ctx, req)
	if err != nil {
		s.logger.Debug("artist top tracks unavailable", "user", userID, "artist", artistID, "err", err)
		return []Track{}
	}

	var result struct {
		Tracks []Track `json:"tracks"`
	}
	if err := resp.JSON(&result); err != nil {
		return []Track{}
	}
	return result.Tracks
}

// FollowsArtist reports whether the user follows the artist, cached for five
// minutes. Best-effort: failures report false.
func (s *SpotifyService) FollowsArtist(ctx context.Context, userID, artistID string) bool {
	follows, err := GetCached(ctx, s.cache, userID, "follows:"+artistID, TTLFollowStatus, func(ctx context.Context) (bool, error) {
		req := NewRequest(userID, http.MethodGet, "/me/following/contains").
			WithParam("type", "artist").
			WithParam("ids", artistID)

		resp, err := s.gateway.Do(ctx, req)
		if err != nil {
			return false, err
		}

		var flags []bool
		if err := resp.JSON(&flags); err != nil || len(flags) == 0 {
			return false, err
		}
		return flags[0], nil
	})
	if err != nil {
		return false
	}
	return follows
}

// FollowArtist adds the artist to the user's followed artists.
func (s *SpotifyService) FollowArtist(ctx context.Context, userID, artistID string) error {
	req := NewRequest(userID, http.MethodPut, "/me/following").
		WithParam("type", "artist").
		WithParam("ids", artistID).
		WithBody(struct{}{})
	_, err := s.gateway.Do(ctx, req)
	return err
}

// UnfollowArtist removes the artist from the user's followed artists.
func (s *SpotifyService) UnfollowArtist(ctx context.Context, userID, artistID string) error {
	req := NewRequest(userID, http.MethodDelete, "/me/following").
		WithParam("type", "artist").
		WithParam("ids", artistID)
	_, err := s.gateway.Do(ctx, req)
	return err
}

// AccessToken returns the user's current Spotify access token for the
// frontend playback SDK.
func (s *SpotifyService) AccessToken(userID string) (string, error) {
	user, err := s.store.GetByID(userID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrNotConnected, err)
	}
	if !user.Connected() {
		return "", shared.ErrNotConnected
	}
	return *user.SpotifyAccessToken, nil
}

// Play starts playback on the device, shaped per [BuildPlayBody].
func (s *SpotifyService) Play(ctx context.Context, userID, deviceID, contextURI string, uris []string) error {
	req := NewRequest(userID, http.MethodPut, "/me/player/play").
		WithParam("device_id", deviceID).
		WithBody(BuildPlayBody(contextURI, uris))
	_, err := s.gateway.Do(ctx, req)
	return err
}

// Transfer moves playback to another device and resumes there.
func (s *SpotifyService) Transfer(ctx context.Context, userID, deviceID string) error {
	body := map[string]any{"device_ids": []string{deviceID}, "play": true}
	req := NewRequest(userID, http.MethodPut, "/me/player").WithBody(body)
	_, err := s.gateway.Do(ctx, req)
	return err
}

// CurrentlyPlaying returns the playback snapshot the frontend polls, cached
// for two seconds. Best-effort: nothing playing or any failure yields nil,
// never an error, so the poll loop keeps running. The fetch passes a zero
// retry budget so a throttle fails fast instead of stalling the poll.
func (s *SpotifyService) CurrentlyPlaying(ctx context.Context, userID string) *PlaybackState {
	state, err := GetCached(ctx, s.cache, userID, "now-playing", TTLNowPlaying, func(ctx context.Context) (*PlaybackState, error) {
		req := NewRequest(userID, http.MethodGet, "/me/player/currently-playing").WithBudget(0)

		resp, err := s.gateway.Do(ctx, req)
		if err != nil {
			return nil, err
		}

		var raw playerState
		if err := resp.JSON(&raw); err != nil {
			return nil, err
		}
		if raw.Item == nil {
			return nil, nil
		}

		state := &PlaybackState{
			Item:       raw.Item,
			IsPlaying:  raw.IsPlaying,
			ProgressMS: raw.ProgressMS,
		}
		if raw.Device != nil {
			state.DeviceID = &raw.Device.ID
		}
		return state, nil
	})
	if err != nil {
		s.logger.Debug("currently playing unavailable", "user", userID, "err", err)
		return nil
	}
	return state
}

// Seek jumps playback to the given position.
func (s *SpotifyService) Seek(ctx context.Context, userID string, positionMS int, deviceID string) error {
	req := NewRequest(userID, http.MethodPut, "/me/player/seek").
		WithParam("position_ms", fmt.Sprintf("%d", positionMS)).
		WithParam("device_id", deviceID).
		WithBody(struct{}{})
	_, err := s.gateway.Do(ctx, req)
	return err
}

// Pause pauses playback. Best-effort: the upstream errors when playback is
// already paused, which callers don't care about.
func (s *SpotifyService) Pause(ctx context.Context, userID, deviceID string) bool {
	req := NewRequest(userID, http.MethodPut, "/me/player/pause").
		WithParam("device_id", deviceID).
		WithBody(struct{}{})
	if _, err := s.gateway.Do(ctx, req); err != nil {
		s.logger.Debug("pause rejected", "user", userID, "err", err)
		return false
	}
	return true
}

// Resume resumes playback in place (empty play body).
func (s *SpotifyService) Resume(ctx context.Context, userID, deviceID string) error {
	req := NewRequest(userID, http.MethodPut, "/me/player/play").
		WithParam("device_id", deviceID).
		WithBody(struct{}{})
	_, err := s.gateway.Do(ctx, req)
	return err
}

// Next skips to the next track.
func (s *SpotifyService) Next(ctx context.Context, userID, deviceID string) error {
	req := NewRequest(userID, http.MethodPost, "/me/player/next").
		WithParam("device_id", deviceID).
		WithBody(struct{}{})
	_, err := s.gateway.Do(ctx, req)
	return err
}

// Previous skips to the previous track.
func (s *SpotifyService) Previous(ctx context.Context, userID, deviceID string) error {
	req := NewRequest(userID, http.MethodPost, "/me/player/previous").
		WithParam("device_id", deviceID).
		WithBody(struct{}{})
	_, err := s.gateway.Do(ctx, req)
	return err
}

// SetVolume changes the device volume. Best-effort: some devices reject
// remote volume changes.
func (s *SpotifyService) SetVolume(ctx context.Context, userID string, volumePercent int, deviceID string) bool {
	req := NewRequest(userID, http.MethodPut, "/me/player/volume").
		WithParam("volume_percent", fmt.Sprintf("%d", volumePercent)).
		WithParam("device_id", deviceID).
		WithBody(struct{}{})
	if _, err := s.gateway.Do(ctx, req); err != nil {
		s.logger.Debug("volume change rejected", "user", userID, "err", err)
		return false
	}
	return true
}

// CheckSaved reports whether the track is in the user's library.
// Best-effort: failures report false.
func (s *SpotifyService) CheckSaved(ctx context.Context, userID, trackID string) bool {
	req := NewRequest(userID, http.MethodGet, "/me/tracks/contains").WithParam("ids", trackID)

	resp, err := s.gateway.Do(ctx, req)
	if err != nil {
		return false
	}

	var flags []bool
	if err := resp.JSON(&flags); err != nil || len(flags) == 0 {
		return false
	}
	return flags[0]
}

// SaveTrack adds the track to the user's library.
func (s *SpotifyService) SaveTrack(ctx context.Context, userID, trackID string) error {
	req := NewRequest(userID, http.MethodPut, "/me/tracks").
		WithParam("ids", trackID).
		WithBody(struct{}{})
	_, err := s.gateway.Do(ctx, req)
	return err
}

// RemoveTrack removes the track from the user's library.
func (s *SpotifyService) RemoveTrack(ctx context.Context, userID, trackID string) error {
	req := NewRequest(userID, http.MethodDelete, "/me/tracks").WithParam("ids", trackID)
	_, err := s.gateway.Do(ctx, req)
	return err
}

// Region returns the user's market (country code), cached for a day since
// it only changes when the user physically moves. Defaults to US.
func (s *SpotifyService) Region(ctx context.Context, userID string) string {
	region, err := GetCached(ctx, s.cache, userID, "region", TTLRegion, func(ctx context.Context) (string, error) {
		resp, err := s.gateway.Do(ctx, NewRequest(userID, http.MethodGet, "/me"))
		if err != nil {
			return "", err
		}

		var profile UserProfile
		if err := resp.JSON(&profile); err != nil {
			return "", err
		}
		if profile.Country == "" {
			return "US", nil
		}
		return profile.Country, nil
	})
	if err != nil || region == "" {
		return "US"
	}
	return region
}

// FeaturedPlaylists returns Spotify-authored playlists relevant to the
// user's region. Best-effort: failures yield an empty list.
//
// The author:spotify qualifier makes the search return only playlists
// curated by Spotify itself.
func (s *SpotifyService) FeaturedPlaylists(ctx context.Context, userID string) []SimplePlaylist {
	req := NewRequest(userID, http.MethodGet, "/search").
		WithParam("q", "Top Hits author:spotify").
		WithParam("type", "playlist").
		WithParam("market", s.Region(ctx, userID)).
		WithParam("limit", "15")

	resp, err := s.gateway.Do(ctx, req)
	if err != nil {
		s.logger.Debug("featured playlists unavailable", "user", userID, "err", err)
		return []SimplePlaylist{}
	}

	var result struct {
		Playlists Paginated[SimplePlaylist] `json:"playlists"`
	}
	if err := resp.JSON(&result); err != nil {
		return []SimplePlaylist{}
	}
	return result.Playlists.Items
}

// PublicUserProfile retrieves another Spotify user's public profile.
func (s *SpotifyService) PublicUserProfile(ctx context.Context, userID, publicUserID string) (*UserProfile, error) {
	resp, err := s.gateway.Do(ctx, NewRequest(userID, http.MethodGet, "/users/"+publicUserID))
	if err != nil {
		return nil, err
	}

	var profile UserProfile
	if err := resp.JSON(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// PublicUserPlaylists retrieves another user's public playlists.
// Best-effort: failures yield an empty list.
func (s *SpotifyService) PublicUserPlaylists(ctx context.Context, userID, publicUserID string) []SimplePlaylist {
	req := NewRequest(userID, http.MethodGet, "/users/"+publicUserID+"/playlists").
		WithParam("limit", "20")

	resp, err := s.gateway.Do(ctx, req)
	if err != nil {
		return []SimplePlaylist{}
	}

	var page Paginated[SimplePlaylist]
	if err := resp.JSON(&page); err != nil {
		return []SimplePlaylist{}
	}
	return page.Items
}

// RecentlyPlayed returns the listening history with repeated plays of the
// same track collapsed to the most recent occurrence. Best-effort.
func (s *SpotifyService) RecentlyPlayed(ctx context.Context, userID string) []PlayedItem {
	req := NewRequest(userID, http.MethodGet, "/me/player/recently-played").WithParam("limit", "50")

	resp, err := s.gateway.Do(ctx, req)
	if err != nil {
		return []PlayedItem{}
	}

	var page Paginated[PlayedItem]
	if err := resp.JSON(&page); err != nil {
		return []PlayedItem{}
	}

	seen := make(map[string]bool, len(page.Items))
	deduped := make([]PlayedItem, 0, len(page.Items))
	for _, item := range page.Items {
		if seen[item.Track.ID] {
			continue
		}
		seen[item.Track.ID] = true
		deduped = append(deduped, item)
	}
	return deduped
}

// GetQueue returns the user's playback queue. Best-effort.
func (s *SpotifyService) GetQueue(ctx context.Context, userID string) *Queue {
	resp, err := s.gateway.Do(ctx, NewRequest(userID, http.MethodGet, "/me/player/queue").WithBudget(0))
	if err != nil {
		return &Queue{Tracks: []Track{}}
	}

	var queue Queue
	if err := resp.JSON(&queue); err != nil {
		return &Queue{Tracks: []Track{}}
	}
	return &queue
}

// AddToQueue appends a track to the playback queue.
func (s *SpotifyService) AddToQueue(ctx context.Context, userID, uri, deviceID string) error {
	req := NewRequest(userID, http.MethodPost, "/me/player/queue").
		WithParam("uri", uri).
		WithBody(struct{}{})
	if deviceID != "" {
		req.WithParam("device_id", deviceID)
	}
	_, err := s.gateway.Do(ctx, req)
	return err
}

// Categories returns the browse categories, cached for thirty minutes.
func (s *SpotifyService) Categories(ctx context.Context, userID string) ([]Category, error) {
	return GetCached(ctx, s.cache, userID, "categories", TTLCategories, func(ctx context.Context) ([]Category, error) {
		req := NewRequest(userID, http.MethodGet, "/browse/categories").WithParam("limit", "50")

		resp, err := s.gateway.Do(ctx, req)
		if err != nil {
			return nil, err
		}

		var result struct {
			Categories Paginated[Category] `json:"categories"`
		}
		if err := resp.JSON(&result); err != nil {
			return nil, err
		}
		return result.Categories.Items, nil
	})
}

// CategoryPlaylists returns the playlists of one browse category, cached
// for thirty minutes.
func (s *SpotifyService) CategoryPlaylists(ctx context.Context, userID, categoryID string) ([]SimplePlaylist, error) {
	return GetCached(ctx, s.cache, userID, "category-playlists:"+categoryID, TTLCategories, func(ctx context.Context) ([]SimplePlaylist, error) {
		req := NewRequest(userID, http.MethodGet, "/browse/categories/"+categoryID+"/playlists").
			WithParam("limit", "20")

		resp, err := s.gateway.Do(ctx, req)
		if err != nil {
			return nil, err
		}

		var result struct {
			Playlists Paginated[SimplePlaylist] `json:"playlists"`
		}
		if err := resp.JSON(&result); err != nil {
			return nil, err
		}
		return result.Playlists.Items, nil
	})
}
