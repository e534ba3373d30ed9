package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/novaplayer/api/internal/models"
	"github.com/novaplayer/api/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"
)

const spotifyProfileURL = "https://api.spotify.com/v1/me"

// spotifyScopes is everything the player frontend needs: playback control,
// library and playlist editing, follow management, and profile/email for
// account linking.
var spotifyScopes = []string{
	"user-read-private",
	"user-read-email",
	"user-library-read",
	"user-library-modify",
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
	"user-read-recently-played",
	"user-top-read",
	"user-follow-read",
	"user-follow-modify",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-public",
	"playlist-modify-private",
	"streaming",
	"ugc-image-upload",
}

func newSpotifyOAuth(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       spotifyScopes,
		Endpoint:     spotify.Endpoint,
	}
}

// AuthCodeURL returns the consent-screen URL carrying the CSRF state.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// spotifyProfile is the slice of GET /me used for account linking.
type spotifyProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Images      []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// HandleCallback completes the authorization-code flow: exchanges the code,
// fetches the Spotify profile, creates or links the local account, stores
// the tokens (refresh token encrypted), and mints a session JWT.
func (s *Service) HandleCallback(ctx context.Context, code string) (string, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: code exchange failed: %v", shared.ErrInvalidToken, err)
	}

	profile, err := s.fetchProfile(ctx, token.AccessToken)
	if err != nil {
		return "", err
	}

	user, err := s.linkUser(profile, token)
	if err != nil {
		return "", err
	}

	return SignToken(s.jwtSecret, user.ID, user.Email, s.tokenTTL)
}

func (s *Service) fetchProfile(ctx context.Context, accessToken string) (*spotifyProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: profile fetch failed: %v", shared.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: profile fetch status %d", shared.ErrUpstream, resp.StatusCode)
	}

	var profile spotifyProfile
	if err := json.Unmarshal(body, &profile); err != nil || profile.ID == "" {
		return nil, fmt.Errorf("%w: malformed profile response", shared.ErrUpstream)
	}
	return &profile, nil
}

// linkUser attaches the Spotify identity and tokens to the matching local
// account, creating a pre-verified password-less one when none exists.
func (s *Service) linkUser(profile *spotifyProfile, token *oauth2.Token) (*models.User, error) {
	encryptedRefresh := ""
	if token.RefreshToken != "" {
		encrypted, err := s.cipher.Encrypt(token.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		encryptedRefresh = encrypted
	}

	user, err := s.users.FindBySpotifyIDOrEmail(profile.ID, profile.Email)
	if err != nil {
		name := profile.DisplayName
		if name == "" {
			name = profile.Email
		}
		user = models.NewUser(profile.Email, name)
		user.Verified = true
		applySpotifyIdentity(user, profile, token.AccessToken, encryptedRefresh)

		if err := s.users.Create(user); err != nil {
			return nil, err
		}
		s.logger.Info("created user via spotify oauth", "user", user.ID)
		return user, nil
	}

	user.Verified = true
	applySpotifyIdentity(user, profile, token.AccessToken, encryptedRefresh)
	if err := s.users.Update(user); err != nil {
		return nil, err
	}
	s.logger.Info("linked spotify account", "user", user.ID)
	return user, nil
}

func applySpotifyIdentity(user *models.User, profile *spotifyProfile, accessToken, encryptedRefresh string) {
	spotifyID := profile.ID
	user.SpotifyID = &spotifyID
	user.SpotifyAccessToken = &accessToken
	if encryptedRefresh != "" {
		user.SpotifyRefreshToken = &encryptedRefresh
	}
	if len(profile.Images) > 0 && profile.Images[0].URL != "" {
		imageURL := profile.Images[0].URL
		user.ImageURL = &imageURL
	}
}
