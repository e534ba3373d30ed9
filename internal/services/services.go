package services

import (
	"time"

	"github.com/novaplayer/api/internal/models"
)

// CredentialStore is the slice of the user repository the gateway and
// domain operations need: token lookups and last-write-wins token updates.
type CredentialStore interface {
	GetByID(id string) (*models.User, error)
	UpdateSpotifyTokens(id, accessToken string, encryptedRefresh *string) error
}

// Cache entry freshness windows by resource volatility.
const (
	TTLNowPlaying   = 2 * time.Second
	TTLFollowStatus = 5 * time.Minute
	TTLCategories   = 30 * time.Minute
	TTLArtist       = time.Hour
	TTLRegion       = 24 * time.Hour
)
