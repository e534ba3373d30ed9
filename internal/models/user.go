package models

import (
	"fmt"
	"strings"
	"time"
)

// User represents an account holder.
//
// A user either registered locally (PasswordHash set, email verification
// required) or arrived through Spotify OAuth (PasswordHash nil, created
// pre-verified). Nullable columns are pointers.
type User struct {
	ID                  string
	Sequence            int
	Email               string
	Name                string
	PasswordHash        *string
	Verified            bool
	VerificationCode    *string
	ResetToken          *string
	ResetTokenExpiry    *time.Time
	SpotifyID           *string
	SpotifyAccessToken  *string
	SpotifyRefreshToken *string
	ImageURL            *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

// NewUser creates a User with timestamps set. ID and Sequence are assigned
// by the repository on insert.
func NewUser(email, name string) *User {
	now := time.Now().UTC()
	return &User{
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks required fields before persistence.
func (u *User) Validate() error {
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return fmt.Errorf("invalid email: %q", u.Email)
	}
	if u.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// OAuthOnly reports whether the account has no local password and can only
// sign in through Spotify.
func (u *User) OAuthOnly() bool {
	return u.PasswordHash == nil
}

// Connected reports whether the user has a Spotify access token on file.
func (u *User) Connected() bool {
	return u.SpotifyAccessToken != nil && *u.SpotifyAccessToken != ""
}

// Profile is the public view of a user, safe to return from the API.
type Profile struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	ImageURL  *string `json:"image"`
	SpotifyID *string `json:"spotify_id"`
	Verified  bool    `json:"verified"`
}

// Profile returns the public view of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		ImageURL:  u.ImageURL,
		SpotifyID: u.SpotifyID,
		Verified:  u.Verified,
	}
}
