package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Account and session errors
	ErrIncorrectCredentials = fmt.Errorf("incorrect credentials")
	ErrNotVerified          = fmt.Errorf("account not verified")
	ErrInvalidCode          = fmt.Errorf("invalid verification code")
	ErrInvalidResetToken    = fmt.Errorf("invalid or expired reset token")
	ErrEmailTaken           = fmt.Errorf("email already registered")
	ErrUserNotFound         = fmt.Errorf("user not found")
	ErrInvalidToken         = fmt.Errorf("invalid session token")

	// Spotify gateway errors
	ErrNotConnected   = fmt.Errorf("user not connected to spotify")
	ErrSessionExpired = fmt.Errorf("spotify session expired")
	ErrRateLimited    = fmt.Errorf("rate limited by spotify")
	ErrUpstream       = fmt.Errorf("spotify request failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
