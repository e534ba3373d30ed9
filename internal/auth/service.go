package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/novaplayer/api/internal/models"
	"github.com/novaplayer/api/internal/repositories"
	"github.com/novaplayer/api/internal/shared"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const (
	bcryptCost    = 10
	resetTokenTTL = time.Hour
)

// Service implements the account state machine: register → verify → login,
// plus password recovery and the Spotify OAuth flow in spotify.go.
type Service struct {
	users  *repositories.UserRepository
	cipher *shared.Cipher
	mailer Mailer
	logger *log.Logger

	jwtSecret   []byte
	tokenTTL    time.Duration
	frontendURL string

	oauth      *oauth2.Config
	profileURL string
	httpClient *http.Client

	// now is a seam for expiry tests.
	now func() time.Time
}

// ServiceOpts configures a [Service].
type ServiceOpts struct {
	Users       *repositories.UserRepository
	Cipher      *shared.Cipher
	Mailer      Mailer
	Logger      *log.Logger
	JWTSecret   string
	TokenTTL    time.Duration
	FrontendURL string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string
}

// NewService creates a [Service].
func NewService(opts ServiceOpts) *Service {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Service{
		users:       opts.Users,
		cipher:      opts.Cipher,
		mailer:      opts.Mailer,
		logger:      opts.Logger,
		jwtSecret:   []byte(opts.JWTSecret),
		tokenTTL:    opts.TokenTTL,
		frontendURL: opts.FrontendURL,
		oauth:       newSpotifyOAuth(opts.SpotifyClientID, opts.SpotifyClientSecret, opts.SpotifyRedirectURI),
		profileURL:  spotifyProfileURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		now:         time.Now,
	}
}

// Register creates an unverified account and mails the verification code.
// Returns [shared.ErrEmailTaken] when the email is already registered.
func (s *Service) Register(ctx context.Context, email, name, password string) (*models.Profile, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := verificationCode()
	if err != nil {
		return nil, err
	}

	user := models.NewUser(email, name)
	hashStr := string(hash)
	user.PasswordHash = &hashStr
	user.VerificationCode = &code

	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	// Account creation stands even if the mail bounces; the frontend
	// offers a resend.
	if err := s.mailer.SendVerificationCode(email, name, code); err != nil {
		s.logger.Warn("verification mail failed", "email", email, "err", err)
	}

	s.logger.Info("registered user", "user", user.ID)
	profile := user.Profile()
	return &profile, nil
}

// Verify marks the account verified when the code matches. The code is
// single-use: a successful verification clears it.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return shared.ErrInvalidCode
	}
	if user.Verified {
		return nil
	}
	if user.VerificationCode == nil || *user.VerificationCode != code {
		return shared.ErrInvalidCode
	}

	user.Verified = true
	user.VerificationCode = nil
	return s.users.Update(user)
}

// Login checks the credentials and returns a session token with the profile.
//
// An unknown email, an OAuth-only account, and a wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.Profile, error) {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return "", nil, shared.ErrIncorrectCredentials
	}
	if user.OAuthOnly() {
		return "", nil, shared.ErrIncorrectCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return "", nil, shared.ErrIncorrectCredentials
	}
	if !user.Verified {
		return "", nil, shared.ErrNotVerified
	}

	token, err := SignToken(s.jwtSecret, user.ID, user.Email, s.tokenTTL)
	if err != nil {
		return "", nil, err
	}

	profile := user.Profile()
	return token, &profile, nil
}

// ForgotPassword issues a reset token valid for one hour and mails the
// reset link.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return err
	}

	token := shared.GenerateID()
	expiry := s.now().Add(resetTokenTTL)
	user.ResetToken = &token
	user.ResetTokenExpiry = &expiry

	if err := s.users.Update(user); err != nil {
		return err
	}

	link := s.frontendURL + "/reset-password?token=" + token
	if err := s.mailer.SendPasswordReset(user.Email, user.Name, link); err != nil {
		return fmt.Errorf("failed to send reset link: %w", err)
	}
	return nil
}

// ResetPassword sets a new password for the account holding the token.
// Returns [shared.ErrInvalidResetToken] when the token is unknown or older
// than an hour.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	user, err := s.users.GetByResetToken(token)
	if err != nil {
		return shared.ErrInvalidResetToken
	}
	if user.ResetTokenExpiry == nil || s.now().After(*user.ResetTokenExpiry) {
		return shared.ErrInvalidResetToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	hashStr := string(hash)
	user.PasswordHash = &hashStr
	user.ResetToken = nil
	user.ResetTokenExpiry = nil

	if err := s.users.Update(user); err != nil {
		return err
	}

	s.logger.Info("password reset", "user", user.ID)
	return nil
}

// Profile returns the current account record minus secrets.
func (s *Service) Profile(userID string) (*models.Profile, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

// verificationCode draws a 6-digit code from crypto/rand.
func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
