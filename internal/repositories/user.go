package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/novaplayer/api/internal/models"
	"github.com/novaplayer/api/internal/shared"
)

const userColumns = `id, sequence, email, name, password_hash, verified,
	verification_code, reset_token, reset_token_expiry,
	spotify_id, spotify_access_token, spotify_refresh_token,
	image_url, created_at, updated_at, deleted_at`

// UserRepository persists [models.User] rows.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user with a generated ID and sequence.
// Returns [shared.ErrEmailTaken] when the email is already registered.
func (r *UserRepository) Create(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "users")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	user.ID = shared.GenerateID()
	user.Sequence = sequence

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		user.ID, user.Sequence, user.Email, user.Name, user.PasswordHash, user.Verified,
		user.VerificationCode, user.ResetToken, user.ResetTokenExpiry,
		user.SpotifyID, user.SpotifyAccessToken, user.SpotifyRefreshToken,
		user.ImageURL, user.CreatedAt, user.UpdatedAt, user.DeletedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: %s", shared.ErrEmailTaken, user.Email)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID, excluding soft-deleted users.
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	return r.getWhere("id = ?", id)
}

// GetByEmail retrieves a user by email, excluding soft-deleted users.
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	return r.getWhere("email = ?", email)
}

// GetByResetToken retrieves the user holding the given password-reset token.
func (r *UserRepository) GetByResetToken(token string) (*models.User, error) {
	return r.getWhere("reset_token = ?", token)
}

// FindBySpotifyIDOrEmail retrieves the user matching either identifier,
// used to link an OAuth identity to an existing account.
func (r *UserRepository) FindBySpotifyIDOrEmail(spotifyID, email string) (*models.User, error) {
	return r.getWhere("(spotify_id = ? OR email = ?)", spotifyID, email)
}

func (r *UserRepository) getWhere(clause string, args ...any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + clause + ` AND deleted_at IS NULL`

	user, err := scanUser(r.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return user, nil
}

// Update writes all mutable fields of the user row. Last write wins.
func (r *UserRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET email = ?, name = ?, password_hash = ?, verified = ?,
			verification_code = ?, reset_token = ?, reset_token_expiry = ?,
			spotify_id = ?, spotify_access_token = ?, spotify_refresh_token = ?,
			image_url = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		user.Email, user.Name, user.PasswordHash, user.Verified,
		user.VerificationCode, user.ResetToken, user.ResetTokenExpiry,
		user.SpotifyID, user.SpotifyAccessToken, user.SpotifyRefreshToken,
		user.ImageURL, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return requireRow(result, user.ID)
}

// UpdateSpotifyTokens stores a fresh access token and, when the upstream
// rotated it, the new encrypted refresh token. Pass nil to keep the stored
// refresh token.
func (r *UserRepository) UpdateSpotifyTokens(id, accessToken string, encryptedRefresh *string) error {
	now := time.Now().UTC()

	var result sql.Result
	var err error
	if encryptedRefresh != nil {
		result, err = r.db.Exec(
			`UPDATE users SET spotify_access_token = ?, spotify_refresh_token = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
			accessToken, *encryptedRefresh, now, id,
		)
	} else {
		result, err = r.db.Exec(
			`UPDATE users SET spotify_access_token = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
			accessToken, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update spotify tokens: %w", err)
	}

	return requireRow(result, id)
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*models.User, error) {
	var (
		user             models.User
		passwordHash     sql.NullString
		verificationCode sql.NullString
		resetToken       sql.NullString
		resetTokenExpiry sql.NullTime
		spotifyID        sql.NullString
		accessToken      sql.NullString
		refreshToken     sql.NullString
		imageURL         sql.NullString
		deletedAt        sql.NullTime
	)

	err := row.Scan(
		&user.ID, &user.Sequence, &user.Email, &user.Name, &passwordHash, &user.Verified,
		&verificationCode, &resetToken, &resetTokenExpiry,
		&spotifyID, &accessToken, &refreshToken,
		&imageURL, &user.CreatedAt, &user.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	user.PasswordHash = stringPtr(passwordHash)
	user.VerificationCode = stringPtr(verificationCode)
	user.ResetToken = stringPtr(resetToken)
	user.SpotifyID = stringPtr(spotifyID)
	user.SpotifyAccessToken = stringPtr(accessToken)
	user.SpotifyRefreshToken = stringPtr(refreshToken)
	user.ImageURL = stringPtr(imageURL)
	if resetTokenExpiry.Valid {
		user.ResetTokenExpiry = &resetTokenExpiry.Time
	}
	if deletedAt.Valid {
		user.DeletedAt = &deletedAt.Time
	}

	return &user, nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
