package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/waitroomhq/waitroom/pkg/models"
)

const userColumns = `id, email, email_verified, display_name, avatar_url, github_id, google_id, created_at, updated_at`

// providerColumn maps a provider name to its id column. Callers must pass a
// known provider; the column name is interpolated into SQL.
func providerColumn(provider string) (string, error) {
	switch provider {
	case models.ProviderGitHub:
		return "github_id", nil
	case models.ProviderGoogle:
		return "google_id", nil
	}
	return "", fmt.Errorf("unknown oauth provider %q", provider)
}

// CreateUser inserts a new account row.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, email_verified, display_name, avatar_url, github_id, google_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.EmailVerified, u.DisplayName, u.AvatarURL, u.GitHubID, u.GoogleID, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser loads an account by id.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByProviderID loads the account attached to a provider identity.
func (s *Store) GetUserByProviderID(ctx context.Context, provider, providerID string) (*models.User, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+col+` = $1`, providerID)
	return scanUser(row)
}

// GetUserByVerifiedEmail finds an account whose verified email matches,
// case-insensitively. Used to link a new provider identity to an existing
// account.
func (s *Store) GetUserByVerifiedEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) AND email_verified`, email)
	return scanUser(row)
}

// LinkProvider attaches a provider identity to an existing account.
func (s *Store) LinkProvider(ctx context.Context, userID, provider, providerID string) error {
	col, err := providerColumn(provider)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+col+` = $1, updated_at = $2 WHERE id = $3`,
		providerID, time.Now(), userID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to link provider: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read link result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserProfile refreshes profile fields from a fresh provider login.
func (s *Store) UpdateUserProfile(ctx context.Context, userID string, displayName, avatarURL string, email *string, emailVerified bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET display_name = $1, avatar_url = $2, email = COALESCE($3, email),
			email_verified = $4, updated_at = $5
		 WHERE id = $6`,
		displayName, avatarURL, email, emailVerified, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var email, githubID, googleID sql.NullString
	err := row.Scan(&u.ID, &email, &u.EmailVerified, &u.DisplayName, &u.AvatarURL,
		&githubID, &googleID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if email.Valid {
		u.Email = &email.String
	}
	if githubID.Valid {
		u.GitHubID = &githubID.String
	}
	if googleID.Valid {
		u.GoogleID = &googleID.String
	}
	return &u, nil
}
