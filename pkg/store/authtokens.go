package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/waitroomhq/waitroom/pkg/models"
)

// InsertUserSession persists a login. Only the token hash ever reaches this
// layer; raw tokens stay in transit.
func (s *Store) InsertUserSession(ctx context.Context, us *models.UserSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_sessions (token_hash, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		us.TokenHash, us.UserID, us.CreatedAt, us.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert user session: %w", err)
	}
	return nil
}

// GetUserSessionUser returns the user owning an unexpired session hash.
func (s *Store) GetUserSessionUser(ctx context.Context, tokenHash string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.email_verified, u.display_name, u.avatar_url,
			u.github_id, u.google_id, u.created_at, u.updated_at
		 FROM users u
		 JOIN user_sessions us ON us.user_id = u.id
		 WHERE us.token_hash = $1 AND us.expires_at > now()`,
		tokenHash)
	return scanUser(row)
}

// DeleteUserSession removes a session by hash. Missing rows are not an
// error; logout is idempotent.
func (s *Store) DeleteUserSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete user session: %w", err)
	}
	return nil
}

// InsertOAuthState stores the one-shot row protecting an OAuth callback.
func (s *Store) InsertOAuthState(ctx context.Context, st *models.OAuthState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth_states (state, provider, platform, redirect_uri, return_to, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		st.State, st.Provider, st.Platform, nullString(st.RedirectURI), nullString(st.ReturnTo), st.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert oauth state: %w", err)
	}
	return nil
}

// ConsumeOAuthState atomically deletes and returns an unexpired state.
// Under concurrent callbacks with the same state exactly one caller gets
// the row; everyone else sees ErrNotFound.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (*models.OAuthState, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM oauth_states
		 WHERE state = $1 AND expires_at > now()
		 RETURNING state, provider, platform, redirect_uri, return_to, expires_at`,
		state)

	var st models.OAuthState
	var redirectURI, returnTo sql.NullString
	err := row.Scan(&st.State, &st.Provider, &st.Platform, &redirectURI, &returnTo, &st.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	st.RedirectURI = redirectURI.String
	st.ReturnTo = returnTo.String
	return &st, nil
}

// InsertExchangeToken stores a hash-keyed one-shot login handoff.
func (s *Store) InsertExchangeToken(ctx context.Context, t *models.ExchangeToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchange_tokens (token_hash, user_id, used, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.TokenHash, t.UserID, t.Used, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert exchange token: %w", err)
	}
	return nil
}

// RedeemExchangeToken flips used=false→true and returns the owning user id.
// The conditional update is the whole point: under N concurrent redeems of
// the same token exactly one row update succeeds.
func (s *Store) RedeemExchangeToken(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`UPDATE exchange_tokens SET used = TRUE
		 WHERE token_hash = $1 AND used = FALSE AND expires_at > now()
		 RETURNING user_id`,
		tokenHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to redeem exchange token: %w", err)
	}
	return userID, nil
}

// DeleteExpiredUserSessions purges sessions past their expiry.
func (s *Store) DeleteExpiredUserSessions(ctx context.Context) (int64, error) {
	return s.purge(ctx, `DELETE FROM user_sessions WHERE expires_at <= now()`)
}

// DeleteExpiredOAuthStates purges states that were never consumed.
func (s *Store) DeleteExpiredOAuthStates(ctx context.Context) (int64, error) {
	return s.purge(ctx, `DELETE FROM oauth_states WHERE expires_at <= now()`)
}

// DeleteSpentExchangeTokens purges redeemed and expired exchange tokens.
func (s *Store) DeleteSpentExchangeTokens(ctx context.Context) (int64, error) {
	return s.purge(ctx, `DELETE FROM exchange_tokens WHERE used OR expires_at <= now()`)
}

func (s *Store) purge(ctx context.Context, query string) (int64, error) {
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge result: %w", err)
	}
	return n, nil
}
