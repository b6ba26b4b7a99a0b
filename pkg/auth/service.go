package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/waitroomhq/waitroom/pkg/config"
	"github.com/waitroomhq/waitroom/pkg/models"
	"github.com/waitroomhq/waitroom/pkg/store"
)

var (
	// ErrInvalidSession is returned for unknown or expired session tokens.
	ErrInvalidSession = errors.New("invalid session")

	// ErrInvalidExchange is returned when an exchange token is unknown,
	// expired, or already redeemed.
	ErrInvalidExchange = errors.New("invalid exchange token")
)

// Service owns user sessions and exchange tokens. OAuth lives in Flow,
// which calls back into the service to issue sessions.
type Service struct {
	store *store.Store
	cfg   config.AuthConfig
}

// NewService creates the auth service.
func NewService(st *store.Store, cfg config.AuthConfig) *Service {
	return &Service{store: st, cfg: cfg}
}

// CreateSession issues a fresh login for the user and returns the raw
// token. Only the SHA-256 hash is persisted.
func (s *Service) CreateSession(ctx context.Context, userID string) (string, error) {
	raw, err := NewToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	us := &models.UserSession{
		TokenHash: HashToken(raw),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.store.InsertUserSession(ctx, us); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return raw, nil
}

// ValidateSession resolves a raw token to its user. Expired and unknown
// tokens both come back as ErrInvalidSession.
func (s *Service) ValidateSession(ctx context.Context, raw string) (*models.User, error) {
	if raw == "" {
		return nil, ErrInvalidSession
	}
	u, err := s.store.GetUserSessionUser(ctx, HashToken(raw))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate session: %w", err)
	}
	return u, nil
}

// DeleteSession logs out by hash. Unknown tokens are a successful no-op.
func (s *Service) DeleteSession(ctx context.Context, raw string) error {
	return s.store.DeleteUserSession(ctx, HashToken(raw))
}

// MintExchangeToken creates a one-shot cross-origin login handoff and
// returns the raw token for the redirect URL.
func (s *Service) MintExchangeToken(ctx context.Context, userID string) (string, error) {
	raw, err := NewToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	t := &models.ExchangeToken{
		TokenHash: HashToken(raw),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ExchangeTTL),
	}
	if err := s.store.InsertExchangeToken(ctx, t); err != nil {
		return "", fmt.Errorf("failed to mint exchange token: %w", err)
	}
	return raw, nil
}

// RedeemExchangeToken consumes a one-shot token and issues a session for
// its user. The store's conditional update guarantees a single winner
// under concurrent redeems; every other caller gets ErrInvalidExchange.
func (s *Service) RedeemExchangeToken(ctx context.Context, raw string) (string, *models.User, error) {
	if raw == "" {
		return "", nil, ErrInvalidExchange
	}
	userID, err := s.store.RedeemExchangeToken(ctx, HashToken(raw))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrInvalidExchange
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to redeem exchange token: %w", err)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load exchanged user: %w", err)
	}
	sessionToken, err := s.CreateSession(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	return sessionToken, user, nil
}

// IsAdmin reports whether the user's email is on the configured admin
// list, matched case-insensitively.
func (s *Service) IsAdmin(u *models.User) bool {
	if u == nil || u.Email == nil {
		return false
	}
	for _, admin := range s.cfg.AdminEmails {
		if strings.EqualFold(admin, *u.Email) {
			return true
		}
	}
	return false
}

// HostSecret exposes the host-cookie signing secret for the HTTP layer.
func (s *Service) HostSecret() string {
	return s.cfg.HostSecret
}

// HostCookieMaxAge exposes the host cookie lifetime.
func (s *Service) HostCookieMaxAge() time.Duration {
	return s.cfg.HostCookieMaxAge
}
