package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waitroomhq/waitroom/pkg/config"
	"github.com/waitroomhq/waitroom/pkg/models"
	"github.com/waitroomhq/waitroom/pkg/store"
	"github.com/waitroomhq/waitroom/test/util"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st := store.New(util.SetupTestDatabase(t))
	cfg := config.AuthConfig{
		HostSecret:       testHostSecret,
		HostCookieMaxAge: 24 * time.Hour,
		SessionTTL:       14 * 24 * time.Hour,
		StateTTL:         10 * time.Minute,
		ExchangeTTL:      2 * time.Minute,
		AdminEmails:      []string{"ops@waitroom.app"},
	}
	return NewService(st, cfg), st
}

func createTestUser(t *testing.T, st *store.Store, email string) *models.User {
	t.Helper()
	now := time.Now().UTC()
	u := &models.User{
		ID:            uuid.NewString(),
		Email:         &email,
		EmailVerified: true,
		DisplayName:   "Ada",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

func TestSessionLifecycle(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createTestUser(t, st, "ada@example.com")

	raw, err := svc.CreateSession(ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	got, err := svc.ValidateSession(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	// Only the hash reaches the store: the raw token resolves nothing
	// when treated as a hash key.
	_, err = st.GetUserSessionUser(ctx, raw)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, svc.DeleteSession(ctx, raw))
	_, err = svc.ValidateSession(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateSession_Unknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ValidateSession(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = svc.ValidateSession(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestExchangeToken_SingleRedeem(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createTestUser(t, st, "ada@example.com")

	raw, err := svc.MintExchangeToken(ctx, u.ID)
	require.NoError(t, err)

	sessionToken, user, err := svc.RedeemExchangeToken(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, user.ID)

	// The issued session is live.
	got, err := svc.ValidateSession(ctx, sessionToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	// A second redeem of the same token fails.
	_, _, err = svc.RedeemExchangeToken(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidExchange)
}

func TestIsAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	ops := "OPS@waitroom.app"
	guest := "guest@example.com"
	assert.True(t, svc.IsAdmin(&models.User{Email: &ops}))
	assert.False(t, svc.IsAdmin(&models.User{Email: &guest}))
	assert.False(t, svc.IsAdmin(&models.User{}))
	assert.False(t, svc.IsAdmin(nil))
}
