package e2e

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waitroomhq/waitroom/pkg/api"
	"github.com/waitroomhq/waitroom/pkg/auth"
	"github.com/waitroomhq/waitroom/pkg/store"
)

func TestExchangeTokenSingleWinner(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	user := ts.seedUser("winner@waitroom.test")
	raw, err := ts.authSvc.MintExchangeToken(context.Background(), user.ID)
	require.NoError(t, err)

	const redeemers = 3
	results := make([]int, redeemers)
	tokens := make([]string, redeemers)

	var wg sync.WaitGroup
	for i := range redeemers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out api.ExchangeResponse
			resp := ts.do(http.MethodPost, "/api/auth/exchange",
				api.ExchangeRequest{Token: raw}, nil, &out)
			results[i] = resp.StatusCode
			tokens[i] = out.SessionToken
		}()
	}
	wg.Wait()

	won := 0
	for i, code := range results {
		switch code {
		case http.StatusOK:
			won++
			assert.NotEmpty(t, tokens[i])
		case http.StatusUnauthorized:
			assert.Empty(t, tokens[i])
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, won, "exactly one redeem must win")

	// The winning session token works against /me.
	var winner string
	for i, code := range results {
		if code == http.StatusOK {
			winner = tokens[i]
		}
	}
	var me map[string]any
	resp := ts.do(http.MethodGet, "/api/auth/me", nil,
		map[string]string{"Authorization": "Bearer " + winner}, &me)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, user.ID, me["id"])

	// Only the hash of the session token is persisted.
	_, err = ts.store.GetUserSessionUser(context.Background(), winner)
	assert.ErrorIs(t, err, store.ErrNotFound)
	stored, err := ts.store.GetUserSessionUser(context.Background(), auth.HashToken(winner))
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
}

func TestExchangeTokenRejectsGarbage(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/auth/exchange",
		api.ExchangeRequest{Token: "never-minted"}, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHostTokenForgeryRejected(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "Locked", MaxGuests: 5})
	ts.join(created.Code, "Alice", 1)

	// Flip the final character of the MAC portion.
	forged := []byte(created.HostAuthToken)
	last := len(forged) - 1
	if forged[last] == 'a' {
		forged[last] = 'b'
	} else {
		forged[last] = 'a'
	}
	resp := ts.do(http.MethodPost, "/api/queue/"+created.Code+"/advance",
		api.AdvanceRequest{}, hostHeaders(string(forged)), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Splice a valid MAC from another queue onto this queue's session id.
	other := ts.createQueue(api.CreateQueueRequest{EventName: "Other", MaxGuests: 5})
	otherMAC := other.HostAuthToken[strings.LastIndex(other.HostAuthToken, ".")+1:]
	spliced := created.SessionID + "." + otherMAC
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/advance",
		api.AdvanceRequest{}, hostHeaders(spliced), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A missing credential is unauthorized rather than forbidden.
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/advance",
		api.AdvanceRequest{}, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The untampered token still works.
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/advance",
		api.AdvanceRequest{}, hostHeaders(created.HostAuthToken), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOwnerSessionCanActAsHost(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	user := ts.seedUser("owner@waitroom.test")
	session, err := ts.authSvc.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + session}

	var created api.CreateQueueResponse
	resp := ts.do(http.MethodPost, "/api/queue/create",
		api.CreateQueueRequest{EventName: "Owner Run", MaxGuests: 5}, bearer, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ts.join(created.Code, "Alice", 1)

	// No host cookie or header, just the owner's session.
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/advance",
		api.AdvanceRequest{}, bearer, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A different logged-in user is not the owner.
	stranger := ts.seedUser("stranger@waitroom.test")
	strangerSession, err := ts.authSvc.CreateSession(context.Background(), stranger.ID)
	require.NoError(t, err)
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/advance",
		api.AdvanceRequest{}, map[string]string{"Authorization": "Bearer " + strangerSession}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRequiresAuthQueue(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "Members Only", MaxGuests: 5, RequiresAuth: true})

	resp := ts.do(http.MethodPost, "/api/queue/"+created.Code+"/join",
		api.JoinQueueRequest{Name: "Anon", Size: intp(1)}, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	user := ts.seedUser("member@waitroom.test")
	session, err := ts.authSvc.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)

	var joined api.JoinQueueResponse
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/join",
		api.JoinQueueRequest{Name: "Member", Size: intp(1)},
		map[string]string{"Authorization": "Bearer " + session}, &joined)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The same account cannot hold two live spots in one queue.
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/join",
		api.JoinQueueRequest{Name: "Member Again", Size: intp(1)},
		map[string]string{"Authorization": "Bearer " + session}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHostTokenRoundTripProperty(t *testing.T) {
	t.Parallel()

	token := auth.HostToken("secret", "sess-123")
	assert.True(t, auth.VerifyHostToken("secret", token, "sess-123"))
	assert.False(t, auth.VerifyHostToken("secret", token, "sess-456"))
	assert.False(t, auth.VerifyHostToken("other", token, "sess-123"))
}

func TestLogoutClearsSession(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	user := ts.seedUser("leaver@waitroom.test")
	session, err := ts.authSvc.CreateSession(context.Background(), user.ID)
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + session}

	resp := ts.do(http.MethodPost, "/api/auth/logout", nil, bearer, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(http.MethodGet, "/api/auth/me", nil, bearer, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRoutesAcceptGetAndPost(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	// Begin bounces to the provider on either method.
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		resp := ts.do(method, "/api/auth/github", nil, nil, nil)
		require.Equal(t, http.StatusFound, resp.StatusCode, method)
		assert.Contains(t, resp.Header.Get("Location"), "github.com")
	}

	// A form-POST callback with an unknown state lands on the app's error
	// page instead of a JSON error.
	body := strings.NewReader("code=abc&state=never-issued")
	req, err := http.NewRequest(http.MethodPost, ts.http.URL+"/api/auth/github/callback", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "auth=error")
}

func TestShortLinkRedirectsToApp(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "Walk Ups", MaxGuests: 5})

	resp := ts.do(http.MethodGet, "/queue/"+strings.ToLower(created.Code), nil, nil, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, ts.cfg.Server.AppBaseURL+"/?code="+created.Code, resp.Header.Get("Location"))
}
