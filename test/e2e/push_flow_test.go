package e2e

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waitroomhq/waitroom/pkg/api"
	"github.com/waitroomhq/waitroom/pkg/events"
	"github.com/waitroomhq/waitroom/pkg/push"
)

// subscribe registers a push endpoint for a party through the API.
func (ts *testServer) subscribe(code, partyID, endpoint string) {
	ts.t.Helper()
	req := api.SubscribeRequest{Code: code, PartyID: partyID, Endpoint: endpoint}
	req.Keys.P256dh = "BFakeP256dhKey"
	req.Keys.Auth = "FakeAuthSecret"
	resp := ts.do(http.MethodPost, "/api/push/subscribe", req, nil, nil)
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)
}

func TestPositionThresholdPushesOnce(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "Busy Night", MaxGuests: 20})

	parties := make([]api.JoinQueueResponse, 0, 8)
	for i := range 8 {
		parties = append(parties, ts.join(created.Code, fmt.Sprintf("Guest %d", i+1), 1))
	}
	tail := parties[7]

	const endpoint = "https://push.example/tail"
	ts.subscribe(created.Code, tail.PartyID, endpoint)

	// Subscribing to a live party sends the confirmation push.
	require.Eventually(t, func() bool {
		return ts.sender.count(endpoint) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// Serve the whole line; the tail crosses position 5, position 2, and
	// is finally called.
	for range 8 {
		resp := ts.do(http.MethodPost, "/api/queue/"+created.Code+"/advance",
			api.AdvanceRequest{}, hostHeaders(created.HostAuthToken), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// join_confirm + pos_5 + pos_2 + called, each exactly once.
	require.Eventually(t, func() bool {
		return ts.sender.count(endpoint) == 4
	}, 3*time.Second, 20*time.Millisecond)

	// The durable ledger backs the same at-most-once guarantee.
	ctx := context.Background()
	for _, kind := range []events.NotificationKind{events.KindPos5, events.KindPos2, events.KindCalled} {
		require.Eventually(t, func() bool {
			ok, err := ts.store.HasPushEvent(ctx, created.SessionID, tail.PartyID, string(kind))
			return err == nil && ok
		}, 3*time.Second, 20*time.Millisecond, "missing push_sent row for %s", kind)
	}

	// Settle and confirm no duplicate deliveries trickled in.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 4, ts.sender.count(endpoint))
}

func TestGoneEndpointIsPruned(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "Flaky Phones", MaxGuests: 5})
	joined := ts.join(created.Code, "Alice", 1)

	const endpoint = "https://push.example/gone"
	ts.sender.setErr(endpoint, push.ErrSubscriptionGone)

	ts.subscribe(created.Code, joined.PartyID, endpoint)

	// The confirmation push hits the dead endpoint and prunes it.
	require.Eventually(t, func() bool {
		subs, err := ts.store.ListSubscriptionsForParty(context.Background(), created.SessionID, joined.PartyID)
		return err == nil && len(subs) == 0
	}, 3*time.Second, 20*time.Millisecond)
	assert.Zero(t, ts.sender.count(endpoint))
}

func TestVAPIDUnconfiguredReturns404(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp := ts.do(http.MethodGet, "/api/push/vapid", nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
