package e2e

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waitroomhq/waitroom/pkg/api"
	"github.com/waitroomhq/waitroom/pkg/models"
)

func TestCreateJoinServeFlow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "Taco Night", MaxGuests: 3})
	require.Len(t, created.Code, 6)

	a := ts.join(created.Code, "Alice", 2)
	assert.Equal(t, 1, a.Position)
	assert.Positive(t, a.EstimatedWaitMs)

	b := ts.join(created.Code, "Bob", 1)
	assert.Equal(t, 2, b.Position)

	// First advance calls the head of the line.
	var snap models.Snapshot
	resp := ts.do(http.MethodPost, "/api/queue/"+created.Code+"/advance",
		api.AdvanceRequest{}, hostHeaders(created.HostAuthToken), &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, snap.NowServing)
	assert.Equal(t, a.PartyID, snap.NowServing.ID)
	assert.Equal(t, models.PartyStatusCalled, snap.NowServing.Status)
	require.NotNil(t, snap.CallDeadline)
	assert.WithinDuration(t, time.Now().Add(ts.cfg.Queue.CallWindow), *snap.CallDeadline, 5*time.Second)
	assert.Equal(t, 1, snap.WaitingCount)

	// Second advance serves Alice and calls Bob.
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/advance",
		api.AdvanceRequest{}, hostHeaders(created.HostAuthToken), &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, snap.NowServing)
	assert.Equal(t, b.PartyID, snap.NowServing.ID)
	assert.Empty(t, snap.Waiting)

	var state api.PartyStateResponse
	resp = ts.do(http.MethodGet, "/api/queue/"+created.Code+"/party/"+a.PartyID, nil, nil, &state)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.PartyStatusServed, state.Party.Status)
}

func TestJoinQueueFull(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "One Seat", MaxGuests: 1})
	ts.join(created.Code, "Alice", 1)

	var errBody map[string]any
	resp := ts.do(http.MethodPost, "/api/queue/"+created.Code+"/join",
		api.JoinQueueRequest{Name: "Bob", Size: intp(1)}, nil, &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "queue_full", errBody["message"])
}

func TestClosedQueueRejectsMutationsButStaysReadable(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "Last Call", MaxGuests: 5})
	joined := ts.join(created.Code, "Alice", 1)

	var closed api.CloseQueueResponse
	resp := ts.do(http.MethodPost, "/api/queue/"+created.Code+"/close",
		nil, hostHeaders(created.HostAuthToken), &closed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, closed.Stats)
	assert.Equal(t, 1, closed.Stats.Remaining)

	var errBody map[string]any
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/join",
		api.JoinQueueRequest{Name: "Bob", Size: intp(1)}, nil, &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "queue_closed", errBody["message"])

	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/advance",
		api.AdvanceRequest{}, hostHeaders(created.HostAuthToken), &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	snap := ts.snapshot(created.Code)
	assert.Equal(t, models.QueueStatusClosed, snap.Status)
	require.Len(t, snap.Waiting, 1)
	assert.Equal(t, joined.PartyID, snap.Waiting[0].ID)
}

func TestSnapshotETag(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "Cache Me", MaxGuests: 5})

	snap := ts.snapshot(created.Code)
	etag := fmt.Sprintf(`"v%d"`, snap.Version)

	resp := ts.do(http.MethodGet, "/api/queue/"+created.Code+"/snapshot",
		nil, map[string]string{"If-None-Match": etag}, nil)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	ts.join(created.Code, "Alice", 1)

	resp = ts.do(http.MethodGet, "/api/queue/"+created.Code+"/snapshot",
		nil, map[string]string{"If-None-Match": etag}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, etag, resp.Header.Get("ETag"))
}

func TestDeclareNearbyAndLeave(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "Errands", MaxGuests: 5})
	joined := ts.join(created.Code, "Alice", 1)

	resp := ts.do(http.MethodPost, "/api/queue/"+created.Code+"/declare-nearby",
		api.PartyActionRequest{PartyID: joined.PartyID}, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Repeating the declaration is a no-op, not an error.
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/declare-nearby",
		api.PartyActionRequest{PartyID: joined.PartyID}, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/leave",
		api.PartyActionRequest{PartyID: joined.PartyID}, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Leaving again after the terminal transition still succeeds.
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/leave",
		api.PartyActionRequest{PartyID: joined.PartyID}, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	snap := ts.snapshot(created.Code)
	assert.Zero(t, snap.WaitingCount)
}

func TestJoinSizeSemantics(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.createQueue(api.CreateQueueRequest{EventName: "Counter", MaxGuests: 5})

	// Omitting size admits a party of one.
	var joined api.JoinQueueResponse
	resp := ts.do(http.MethodPost, "/api/queue/"+created.Code+"/join",
		api.JoinQueueRequest{Name: "Solo"}, nil, &joined)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var state api.PartyStateResponse
	resp = ts.do(http.MethodGet, "/api/queue/"+created.Code+"/party/"+joined.PartyID, nil, nil, &state)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, state.Party.Size)

	// An explicit zero is a validation error, not a default.
	resp = ts.do(http.MethodPost, "/api/queue/"+created.Code+"/join",
		api.JoinQueueRequest{Name: "Ghost", Size: intp(0)}, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownCodeReturns404(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp := ts.do(http.MethodGet, "/api/queue/ZZZZ99/snapshot", nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(http.MethodPost, "/api/queue/not-a-code/join",
		api.JoinQueueRequest{Name: "Alice", Size: intp(1)}, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
