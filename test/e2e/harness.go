// Package e2e exercises the full HTTP surface against a real Postgres
// schema: queue lifecycle, call-window timers, auth token handoff, and
// push dedup.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/waitroomhq/waitroom/pkg/api"
	"github.com/waitroomhq/waitroom/pkg/auth"
	"github.com/waitroomhq/waitroom/pkg/captcha"
	"github.com/waitroomhq/waitroom/pkg/config"
	"github.com/waitroomhq/waitroom/pkg/coordinator"
	"github.com/waitroomhq/waitroom/pkg/events"
	"github.com/waitroomhq/waitroom/pkg/models"
	"github.com/waitroomhq/waitroom/pkg/push"
	"github.com/waitroomhq/waitroom/pkg/shortcode"
	"github.com/waitroomhq/waitroom/pkg/store"
	"github.com/waitroomhq/waitroom/test/util"
)

// sentPush is one recorded fake delivery.
type sentPush struct {
	Endpoint string
	Payload  []byte
}

// fakeSender records deliveries instead of hitting a push service.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentPush
	errs map[string]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{errs: make(map[string]error)}
}

func (f *fakeSender) Send(_ context.Context, sub *models.PushSubscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[sub.Endpoint]; ok {
		return err
	}
	f.sent = append(f.sent, sentPush{Endpoint: sub.Endpoint, Payload: payload})
	return nil
}

func (f *fakeSender) setErr(endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[endpoint] = err
}

func (f *fakeSender) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.Endpoint == endpoint {
			n++
		}
	}
	return n
}

// testServer is one fully wired service instance over an isolated schema.
type testServer struct {
	t        *testing.T
	cfg      *config.Config
	store    *store.Store
	registry *coordinator.Registry
	authSvc  *auth.Service
	sender   *fakeSender
	recorder *events.Recorder
	http     *httptest.Server
}

// serverOption tweaks the config before wiring.
type serverOption func(*config.Config)

func withCallWindow(d time.Duration) serverOption {
	return func(cfg *config.Config) { cfg.Queue.CallWindow = d }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	db := util.SetupTestDatabase(t)
	st := store.New(db)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "0",
			AppBaseURL:     "http://app.test",
			AllowedOrigins: []string{"http://app.test"},
			RequestTimeout: 10 * time.Second,
		},
		Queue: config.QueueConfig{
			CallWindow:       2 * time.Minute,
			MailboxSize:      64,
			SubscriberBuffer: 8,
			IdleTTL:          time.Hour,
			WaitPrior:        5 * time.Minute,
			WaitFloor:        30 * time.Second,
			WaitCeiling:      30 * time.Minute,
		},
		Auth: config.AuthConfig{
			HostSecret:       "e2e-host-secret",
			HostCookieMaxAge: time.Hour,
			SessionTTL:       time.Hour,
			StateTTL:         10 * time.Minute,
			ExchangeTTL:      time.Minute,
			AdminEmails:      []string{"admin@waitroom.test"},
		},
		Push: config.PushConfig{QueueSize: 64},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sender := newFakeSender()
	recorder := events.NewRecorder(st, 256)
	dispatcher := push.NewDispatcher(st, recorder, sender, cfg.Push.QueueSize)
	directory := shortcode.NewDirectory(nil, st, time.Minute)
	registry := coordinator.NewRegistry(st, cfg.Queue, recorder, dispatcher)
	authSvc := auth.NewService(st, cfg.Auth)
	flow := auth.NewFlow(st, cfg.Auth, "http://api.test")
	verifier := captcha.NewVerifier("")

	srv := api.NewServer(cfg, st, registry, directory, authSvc, flow, verifier, recorder, dispatcher)
	hs := httptest.NewServer(srv.Handler())
	// Redirects (OAuth bounces, the short-link landing) are assertions,
	// not navigation.
	hs.Client().CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	t.Cleanup(func() {
		hs.Close()
		registry.Shutdown()
		dispatcher.Close()
		recorder.Close()
	})

	return &testServer{
		t:        t,
		cfg:      cfg,
		store:    st,
		registry: registry,
		authSvc:  authSvc,
		sender:   sender,
		recorder: recorder,
		http:     hs,
	}
}

// do issues one request with optional JSON body and extra headers, decodes
// a JSON response into out when out is non-nil, and returns the response.
func (ts *testServer) do(method, path string, body any, headers map[string]string, out any) *http.Response {
	ts.t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, reader)
	require.NoError(ts.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ts.http.Client().Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	if out != nil && len(raw) > 0 {
		require.NoError(ts.t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp
}

// createQueue creates a queue through the API and returns its response.
func (ts *testServer) createQueue(req api.CreateQueueRequest) api.CreateQueueResponse {
	ts.t.Helper()
	var out api.CreateQueueResponse
	resp := ts.do(http.MethodPost, "/api/queue/create", req, nil, &out)
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(ts.t, out.Code)
	require.NotEmpty(ts.t, out.HostAuthToken)
	return out
}

// join joins a queue as a guest and returns the join response.
func (ts *testServer) join(code, name string, size int) api.JoinQueueResponse {
	ts.t.Helper()
	var out api.JoinQueueResponse
	resp := ts.do(http.MethodPost, "/api/queue/"+code+"/join",
		api.JoinQueueRequest{Name: name, Size: &size}, nil, &out)
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)
	return out
}

func intp(n int) *int { return &n }

// hostHeaders carries host authority via the x-host-auth header.
func hostHeaders(token string) map[string]string {
	return map[string]string{"X-Host-Auth": token}
}

// snapshot fetches the current queue snapshot.
func (ts *testServer) snapshot(code string) models.Snapshot {
	ts.t.Helper()
	var snap models.Snapshot
	resp := ts.do(http.MethodGet, "/api/queue/"+code+"/snapshot", nil, nil, &snap)
	require.Equal(ts.t, http.StatusOK, resp.StatusCode)
	return snap
}

// seedUser inserts a user directly; OAuth providers are not reachable
// from tests, so identity rows are planted at the store layer.
func (ts *testServer) seedUser(email string) *models.User {
	ts.t.Helper()
	gh := "gh-" + email
	now := time.Now().UTC()
	u := &models.User{
		ID:            "u-" + email,
		Email:         &email,
		EmailVerified: true,
		DisplayName:   email,
		GitHubID:      &gh,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(ts.t, ts.store.CreateUser(context.Background(), u))
	return u
}
