// Package api is the HTTP surface: queue actions, snapshot reads and
// streams, OAuth, push subscriptions, and the admin endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waitroomhq/waitroom/pkg/auth"
	"github.com/waitroomhq/waitroom/pkg/captcha"
	"github.com/waitroomhq/waitroom/pkg/config"
	"github.com/waitroomhq/waitroom/pkg/coordinator"
	"github.com/waitroomhq/waitroom/pkg/events"
	"github.com/waitroomhq/waitroom/pkg/push"
	"github.com/waitroomhq/waitroom/pkg/shortcode"
	"github.com/waitroomhq/waitroom/pkg/store"
)

// Server wires the route surface over the coordinator registry and the
// supporting services.
type Server struct {
	echo *echo.Echo
	http *http.Server

	cfg        *config.Config
	store      *store.Store
	registry   *coordinator.Registry
	directory  *shortcode.Directory
	authSvc    *auth.Service
	flow       *auth.Flow
	verifier   *captcha.Verifier
	recorder   *events.Recorder
	dispatcher *push.Dispatcher
	logger     *slog.Logger
}

// NewServer builds the server and registers every route.
func NewServer(
	cfg *config.Config,
	st *store.Store,
	registry *coordinator.Registry,
	directory *shortcode.Directory,
	authSvc *auth.Service,
	flow *auth.Flow,
	verifier *captcha.Verifier,
	recorder *events.Recorder,
	dispatcher *push.Dispatcher,
) *Server {
	s := &Server{
		cfg:        cfg,
		store:      st,
		registry:   registry,
		directory:  directory,
		authSvc:    authSvc,
		flow:       flow,
		verifier:   verifier,
		recorder:   recorder,
		dispatcher: dispatcher,
		logger:     slog.With("component", "api"),
	}

	e := echo.New()
	e.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	e.Use(securityHeaders())
	e.Use(requestMetrics())

	e.GET("/healthz", s.healthHandler)
	e.GET("/metrics", func(c *echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})

	// Guest entry point: short-code link/QR target.
	e.GET("/queue/:code", s.queueRedirectHandler)

	q := e.Group("/api/queue")
	q.POST("/create", s.createQueueHandler)
	q.POST("/:code/join", s.joinHandler)
	q.POST("/:code/declare-nearby", s.declareNearbyHandler)
	q.POST("/:code/leave", s.leaveHandler)
	q.POST("/:code/advance", s.advanceHandler)
	q.POST("/:code/kick", s.kickHandler)
	q.POST("/:code/close", s.closeHandler)
	q.GET("/:code/snapshot", s.snapshotHandler)
	q.GET("/:code/party/:id", s.partyHandler)
	q.GET("/:code/connect", s.connectHandler)

	a := e.Group("/api/auth")
	a.GET("/:provider", s.authBeginHandler)
	a.POST("/:provider", s.authBeginHandler)
	// Providers may deliver the grant as a GET redirect or a POST form.
	a.GET("/:provider/callback", s.authCallbackHandler)
	a.POST("/:provider/callback", s.authCallbackHandler)
	a.POST("/exchange", s.authExchangeHandler)
	a.GET("/me", s.authMeHandler)
	a.POST("/logout", s.authLogoutHandler)

	p := e.Group("/api/push")
	p.GET("/vapid", s.vapidHandler)
	p.POST("/subscribe", s.pushSubscribeHandler)

	adm := e.Group("/api/admin")
	adm.GET("/queues", s.adminQueuesHandler)
	adm.GET("/log-level", s.adminGetLogLevelHandler)
	adm.PUT("/log-level", s.adminSetLogLevelHandler)

	s.echo = e
	return s
}

// Start begins serving on addr and blocks until the listener fails or the
// server is shut down.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: s.cfg.Server.RequestTimeout,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// coordinatorFor resolves a short code to its live coordinator.
func (s *Server) coordinatorFor(ctx context.Context, rawCode string) (*coordinator.Coordinator, error) {
	code := shortcode.Canonicalize(rawCode)
	if !shortcode.Valid(code) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "unknown queue code")
	}
	sessionID, err := s.directory.Resolve(ctx, code)
	if err != nil {
		return nil, mapError(err)
	}
	co, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, mapError(err)
	}
	return co, nil
}
