// Package api exposes the Conduct engine over HTTP: a small REST surface
// for job submission and management plus a Server-Sent Events stream for
// live job logs. Caller identity arrives from the fronting auth layer as
// a header; the api package trusts it and scopes every operation to it.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/conducthq/conduct/engine"
)

// DefaultIdentityHeader carries the caller's user id, set by the
// fronting auth proxy.
const DefaultIdentityHeader = "X-User-ID"

const defaultPingInterval = 15 * time.Second

// API serves the Conduct HTTP surface.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger

	identityHeader string
	pingInterval   time.Duration
	metrics        http.Handler
}

// Option configures the API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithIdentityHeader overrides the header the identity middleware reads
// the caller's user id from.
func WithIdentityHeader(name string) Option {
	return func(a *API) { a.identityHeader = name }
}

// WithPingInterval sets the SSE keepalive interval.
func WithPingInterval(d time.Duration) Option {
	return func(a *API) { a.pingInterval = d }
}

// WithMetricsHandler mounts the given handler at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) { a.metrics = h }
}

// New creates an API serving the given engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:            eng,
		logger:         slog.Default(),
		identityHeader: DefaultIdentityHeader,
		pingInterval:   defaultPingInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled router.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", a.health)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(a.identity)
		r.Post("/jobs", a.submitJob)
		r.Get("/jobs", a.listJobs)
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", a.getJob)
			r.Delete("/", a.deleteJob)
			r.Post("/cancel", a.cancelJob)
			r.Get("/stream", a.streamJob)
		})
	})
	return r
}

// identity extracts the caller's user id from the configured header and
// stores it in the request context. Requests without one are rejected:
// the auth layer in front always sets it for authenticated traffic.
func (a *API) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(a.identityHeader)
		if owner == "" {
			writeErrorMessage(w, http.StatusUnauthorized, "missing caller identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), owner)))
	})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Store().Ping(r.Context()); err != nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
