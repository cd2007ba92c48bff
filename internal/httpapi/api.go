// Package httpapi is the HTTP collaborator layer: routing, request
// decoding, error mapping and the middleware chain. All domain logic
// lives in internal/auth; handlers orchestrate it inside store
// transactions.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
	"keyward.io/internal/obs"
	"keyward.io/internal/ratelimit"
	"keyward.io/internal/stream"
)

// Upstream generates a completion for a prompt. The inference route
// proxies to it after authentication and rate admission; the concrete
// client is injected by main.
type Upstream interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ReadyProbe reports readiness, pinging the database when one is
// configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the collaborators main wires together.
type Options struct {
	Store        auth.Store
	Gate         *auth.Gate
	Tokens       *auth.TokenService
	Credentials  *auth.CredentialService
	Users        *auth.UserService
	Recorder     *audit.Recorder
	Feed         *stream.Stream
	LoginLimiter ratelimit.Limiter
	Upstream     Upstream
	Log          *zap.Logger
	ReadyProbe   ReadyProbe
	Version      string
}

type API struct {
	router chi.Router

	store        auth.Store
	gate         *auth.Gate
	tokens       *auth.TokenService
	creds        *auth.CredentialService
	users        *auth.UserService
	recorder     *audit.Recorder
	feed         *stream.Stream
	loginLimiter ratelimit.Limiter
	upstream     Upstream
	log          *zap.Logger
	readyProbe   ReadyProbe
	version      string
}

func New(opts Options) *API {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	a := &API{
		router:       chi.NewRouter(),
		store:        opts.Store,
		gate:         opts.Gate,
		tokens:       opts.Tokens,
		creds:        opts.Credentials,
		users:        opts.Users,
		recorder:     opts.Recorder,
		feed:         opts.Feed,
		loginLimiter: opts.LoginLimiter,
		upstream:     opts.Upstream,
		log:          opts.Log,
		readyProbe:   opts.ReadyProbe,
		version:      opts.Version,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router

	r.Use(RequestID)
	r.Use(Logging(a.log))
	r.Use(SecurityHeaders)
	r.Use(CORS)

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Post("/auth/logout", a.handleLogout)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", a.handleListUsers)
				r.Post("/", a.handleCreateUser)
				r.Get("/{id}", a.handleGetUser)
				r.Patch("/{id}", a.handleUpdateUser)
				r.Delete("/{id}", a.handleDeactivateUser)
				r.Post("/{id}/password", a.handleRotatePassword)
			})

			r.Route("/credentials", func(r chi.Router) {
				r.Get("/", a.handleListCredentials)
				r.Post("/", a.handleCreateCredential)
				r.Post("/{id}/revoke", a.handleRevokeCredential)
			})

			r.Get("/audit", a.handleListAudit)
			r.Get("/audit/stream", a.handleAuditStream)

			r.Post("/inference/generate", a.handleGenerate)
		})
	})
}

// Handler wraps the router with body limits and metrics.
func (a *API) Handler() http.Handler {
	h := MaxBodyBytes(a.router, 1<<20)
	return obs.Instrument(a.routePattern, h)
}

// routePattern resolves the chi template for metric labels so /v1/users/7
// and /v1/users/8 share one series.
func (a *API) routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "keyward-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
