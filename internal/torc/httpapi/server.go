package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/nrel/torc/internal/torc/action"
	"github.com/nrel/torc/internal/torc/auth"
	"github.com/nrel/torc/internal/torc/broadcast"
	"github.com/nrel/torc/internal/torc/claim"
	"github.com/nrel/torc/internal/torc/dependency"
	"github.com/nrel/torc/internal/torc/runcontroller"
	"github.com/nrel/torc/internal/torc/statemachine"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torclog"
)

// Server holds every core component the HTTP handlers need. It has no
// business logic of its own: each handler validates the request, calls into
// one core package, and renders the result or error.
type Server struct {
	Store    storage.Storage
	Resolver *dependency.Resolver
	Actions  *action.Engine
	Events   *broadcast.Broadcaster
	SM       *statemachine.Engine
	RunCtl   *runcontroller.Controller
	Claim    *claim.Engine
	Auth     auth.Authenticator
	Log      *torclog.Logger
	validate *validator.Validate

	// reinitFlight collapses concurrent reinitialize calls against the same
	// workflow into a single recomputation of its blocking graph, keyed by
	// workflow id. Reinitialize already takes the workflow's exclusive lock
	// inside WithTx, so correctness does not depend on this; it only saves
	// the redundant resolver/action work a thundering herd would otherwise
	// each pay for serially behind that lock.
	reinitFlight singleflight.Group
}

// NewServer wires a Server from already-constructed core components (see
// cmd/torcd for the concrete wiring).
func NewServer(store storage.Storage, resolver *dependency.Resolver, actions *action.Engine, events *broadcast.Broadcaster, sm *statemachine.Engine, runCtl *runcontroller.Controller, claimEngine *claim.Engine, authenticator auth.Authenticator, log *torclog.Logger) *Server {
	return &Server{
		Store: store, Resolver: resolver, Actions: actions, Events: events,
		SM: sm, RunCtl: runCtl, Claim: claimEngine, Auth: authenticator, Log: log,
		validate: validator.New(),
	}
}

// Router builds the chi mux: one sub-router per entity family under
// /api/v1, matching spec §6's operation set exactly.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Use(s.authenticate)

	r.Route("/api/v1/workflows", func(r chi.Router) {
		s.mountWorkflows(r)
	})
	r.Get("/metrics", promHandler)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Log.Debugw("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
