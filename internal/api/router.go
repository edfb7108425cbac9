package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/knesgoda/opql-toolkit/internal/api/middleware"
)

// RouterConfig holds all dependencies required to build the API router.
// Handler fields that are nil will receive a default "not implemented"
// handler, allowing the router to be constructed incrementally as features
// are built out.
type RouterConfig struct {
	// AllowedOrigins for CORS. Use ["*"] during development.
	AllowedOrigins []string

	// DevMode enables development conveniences such as auth bypass headers.
	DevMode bool

	// AuthSecretKey is the JWT HS256 signing secret.
	AuthSecretKey string

	// Handlers -----------------------------------------------------------------

	// HealthHandler serves GET /v1/health.
	HealthHandler http.Handler

	// ExecuteHandler serves POST /v1/query.
	ExecuteHandler http.Handler
	// ExplainHandler serves POST /v1/query/explain.
	ExplainHandler http.Handler
	// BuildHandler serves POST /v1/query/build.
	BuildHandler http.Handler
	// FromTreeHandler serves POST /v1/query/from-tree.
	FromTreeHandler http.Handler
	// JQLHandler serves POST /v1/query/jql.
	JQLHandler http.Handler
	// NLHandler serves POST /v1/query/nl.
	NLHandler http.Handler
}

// NewRouter builds a fully-configured *mux.Router with all routes and the
// middleware chain applied.
func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	// ---- Global middleware (applied to every route) -----------------------
	// Order matters: outermost runs first.
	r.Use(middleware.RecoveryMiddleware)
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.BodyLimitMiddleware)

	// ---- API v1 subrouter ------------------------------------------------
	v1 := r.PathPrefix("/v1").Subrouter()

	// ---- Public routes (no auth) -----------------------------------------
	v1.Handle("/health", handlerOrStub(cfg.HealthHandler)).Methods(http.MethodGet, http.MethodOptions)

	// ---- Authenticated routes --------------------------------------------
	auth := v1.NewRoute().Subrouter()
	authMW := middleware.NewAuthMiddleware(cfg.AuthSecretKey, cfg.DevMode)
	workspaceMW := middleware.NewWorkspaceMiddleware()
	auth.Use(authMW.Authenticate)
	auth.Use(workspaceMW.RequireWorkspace)

	auth.Handle("/query", handlerOrStub(cfg.ExecuteHandler)).Methods(http.MethodPost, http.MethodOptions)
	auth.Handle("/query/explain", handlerOrStub(cfg.ExplainHandler)).Methods(http.MethodPost, http.MethodOptions)
	auth.Handle("/query/build", handlerOrStub(cfg.BuildHandler)).Methods(http.MethodPost, http.MethodOptions)
	auth.Handle("/query/from-tree", handlerOrStub(cfg.FromTreeHandler)).Methods(http.MethodPost, http.MethodOptions)
	auth.Handle("/query/jql", handlerOrStub(cfg.JQLHandler)).Methods(http.MethodPost, http.MethodOptions)
	auth.Handle("/query/nl", handlerOrStub(cfg.NLHandler)).Methods(http.MethodPost, http.MethodOptions)

	return r
}

// handlerOrStub returns the provided handler if non-nil, otherwise a stub
// that responds with 501 Not Implemented.
func handlerOrStub(h http.Handler) http.Handler {
	if h != nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Error(w, http.StatusNotImplemented, "not_implemented", "this endpoint is not yet implemented")
	})
}
