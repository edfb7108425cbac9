package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/api"
	"github.com/knesgoda/opql-toolkit/internal/api/middleware"
	"github.com/knesgoda/opql-toolkit/internal/builder"
	"github.com/knesgoda/opql-toolkit/internal/cache"
	"github.com/knesgoda/opql-toolkit/internal/jql"
	"github.com/knesgoda/opql-toolkit/internal/nl"
	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/planner"
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/runtime"
)

// QueryHandlers wires the opql/jql/builder/nl/planner/runtime pipeline to
// HTTP. A nil Cache is legal: rate limiting and plan-describe caching are
// both skipped in that case rather than rejecting the request.
type QueryHandlers struct {
	Repo          repository.Repository
	Cache         *cache.Client
	GraphDepthCap int
	RateLimit     int
	RateWindow    time.Duration
	CacheTTL      time.Duration
}

func principalFromContext(ctx context.Context) repository.Principal {
	return repository.Principal{
		UserID:      middleware.GetUserID(ctx),
		WorkspaceID: middleware.GetWorkspaceID(ctx),
		Permissions: middleware.GetPermissions(ctx),
		AllowAll:    middleware.GetAllowAll(ctx),
	}
}

func (h *QueryHandlers) checkRateLimit(ctx context.Context, w http.ResponseWriter, p repository.Principal) bool {
	if h.Cache == nil || h.RateLimit <= 0 {
		return true
	}
	key := cache.RateLimitKey(p.WorkspaceID, p.UserID)
	allowed, err := h.Cache.CheckRateLimit(ctx, key, h.RateLimit, h.RateWindow, p.UserID+":"+time.Now().Format(time.RFC3339Nano))
	if err != nil {
		api.Error(w, http.StatusServiceUnavailable, api.ErrCodeServiceUnavail, "rate limiter unavailable")
		return false
	}
	if !allowed {
		api.Error(w, http.StatusTooManyRequests, api.ErrCodeRateLimited, "query execution rate limit exceeded")
		return false
	}
	return true
}

func writePlannerError(w http.ResponseWriter, err error) {
	var perr *planner.PlanError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case planner.ErrUnknownEntity:
			api.Error(w, http.StatusNotFound, api.ErrCodeNotFound, perr.Error())
		case planner.ErrGraphDepthExceeded, planner.ErrInvalidJoin:
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, perr.Error())
		default:
			api.Error(w, http.StatusInternalServerError, api.ErrCodeInternalError, perr.Error())
		}
		return
	}

	var rerr *runtime.RuntimeError
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case runtime.ErrCancelled:
			api.Error(w, http.StatusRequestTimeout, api.ErrCodeInvalidRequest, "query execution cancelled")
		case runtime.ErrRepositoryFailure:
			api.Error(w, http.StatusServiceUnavailable, api.ErrCodeServiceUnavail, rerr.Error())
		default:
			api.Error(w, http.StatusInternalServerError, api.ErrCodeInternalError, rerr.Error())
		}
		return
	}

	api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, err.Error())
}

// --- POST /v1/query ---------------------------------------------------------

type executeRequest struct {
	Query  string  `json:"query"`
	Cursor *string `json:"cursor,omitempty"`
}

type executeResponse struct {
	Rows           []repository.MaterializedRow `json:"rows"`
	Total          int                          `json:"total"`
	NextCursor     *string                      `json:"next_cursor,omitempty"`
	AppliedFilters []string                     `json:"applied_filters"`
	Projections    []string                     `json:"projections"`
}

func (h *QueryHandlers) Execute() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "invalid JSON body")
			return
		}
		if req.Query == "" {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "query is required")
			return
		}

		principal := principalFromContext(r.Context())
		if !h.checkRateLimit(r.Context(), w, principal) {
			return
		}

		stmt, err := opql.Parse(req.Query)
		if err != nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, err.Error())
			return
		}

		plan, err := planner.Build(r.Context(), h.Repo, stmt, planner.PlannerOptions{
			GraphDepthCap: h.GraphDepthCap,
			Cursor:        req.Cursor,
		})
		if err != nil {
			writePlannerError(w, err)
			return
		}

		result, err := plan.Execute(r.Context(), h.Repo, principal, time.Now())
		if err != nil {
			writePlannerError(w, err)
			return
		}

		api.JSON(w, http.StatusOK, executeResponse{
			Rows:           result.Rows,
			Total:          result.Total,
			NextCursor:     result.NextCursor,
			AppliedFilters: result.AppliedFilters,
			Projections:    result.Projections,
		})
	})
}

// --- POST /v1/query/explain -------------------------------------------------

type explainResponse struct {
	Describe    []string `json:"describe"`
	Projections []string `json:"projections"`
}

func (h *QueryHandlers) Explain() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "invalid JSON body")
			return
		}
		if req.Query == "" {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "query is required")
			return
		}

		stmt, err := opql.Parse(req.Query)
		if err != nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, err.Error())
			return
		}

		plan, err := planner.Build(r.Context(), h.Repo, stmt, planner.PlannerOptions{
			GraphDepthCap: h.GraphDepthCap,
			Cursor:        req.Cursor,
		})
		if err != nil {
			writePlannerError(w, err)
			return
		}

		if h.Cache != nil {
			workspaceID := middleware.GetWorkspaceID(r.Context())
			if key, err := cache.PlanKey(workspaceID, req.Query, planner.PlannerOptions{GraphDepthCap: h.GraphDepthCap, Cursor: req.Cursor}); err == nil {
				_ = h.Cache.SetPlanDescribe(r.Context(), key, plan.Describe, h.CacheTTL)
			}
		}

		api.JSON(w, http.StatusOK, explainResponse{
			Describe:    plan.Describe,
			Projections: plan.Projections,
		})
	})
}

// --- POST /v1/query/build ---------------------------------------------------

type buildRequest struct {
	Query string `json:"query"`
}

func (h *QueryHandlers) Build() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req buildRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "invalid JSON body")
			return
		}
		if req.Query == "" {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "query is required")
			return
		}

		tree, err := builder.OpqlToQuery(req.Query)
		if err != nil {
			api.ErrorWithDetails(w, http.StatusUnprocessableEntity, api.ErrCodeInvalidRequest,
				"query parsed with a fallback extraction", err.Error())
			return
		}

		api.JSON(w, http.StatusOK, tree)
	})
}

// --- POST /v1/query/from-tree ------------------------------------------------

type fromTreeRequest struct {
	Query *builder.BuilderQuery `json:"query"`
}

type fromTreeResponse struct {
	Query string `json:"query"`
}

func (h *QueryHandlers) FromTree() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req fromTreeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "invalid JSON body")
			return
		}
		if req.Query == nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "query is required")
			return
		}

		api.JSON(w, http.StatusOK, fromTreeResponse{Query: builder.QueryToOpql(req.Query)})
	})
}

// --- POST /v1/query/jql ------------------------------------------------------

type jqlRequest struct {
	JQL    string `json:"jql"`
	Source string `json:"source"`
}

type jqlResponse struct {
	Query string `json:"query"`
}

func (h *QueryHandlers) CompileJQL() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "invalid JSON body")
			return
		}
		if req.JQL == "" {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "jql is required")
			return
		}

		opqlText, _, err := jql.Compile(req.JQL, req.Source)
		if err != nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, err.Error())
			return
		}

		api.JSON(w, http.StatusOK, jqlResponse{Query: opqlText})
	})
}

// --- POST /v1/query/nl -------------------------------------------------------

type nlRequest struct {
	Text string `json:"text"`
}

func (h *QueryHandlers) InterpretNL() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req nlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "invalid JSON body")
			return
		}
		if req.Text == "" {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "text is required")
			return
		}

		tree := nl.Interpret(req.Text)
		api.JSON(w, http.StatusOK, fromTreeResponse{Query: builder.QueryToOpql(tree)})
	})
}
