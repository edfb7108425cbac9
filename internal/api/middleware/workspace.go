package middleware

import (
	"log/slog"
	"net/http"
)

// WorkspaceMiddleware ensures that every authenticated request carries a
// valid workspace context. It must be placed after AuthMiddleware in the
// middleware chain.
type WorkspaceMiddleware struct{}

// NewWorkspaceMiddleware creates a new WorkspaceMiddleware.
func NewWorkspaceMiddleware() *WorkspaceMiddleware {
	return &WorkspaceMiddleware{}
}

// RequireWorkspace returns an http.Handler middleware that reads the
// workspace ID previously set by the auth middleware and rejects the
// request with 401 Unauthorized if it is missing.
func (wm *WorkspaceMiddleware) RequireWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workspaceID := GetWorkspaceID(r.Context())
		if workspaceID == "" {
			slog.Warn("request missing workspace context",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "workspace context is required")
			return
		}

		next.ServeHTTP(w, r)
	})
}
