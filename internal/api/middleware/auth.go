package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// contextKey is an unexported type used for context keys to avoid collisions.
type contextKey string

const (
	// UserIDKey is the context key for the authenticated user ID.
	UserIDKey contextKey = "user_id"
	// WorkspaceIDKey is the context key for the workspace ID.
	WorkspaceIDKey contextKey = "workspace_id"
	// PermissionsKey is the context key for the caller's permission set.
	PermissionsKey contextKey = "permissions"
	// AllowAllKey is the context key for the caller's permission-bypass flag.
	AllowAllKey contextKey = "allow_all"
)

// Error codes used within middleware responses.
const (
	errCodeUnauthorized = "unauthorized"
)

// clockSkewSeconds is the tolerance in seconds applied to both the `exp`
// and `nbf` JWT claims to account for clock drift between servers.
const clockSkewSeconds = 30

// GetUserID extracts the user ID from the request context.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetWorkspaceID extracts the workspace ID from the request context.
func GetWorkspaceID(ctx context.Context) string {
	v, _ := ctx.Value(WorkspaceIDKey).(string)
	return v
}

// GetPermissions extracts the caller's granted permission set from the
// request context.
func GetPermissions(ctx context.Context) map[string]bool {
	v, _ := ctx.Value(PermissionsKey).(map[string]bool)
	return v
}

// GetAllowAll reports whether the caller bypasses per-row permission checks.
func GetAllowAll(ctx context.Context) bool {
	v, _ := ctx.Value(AllowAllKey).(bool)
	return v
}

// AuthMiddleware validates JWT tokens from the Authorization header.
type AuthMiddleware struct {
	secretKey string
	devMode   bool
}

// NewAuthMiddleware creates a new AuthMiddleware.
// When devMode is true, the middleware also accepts X-Dev-User-ID and
// X-Dev-Workspace-ID headers as a convenience bypass, granting AllowAll.
func NewAuthMiddleware(secretKey string, devMode bool) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: secretKey,
		devMode:   devMode,
	}
}

// Authenticate returns an http.Handler middleware that validates JWT bearer
// tokens. In development mode, the middleware also accepts X-Dev-User-ID and
// X-Dev-Workspace-ID headers as a convenience bypass.
func (am *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// --- Development bypass -------------------------------------------
		if am.devMode {
			// Block dev bypass in production even if devMode was misconfigured.
			if env := os.Getenv("APP_ENV"); env == "production" {
				slog.Error("dev mode bypass attempted in production environment",
					"remote_addr", r.RemoteAddr,
				)
			} else {
				devUser := r.Header.Get("X-Dev-User-ID")
				devWorkspace := r.Header.Get("X-Dev-Workspace-ID")
				if devUser != "" && devWorkspace != "" {
					ctx := context.WithValue(r.Context(), UserIDKey, devUser)
					ctx = context.WithValue(ctx, WorkspaceIDKey, devWorkspace)
					ctx = context.WithValue(ctx, AllowAllKey, true)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
		}

		// --- Extract bearer token ----------------------------------------
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "invalid authorization header format")
			return
		}
		token := parts[1]

		// --- Decode and validate JWT -------------------------------------
		claims, err := am.validateJWT(token)
		if err != nil {
			slog.Warn("JWT validation failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "invalid or expired token")
			return
		}

		userID, _ := claims["sub"].(string)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "token missing subject claim")
			return
		}

		workspaceID, _ := claims["workspace_id"].(string)
		if workspaceID == "" {
			writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "token missing workspace_id claim")
			return
		}

		permissions := make(map[string]bool)
		if raw, ok := claims["permissions"].([]interface{}); ok {
			for _, p := range raw {
				if name, ok := p.(string); ok {
					permissions[name] = true
				}
			}
		}
		allowAll, _ := claims["allow_all"].(bool)

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, WorkspaceIDKey, workspaceID)
		ctx = context.WithValue(ctx, PermissionsKey, permissions)
		ctx = context.WithValue(ctx, AllowAllKey, allowAll)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// jwtClaims is a minimal representation of the JWT payload.
type jwtClaims map[string]interface{}

// validateJWT performs HS256 signature verification and basic claim checks
// against the configured secret key.
func (am *AuthMiddleware) validateJWT(tokenStr string) (jwtClaims, error) {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed JWT: expected 3 parts, got %d", len(parts))
	}

	headerB64, payloadB64, signatureB64 := parts[0], parts[1], parts[2]

	// --- Decode header to check algorithm --------------------------------
	headerBytes, err := base64.RawURLEncoding.DecodeString(headerB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT header: %w", err)
	}
	var header map[string]interface{}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse JWT header: %w", err)
	}
	alg, _ := header["alg"].(string)
	if alg != "HS256" {
		return nil, fmt.Errorf("unsupported JWT algorithm: %s", alg)
	}

	// --- Verify HMAC-SHA256 signature ------------------------------------
	signingInput := headerB64 + "." + payloadB64
	mac := hmac.New(sha256.New, []byte(am.secretKey))
	mac.Write([]byte(signingInput))
	expectedSig := mac.Sum(nil)

	actualSig, err := base64.RawURLEncoding.DecodeString(signatureB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT signature: %w", err)
	}

	if !hmac.Equal(expectedSig, actualSig) {
		return nil, fmt.Errorf("JWT signature verification failed")
	}

	// --- Decode payload --------------------------------------------------
	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT payload: %w", err)
	}
	var claims jwtClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse JWT payload: %w", err)
	}

	// --- Validate standard claims ----------------------------------------
	now := time.Now().Unix()

	if exp, ok := claims["exp"].(float64); ok {
		if int64(exp)+clockSkewSeconds < now {
			return nil, fmt.Errorf("token expired")
		}
	}

	if nbf, ok := claims["nbf"].(float64); ok {
		if int64(nbf) > now+clockSkewSeconds {
			return nil, fmt.Errorf("token not yet valid")
		}
	}

	return claims, nil
}
