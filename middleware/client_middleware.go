package middleware

import (
	"context"
	"net/http"
	"strings"

	"go-pinmap/services"
	"go-pinmap/utils/errors"
)

const ClientIDHeader = "X-Client-ID"

type workspaceKey struct{}

var ErrUnknownClient = errors.NewAPIError("UNKNOWN_CLIENT", "Unknown or expired client id; call /app/init first", http.StatusUnauthorized)

// ClientMiddleware resolves the caller's workspace from the X-Client-ID
// header and stores it in the request context.
func ClientMiddleware(registry *services.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(ClientIDHeader))
			if id == "" {
				WriteError(w, ErrUnknownClient)
				return
			}
			ws, ok := registry.Get(id)
			if !ok {
				WriteError(w, ErrUnknownClient)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithWorkspace(r.Context(), ws)))
		})
	}
}

func WithWorkspace(ctx context.Context, ws *services.Workspace) context.Context {
	return context.WithValue(ctx, workspaceKey{}, ws)
}

func WorkspaceFrom(ctx context.Context) (*services.Workspace, bool) {
	ws, ok := ctx.Value(workspaceKey{}).(*services.Workspace)
	return ws, ok && ws != nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}
