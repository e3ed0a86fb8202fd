package handlers

import (
	"encoding/json"
	"net/http"

	"go-pinmap/middleware"
	"go-pinmap/services"
	"go-pinmap/utils/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errors.ErrInvalidInput
	}
	return nil
}

// workspaceOf returns the workspace resolved by ClientMiddleware, writing an
// error response when there is none.
func workspaceOf(w http.ResponseWriter, r *http.Request) (*services.Workspace, bool) {
	ws, ok := middleware.WorkspaceFrom(r.Context())
	if !ok {
		middleware.WriteError(w, middleware.ErrUnknownClient)
		return nil, false
	}
	return ws, true
}

// rejectInput answers a request whose body failed validation and shows the
// problem to the user.
func rejectInput(w http.ResponseWriter, ws *services.Workspace, err error) {
	if apiErr, ok := err.(*errors.APIError); ok {
		ws.Toasts.Error(apiErr.Message)
	}
	middleware.WriteError(w, err)
}
