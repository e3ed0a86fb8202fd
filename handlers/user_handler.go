package handlers

import (
	"net/http"

	"go-pinmap/middleware"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// Profile lists the events the current user created and the ones they are
// interested in.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	view, err := ws.Session.Profile(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
