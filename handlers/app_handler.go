package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"go-pinmap/middleware"
	"go-pinmap/services"
)

type AppHandler struct {
	registry *services.Registry
	logger   *zap.Logger
}

type InitResponse struct {
	ClientID string            `json:"client_id"`
	State    services.AppState `json:"state"`
	Map      services.MapState `json:"map"`
	Toasts   []services.Toast  `json:"toasts"`
}

type StateResponse struct {
	State  services.AppState    `json:"state"`
	Wizard services.WizardState `json:"wizard"`
	Map    services.MapState    `json:"map"`
}

func NewAppHandler(registry *services.Registry, logger *zap.Logger) *AppHandler {
	return &AppHandler{registry: registry, logger: logger}
}

// Init creates a workspace for a new client and restores the session of the
// bearer token, if one is sent.
func (h *AppHandler) Init(w http.ResponseWriter, r *http.Request) {
	ws := h.registry.Create()
	w.Header().Set(middleware.ClientIDHeader, ws.ID)

	state, err := ws.Session.Initialize(r.Context(), middleware.BearerToken(r))
	if err != nil {
		h.logger.Warn("Workspace initialization failed", zap.String("client_id", ws.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, InitResponse{
		ClientID: ws.ID,
		State:    state,
		Map:      ws.Map.Snapshot(),
		Toasts:   ws.Toasts.Active(),
	})
}

func (h *AppHandler) State(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{
		State:  ws.Session.Snapshot(r.Context()),
		Wizard: ws.Wizard.State(),
		Map:    ws.Map.Snapshot(),
	})
}

func (h *AppHandler) Toasts(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"toasts": ws.Toasts.Active()})
}
