package handlers

import (
	"net/http"

	"go-pinmap/middleware"
	"go-pinmap/models"
	"go-pinmap/services"
)

type WizardHandler struct{}

type searchRequest struct {
	Query string `json:"query"`
}

type SubmitResponse struct {
	Event  models.Event         `json:"event"`
	Wizard services.WizardState `json:"wizard"`
}

func NewWizardHandler() *WizardHandler {
	return &WizardHandler{}
}

// step runs a wizard operation and answers with the resulting state.
func step(w http.ResponseWriter, r *http.Request, op func(*services.Wizard) (services.WizardState, error)) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	st, err := op(ws.Wizard)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *WizardHandler) Open(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, ws.Wizard.Open())
}

func (h *WizardHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Wizard.State())
}

func (h *WizardHandler) Close(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Wizard.Close())
}

func (h *WizardHandler) Details(w http.ResponseWriter, r *http.Request) {
	var input services.Details
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	step(w, r, func(wz *services.Wizard) (services.WizardState, error) {
		return wz.UpdateDetails(input)
	})
}

func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	step(w, r, func(wz *services.Wizard) (services.WizardState, error) {
		return wz.Next(r.Context())
	})
}

func (h *WizardHandler) Prev(w http.ResponseWriter, r *http.Request) {
	step(w, r, (*services.Wizard).Prev)
}

// Location selects a point picked on the map.
func (h *WizardHandler) Location(w http.ResponseWriter, r *http.Request) {
	var input pointRequest
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := services.ValidateStruct(input, "Please select a location for your event"); err != nil {
		middleware.WriteError(w, err)
		return
	}
	step(w, r, func(wz *services.Wizard) (services.WizardState, error) {
		return wz.SelectLocation(models.LatLng{Lat: *input.Lat, Lng: *input.Lng})
	})
}

func (h *WizardHandler) CurrentLocation(w http.ResponseWriter, r *http.Request) {
	step(w, r, func(wz *services.Wizard) (services.WizardState, error) {
		return wz.UseCurrentLocation(r.Context())
	})
}

func (h *WizardHandler) Search(w http.ResponseWriter, r *http.Request) {
	var input searchRequest
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	step(w, r, func(wz *services.Wizard) (services.WizardState, error) {
		return wz.SearchAddress(r.Context(), input.Query)
	})
}

func (h *WizardHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	event, err := ws.Wizard.Submit(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{Event: *event, Wizard: ws.Wizard.State()})
}
