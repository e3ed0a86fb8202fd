package handlers

import (
	"encoding/json"
	"net/http"

	"go-pinmap/middleware"
	"go-pinmap/models"
	"go-pinmap/services"
)

type MapHandler struct{}

type pointRequest struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required"`
}

type locationRequest struct {
	Granted bool     `json:"granted"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

type ClickResponse struct {
	Handled bool                 `json:"handled"`
	Wizard  services.WizardState `json:"wizard"`
}

func NewMapHandler() *MapHandler {
	return &MapHandler{}
}

func (h *MapHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Map.Snapshot())
}

func (h *MapHandler) GeoJSON(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ws.Map.GeoJSON())
}

// Click forwards a map click. It only has an effect while a location is
// being picked for a new event.
func (h *MapHandler) Click(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	var input pointRequest
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := services.ValidateStruct(input, "Click position is missing"); err != nil {
		middleware.WriteError(w, err)
		return
	}
	handled, err := ws.Map.Click(*input.Lat, *input.Lng)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClickResponse{Handled: handled, Wizard: ws.Wizard.State()})
}

// Location records the answer to the device location prompt.
func (h *MapHandler) Location(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	var input locationRequest
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	var pos *models.LatLng
	if input.Lat != nil && input.Lng != nil {
		pos = &models.LatLng{Lat: *input.Lat, Lng: *input.Lng}
	}
	if err := ws.Session.UpdateLocationPermission(r.Context(), input.Granted, pos); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Map.Snapshot())
}
