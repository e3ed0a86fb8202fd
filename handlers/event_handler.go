package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"go-pinmap/middleware"
	"go-pinmap/models"
	"go-pinmap/services"
	"go-pinmap/utils/errors"
)

const defaultNearbyRadiusKm = 5

type EventHandler struct {
	store      *services.EventStore
	categories []models.Category
}

type EventsResponse struct {
	Events []models.Event `json:"events"`
	Count  int            `json:"count"`
}

type NearbyEventsResponse struct {
	NearbyEvents []models.Event `json:"nearby_events"`
	Count        int            `json:"count"`
	Lat          float64        `json:"lat"`
	Lon          float64        `json:"lon"`
	Radius       float64        `json:"radius"`
}

type InterestResponse struct {
	EventID    string `json:"event_id"`
	Interested bool   `json:"interested"`
}

func NewEventHandler(store *services.EventStore, categories []models.Category) *EventHandler {
	return &EventHandler{store: store, categories: categories}
}

// List returns the workspace's event collection.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	events := ws.Session.Snapshot(r.Context()).Events
	writeJSON(w, http.StatusOK, EventsResponse{Events: events, Count: len(events)})
}

func (h *EventHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories := h.categories
	if categories == nil {
		categories = []models.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *EventHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		middleware.WriteError(w, errors.NewValidationError("lat must be a number", "lat"))
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		middleware.WriteError(w, errors.NewValidationError("lon must be a number", "lon"))
		return
	}
	radius := float64(defaultNearbyRadiusKm)
	if raw := r.URL.Query().Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			middleware.WriteError(w, errors.NewValidationError("radius must be a positive number of kilometres", "radius"))
			return
		}
	}
	if !(models.LatLng{Lat: lat, Lng: lon}).Valid() {
		middleware.WriteError(w, errors.NewValidationError("Coordinates out of range", "lat", "lon"))
		return
	}

	events, err := h.store.Nearby(r.Context(), lat, lon, radius)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NearbyEventsResponse{
		NearbyEvents: events,
		Count:        len(events),
		Lat:          lat,
		Lon:          lon,
		Radius:       radius,
	})
}

// Interest toggles the current user's interest in the event.
func (h *EventHandler) Interest(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	eventID := mux.Vars(r)["id"]
	interested, err := ws.Session.ToggleInterest(r.Context(), eventID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InterestResponse{EventID: eventID, Interested: interested})
}

// Focus centres the map on the event's marker and opens its popup.
func (h *EventHandler) Focus(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	if err := ws.Map.FocusEvent(mux.Vars(r)["id"]); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Map.Snapshot())
}
