package services

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"

	"go.uber.org/zap"

	"go-pinmap/models"
	"go-pinmap/utils/errors"
)

const (
	DefaultZoom  = 13
	FocusZoom    = 15
	MarkerEvent  = "event"
	MarkerSelect = "selection"
)

// DefaultCenter is used whenever the device position is unknown.
var DefaultCenter = models.LatLng{Lat: 51.505, Lng: -0.09}

type Marker struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Position models.LatLng `json:"position"`
	Category string        `json:"category,omitempty"`
	Color    string        `json:"color,omitempty"`
	Popup    string        `json:"popup,omitempty"`
}

type MapState struct {
	Center    models.LatLng `json:"center"`
	Zoom      int           `json:"zoom"`
	Selecting bool          `json:"selecting"`
	Selection *Marker       `json:"selection,omitempty"`
	Markers   []Marker      `json:"markers"`
	OpenPopup string        `json:"open_popup,omitempty"`
}

var popupTemplate = template.Must(template.New("popup").Parse(`<div class="event-popup">
<h3>{{.Event.Title}}</h3>
<p>{{.Event.Description}}</p>
<p><strong>When:</strong> {{.Event.Date}} at {{.Event.Time}}<br>
<strong>Category:</strong> {{.Event.Category}}<br>
<strong>Created by:</strong> {{.Event.CreatorName}}</p>
{{- if .ShowButton}}
<button class="interest-btn{{if .Interested}} interested{{end}}" data-event-id="{{.Event.ID}}">{{if .Interested}}Remove Interest{{else}}Show Interest{{end}}</button>
{{- end}}
</div>`))

// MapView models what the map widget shows for one client: the view, the
// single location-selection marker and one marker per event.
type MapView struct {
	mu        sync.Mutex
	center    models.LatLng
	zoom      int
	selecting bool
	selection *Marker
	markers   []Marker
	openPopup string
	colors    map[string]string
	onClick   []func(models.LatLng) error
	logger    *zap.Logger
}

func NewMapView(categories []models.Category, logger *zap.Logger) *MapView {
	colors := make(map[string]string, len(categories))
	for _, c := range categories {
		colors[c.Key] = c.Color
	}
	return &MapView{
		center:  models.LatLng{},
		zoom:    2,
		markers: []Marker{},
		colors:  colors,
		logger:  logger,
	}
}

func (m *MapView) CenterOn(lat, lng float64, zoom int) error {
	p := models.LatLng{Lat: lat, Lng: lng}
	if !p.Valid() {
		return errors.NewValidationError("Coordinates out of range", "lat", "lng")
	}
	if zoom < 0 || zoom > 19 {
		return errors.NewValidationError("Zoom must be between 0 and 19", "zoom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = p
	m.zoom = zoom
	return nil
}

func (m *MapView) CenterOnDefault() {
	m.mu.Lock()
	m.center = DefaultCenter
	m.zoom = DefaultZoom
	m.mu.Unlock()
}

// PlaceSelectionMarker moves the selection marker, creating it on first use.
func (m *MapView) PlaceSelectionMarker(lat, lng float64) error {
	p := models.LatLng{Lat: lat, Lng: lng}
	if !p.Valid() {
		return errors.NewValidationError("Coordinates out of range", "lat", "lng")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selection == nil {
		m.selection = &Marker{ID: "selection", Kind: MarkerSelect}
	}
	m.selection.Position = p
	return nil
}

func (m *MapView) HideSelectionMarker() {
	m.mu.Lock()
	m.selection = nil
	m.mu.Unlock()
}

// RenderEventMarkers drops every event marker and draws one per event.
// viewer decides the popup's interest button.
func (m *MapView) RenderEventMarkers(events []models.Event, viewer models.User) {
	markers := make([]Marker, 0, len(events))
	for _, e := range events {
		if !e.Position().Valid() {
			m.logger.Warn("Skipping event with invalid coordinates",
				zap.String("event_id", e.ID),
				zap.Float64("lat", e.Lat),
				zap.Float64("lng", e.Lng))
			continue
		}
		popup, err := renderPopup(e, viewer)
		if err != nil {
			m.logger.Error("Failed to render popup", zap.String("event_id", e.ID), zap.Error(err))
			continue
		}
		markers = append(markers, Marker{
			ID:       e.ID,
			Kind:     MarkerEvent,
			Position: e.Position(),
			Category: e.Category,
			Color:    m.colors[e.Category],
			Popup:    popup,
		})
	}

	m.mu.Lock()
	m.markers = markers
	if m.openPopup != "" && !hasMarker(markers, m.openPopup) {
		m.openPopup = ""
	}
	m.mu.Unlock()
}

func (m *MapView) ClearEventMarkers() {
	m.mu.Lock()
	m.markers = []Marker{}
	m.openPopup = ""
	m.mu.Unlock()
}

// OnMapClick registers cb for clicks made while selection mode is active.
// cb returns an error when it rejects the click.
func (m *MapView) OnMapClick(cb func(models.LatLng) error) {
	m.mu.Lock()
	m.onClick = append(m.onClick, cb)
	m.mu.Unlock()
}

func (m *MapView) SetSelectionMode(on bool) {
	m.mu.Lock()
	m.selecting = on
	m.mu.Unlock()
}

// Click dispatches a map click. It reports whether any callback accepted it;
// when every callback rejected it the first rejection is returned.
func (m *MapView) Click(lat, lng float64) (bool, error) {
	p := models.LatLng{Lat: lat, Lng: lng}
	if !p.Valid() {
		return false, errors.NewValidationError("Coordinates out of range", "lat", "lng")
	}
	m.mu.Lock()
	if !m.selecting {
		m.mu.Unlock()
		return false, nil
	}
	callbacks := append([]func(models.LatLng) error{}, m.onClick...)
	m.mu.Unlock()

	var firstErr error
	handled := false
	for _, cb := range callbacks {
		if err := cb(p); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		handled = true
	}
	if handled {
		return true, nil
	}
	return false, firstErr
}

// FocusEvent flies to an event marker and opens its popup.
func (m *MapView) FocusEvent(eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mk := range m.markers {
		if mk.ID == eventID {
			m.center = mk.Position
			m.zoom = FocusZoom
			m.openPopup = eventID
			return nil
		}
	}
	return errors.ErrNotFound
}

func (m *MapView) Snapshot() MapState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := MapState{
		Center:    m.center,
		Zoom:      m.zoom,
		Selecting: m.selecting,
		Markers:   append([]Marker{}, m.markers...),
		OpenPopup: m.openPopup,
	}
	if m.selection != nil {
		sel := *m.selection
		st.Selection = &sel
	}
	return st
}

type Feature struct {
	Type       string          `json:"type"`
	Geometry   models.GeoPoint `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// GeoJSON renders the marker layer, selection marker last.
func (m *MapView) GeoJSON() FeatureCollection {
	st := m.Snapshot()
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(st.Markers)+1)}
	all := st.Markers
	if st.Selection != nil {
		all = append(all, *st.Selection)
	}
	for _, mk := range all {
		props := map[string]any{"id": mk.ID, "kind": mk.Kind}
		if mk.Category != "" {
			props["category"] = mk.Category
		}
		if mk.Color != "" {
			props["color"] = mk.Color
		}
		if mk.Popup != "" {
			props["popup"] = mk.Popup
		}
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   mk.Position.Point(),
			Properties: props,
		})
	}
	return fc
}

func renderPopup(e models.Event, viewer models.User) (string, error) {
	var buf bytes.Buffer
	err := popupTemplate.Execute(&buf, struct {
		Event      models.Event
		ShowButton bool
		Interested bool
	}{
		Event:      e,
		ShowButton: !viewer.IsGuest() && e.CreatorID != viewer.ID,
		Interested: viewer.IsInterested(e.ID),
	})
	if err != nil {
		return "", fmt.Errorf("render popup for %s: %w", e.ID, err)
	}
	return buf.String(), nil
}

func hasMarker(markers []Marker, id string) bool {
	for _, mk := range markers {
		if mk.ID == id {
			return true
		}
	}
	return false
}
