package services

import (
	"math"
	"strings"
	"testing"

	"go-pinmap/models"
	"go-pinmap/utils/errors"
)

func threeEvents() []models.Event {
	return []models.Event{
		{ID: "a", Title: "A", Category: "social", Lat: 51.5, Lng: -0.1, CreatorID: "u1"},
		{ID: "b", Title: "B", Category: "sports", Lat: 51.6, Lng: -0.2, CreatorID: "u2"},
		{ID: "c", Title: "C", Category: "music", Lat: 51.7, Lng: -0.3, CreatorID: "u2", InterestedUsers: []string{"u1"}},
	}
}

func TestMapRenderReplacesMarkers(t *testing.T) {
	m := NewMapView(testCategories, testLogger())
	viewer := models.User{ID: "u1"}

	m.RenderEventMarkers(threeEvents(), viewer)
	m.RenderEventMarkers(threeEvents(), viewer)

	st := m.Snapshot()
	if len(st.Markers) != 3 {
		t.Fatalf("expected 3 markers, got %d", len(st.Markers))
	}
	if st.Markers[0].Color != "#4f46e5" {
		t.Errorf("expected category colour, got %q", st.Markers[0].Color)
	}
	if st.Markers[2].Color != "" {
		t.Errorf("expected no colour for unknown category, got %q", st.Markers[2].Color)
	}
}

func TestMapRenderSkipsInvalidCoordinates(t *testing.T) {
	m := NewMapView(nil, testLogger())
	events := threeEvents()
	events[1].Lat = 123
	events[2].Lng = math.NaN()

	m.RenderEventMarkers(events, models.AnonymousUser())
	if got := len(m.Snapshot().Markers); got != 1 {
		t.Errorf("expected 1 marker, got %d", got)
	}
}

func TestMapPopupInterestButton(t *testing.T) {
	events := threeEvents()
	tests := []struct {
		name   string
		event  models.Event
		viewer models.User
		want   string
		absent bool
	}{
		{"guest sees no button", events[1], models.AnonymousUser(), "interest-btn", true},
		{"creator sees no button", events[0], models.User{ID: "u1"}, "interest-btn", true},
		{"viewer can show interest", events[1], models.User{ID: "u1"}, "Show Interest", false},
		{"interested viewer can remove", events[2], models.User{ID: "u1", InterestedEvents: []string{"c"}}, "Remove Interest", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			popup, err := renderPopup(tt.event, tt.viewer)
			if err != nil {
				t.Fatalf("renderPopup: %v", err)
			}
			if strings.Contains(popup, tt.want) == tt.absent {
				t.Errorf("popup %q: contains(%q) = %v", popup, tt.want, !tt.absent)
			}
		})
	}
}

func TestMapPopupEscapesContent(t *testing.T) {
	popup, err := renderPopup(models.Event{ID: "x", Title: "<script>alert(1)</script>"}, models.AnonymousUser())
	if err != nil {
		t.Fatalf("renderPopup: %v", err)
	}
	if strings.Contains(popup, "<script>") {
		t.Errorf("expected title to be escaped, got %q", popup)
	}
}

func TestMapSelectionMarkerIsSingle(t *testing.T) {
	m := NewMapView(nil, testLogger())
	if err := m.PlaceSelectionMarker(1, 1); err != nil {
		t.Fatalf("PlaceSelectionMarker: %v", err)
	}
	if err := m.PlaceSelectionMarker(2, 2); err != nil {
		t.Fatalf("PlaceSelectionMarker: %v", err)
	}
	fc := m.GeoJSON()
	if len(fc.Features) != 1 {
		t.Fatalf("expected one feature, got %d", len(fc.Features))
	}
	if got := fc.Features[0].Geometry.Coordinates; got[0] != 2 || got[1] != 2 {
		t.Errorf("expected marker moved to 2,2, got %v", got)
	}

	m.HideSelectionMarker()
	if m.Snapshot().Selection != nil {
		t.Errorf("expected selection hidden")
	}
	if err := m.PlaceSelectionMarker(91, 0); !errors.IsValidation(err) {
		t.Errorf("expected validation error for bad latitude, got %v", err)
	}
}

func TestMapClickOnlyInSelectionMode(t *testing.T) {
	m := NewMapView(nil, testLogger())
	var clicks []models.LatLng
	m.OnMapClick(func(p models.LatLng) error {
		clicks = append(clicks, p)
		return nil
	})

	handled, err := m.Click(10, 20)
	if err != nil || handled {
		t.Fatalf("expected click ignored outside selection mode, got %v, %v", handled, err)
	}
	m.SetSelectionMode(true)
	handled, err = m.Click(10, 20)
	if err != nil || !handled {
		t.Fatalf("expected click handled, got %v, %v", handled, err)
	}
	if len(clicks) != 1 || clicks[0] != (models.LatLng{Lat: 10, Lng: 20}) {
		t.Errorf("unexpected clicks %v", clicks)
	}
}

func TestMapClickRejected(t *testing.T) {
	m := NewMapView(nil, testLogger())
	m.OnMapClick(func(models.LatLng) error { return errors.ErrBusy })
	m.SetSelectionMode(true)

	handled, err := m.Click(10, 20)
	if handled || err != errors.ErrBusy {
		t.Fatalf("expected rejected click, got %v, %v", handled, err)
	}

	m.OnMapClick(func(models.LatLng) error { return nil })
	if handled, err := m.Click(10, 20); !handled || err != nil {
		t.Errorf("expected click accepted by the second callback, got %v, %v", handled, err)
	}
}

func TestMapFocusEvent(t *testing.T) {
	m := NewMapView(nil, testLogger())
	m.RenderEventMarkers(threeEvents(), models.AnonymousUser())

	if err := m.FocusEvent("missing"); err != errors.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := m.FocusEvent("b"); err != nil {
		t.Fatalf("FocusEvent: %v", err)
	}
	st := m.Snapshot()
	if st.OpenPopup != "b" || st.Zoom != FocusZoom || st.Center != (models.LatLng{Lat: 51.6, Lng: -0.2}) {
		t.Errorf("unexpected state after focus %+v", st)
	}

	m.RenderEventMarkers(threeEvents()[:1], models.AnonymousUser())
	if m.Snapshot().OpenPopup != "" {
		t.Errorf("expected popup closed when its marker disappears")
	}
}

func TestMapCenterOnValidates(t *testing.T) {
	m := NewMapView(nil, testLogger())
	if err := m.CenterOn(0, 0, 25); !errors.IsValidation(err) {
		t.Errorf("expected zoom validation error, got %v", err)
	}
	if err := m.CenterOn(100, 0, 10); !errors.IsValidation(err) {
		t.Errorf("expected coordinate validation error, got %v", err)
	}
	m.CenterOnDefault()
	if st := m.Snapshot(); st.Center != DefaultCenter || st.Zoom != DefaultZoom {
		t.Errorf("expected default view, got %+v", st)
	}
}

func TestMapGeoJSONPutsSelectionLast(t *testing.T) {
	m := NewMapView(testCategories, testLogger())
	m.RenderEventMarkers(threeEvents(), models.AnonymousUser())
	m.PlaceSelectionMarker(0, 0)

	fc := m.GeoJSON()
	if fc.Type != "FeatureCollection" || len(fc.Features) != 4 {
		t.Fatalf("expected 4 features, got %+v", fc)
	}
	last := fc.Features[3]
	if last.Properties["kind"] != MarkerSelect {
		t.Errorf("expected selection last, got %v", last.Properties)
	}
	first := fc.Features[0]
	if first.Geometry.Type != "Point" || first.Geometry.Coordinates[0] != -0.1 {
		t.Errorf("expected lng-first point, got %+v", first.Geometry)
	}
}
