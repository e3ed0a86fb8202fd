package models

import "math"

type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

// LatLng is a WGS84 position as the map widget reports it.
type LatLng struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Valid reports whether both coordinates are finite and within range.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Point converts to a GeoJSON point; GeoJSON orders longitude first.
func (p LatLng) Point() GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{p.Lng, p.Lat}}
}
