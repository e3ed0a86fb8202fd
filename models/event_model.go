package models

import (
	"strings"
	"time"
)

type Event struct {
	ID              string    `json:"id" bson:"_id"`
	Title           string    `json:"title" bson:"title"`
	Description     string    `json:"description" bson:"description"`
	Date            string    `json:"date" bson:"date"`
	Time            string    `json:"time" bson:"time"`
	Category        string    `json:"category" bson:"category"`
	Lat             float64   `json:"lat" bson:"lat"`
	Lng             float64   `json:"lng" bson:"lng"`
	Location        GeoPoint  `json:"-" bson:"location"`
	CreatorID       string    `json:"creator_id" bson:"creator_id"`
	CreatorName     string    `json:"creator_name" bson:"creator_name"`
	InterestedUsers []string  `json:"interested_users" bson:"interested_users"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}

func (e Event) Position() LatLng {
	return LatLng{Lat: e.Lat, Lng: e.Lng}
}

// MissingFields lists every required field that is blank, in form order.
func (e Event) MissingFields() []string {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"title", e.Title},
		{"description", e.Description},
		{"date", e.Date},
		{"time", e.Time},
		{"category", e.Category},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Category is an entry of the event category catalog.
type Category struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
	Color string `json:"color" yaml:"color"`
}
