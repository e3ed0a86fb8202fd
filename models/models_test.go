package models

import (
	"math"
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestIDList(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"nil", nil, []string{}},
		{"string", "ev-1", []string{}},
		{"map", map[string]any{"a": 1}, []string{}},
		{"strings", []string{"a", "b"}, []string{"a", "b"}},
		{"mixed", []any{"a", 1, nil, "", "b", "a"}, []string{"a", "b"}},
		{"bson array", primitive.A{"x", "y"}, []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IDList(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("IDList(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddRemoveID(t *testing.T) {
	ids := AddID(nil, "a")
	ids = AddID(ids, "a")
	ids = AddID(ids, "b")
	if !reflect.DeepEqual(ids, []string{"a", "b"}) {
		t.Errorf("expected set semantics, got %v", ids)
	}
	ids = RemoveID(ids, "a")
	if !reflect.DeepEqual(ids, []string{"b"}) {
		t.Errorf("expected a removed, got %v", ids)
	}
	if got := RemoveID(nil, "x"); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestUserClone(t *testing.T) {
	u := User{ID: "u1", InterestedEvents: []string{"a"}}
	c := u.Clone()
	c.InterestedEvents[0] = "z"
	if u.InterestedEvents[0] != "a" {
		t.Errorf("expected clone not to share slices")
	}
	if AnonymousUser().IsGuest() != true || u.IsGuest() {
		t.Errorf("unexpected guest detection")
	}
}

func TestMissingFields(t *testing.T) {
	e := Event{Title: "Picnic", Description: " ", Time: "12:00"}
	want := []string{"description", "date", "category"}
	if got := e.MissingFields(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	full := Event{Title: "a", Description: "b", Date: "c", Time: "d", Category: "e"}
	if got := full.MissingFields(); len(got) != 0 {
		t.Errorf("expected nothing missing, got %v", got)
	}
}

func TestLatLng(t *testing.T) {
	tests := []struct {
		p    LatLng
		want bool
	}{
		{LatLng{51.5, -0.1}, true},
		{LatLng{90, 180}, true},
		{LatLng{90.1, 0}, false},
		{LatLng{0, -180.5}, false},
		{LatLng{math.NaN(), 0}, false},
		{LatLng{0, math.Inf(1)}, false},
	}
	for _, tt := range tests {
		if got := tt.p.Valid(); got != tt.want {
			t.Errorf("%v.Valid() = %v, want %v", tt.p, got, tt.want)
		}
	}
	pt := LatLng{Lat: 1, Lng: 2}.Point()
	if pt.Type != "Point" || pt.Coordinates[0] != 2 || pt.Coordinates[1] != 1 {
		t.Errorf("expected lng-first point, got %+v", pt)
	}
}
