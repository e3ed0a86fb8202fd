package models

import (
	"reflect"
	"time"
)

// Account is the authentication record. It exists before the profile does.
type Account struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Confirmed    bool      `json:"confirmed" bson:"confirmed"`
	ConfirmToken string    `json:"-" bson:"confirm_token,omitempty"`
	PendingName  string    `json:"-" bson:"pending_name,omitempty"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// Profile is the stored user row. The list fields are loosely typed because
// stored documents are not guaranteed to hold arrays there.
type Profile struct {
	ID               string `json:"id" bson:"_id"`
	Name             string `json:"name" bson:"name"`
	CreatedEvents    any    `json:"created_events" bson:"created_events"`
	InterestedEvents any    `json:"interested_events" bson:"interested_events"`
}

// User is the signed-in identity held by a workspace. A zero ID means guest.
type User struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	CreatedEvents    []string `json:"created_events"`
	InterestedEvents []string `json:"interested_events"`
}

func AnonymousUser() User {
	return User{CreatedEvents: []string{}, InterestedEvents: []string{}}
}

func (u User) IsGuest() bool {
	return u.ID == ""
}

func (u User) HasCreated(eventID string) bool {
	return containsID(u.CreatedEvents, eventID)
}

func (u User) IsInterested(eventID string) bool {
	return containsID(u.InterestedEvents, eventID)
}

// Clone returns a copy that shares no slices with u.
func (u User) Clone() User {
	u.CreatedEvents = append([]string{}, u.CreatedEvents...)
	u.InterestedEvents = append([]string{}, u.InterestedEvents...)
	return u
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// AddID appends id unless already present.
func AddID(ids []string, id string) []string {
	if containsID(ids, id) {
		return ids
	}
	return append(ids, id)
}

// RemoveID returns ids without any occurrence of id.
func RemoveID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// IDList coerces a stored list field into a set of ids. Anything that is not
// a list yields an empty set; non-string and blank elements are dropped.
func IDList(v any) []string {
	ids := []string{}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return ids
	}
	for i := 0; i < rv.Len(); i++ {
		el := rv.Index(i)
		if el.Kind() == reflect.Interface {
			el = el.Elem()
		}
		if !el.IsValid() || el.Kind() != reflect.String || el.String() == "" {
			continue
		}
		ids = AddID(ids, el.String())
	}
	return ids
}
