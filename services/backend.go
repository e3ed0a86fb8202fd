package services

import (
	"context"
	"time"

	"go-pinmap/models"
)

// Backend is the persistence and authentication collaborator. Every method
// may fail with a structured error; none of them retries.
type Backend interface {
	SignUp(ctx context.Context, email, password, displayName string) (*SignUpResult, error)
	Login(ctx context.Context, email, password string) (*AuthSession, error)
	Logout(ctx context.Context, token string) error
	// GetSession returns nil without error when token carries no live session.
	GetSession(ctx context.Context, token string) (*AuthSession, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	ConfirmEmail(ctx context.Context, confirmToken, pendingName string) (*AuthSession, error)

	CreateEvent(ctx context.Context, event models.Event) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	NearbyEvents(ctx context.Context, lat, lng, radiusKm float64) ([]models.Event, error)
	SetEventInterest(ctx context.Context, eventID, userID string, interested bool) error
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error
}

type AuthSession struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SignUpResult struct {
	NeedsEmailConfirmation bool         `json:"needs_email_confirmation"`
	Email                  string       `json:"email"`
	Message                string       `json:"message"`
	Session                *AuthSession `json:"-"`
}

// ProfileUpdate carries the profile changes to apply. List changes are
// deltas so concurrent writers never drop each other's ids.
type ProfileUpdate struct {
	Name             *string
	AddCreated       []string
	RemoveCreated    []string
	AddInterested    []string
	RemoveInterested []string
}

func (u ProfileUpdate) Empty() bool {
	return u.Name == nil &&
		len(u.AddCreated) == 0 && len(u.RemoveCreated) == 0 &&
		len(u.AddInterested) == 0 && len(u.RemoveInterested) == 0
}
