package services

import (
	"context"

	"go.uber.org/zap"

	"go-pinmap/models"
	"go-pinmap/utils/errors"
)

// UserList names one of the event id lists kept on a user's profile.
type UserList string

const (
	ListCreated    UserList = "created_events"
	ListInterested UserList = "interested_events"
)

// EventStore passes event and profile-list operations through to the
// backend. Failures come back as RemoteError; retrying is up to the caller.
type EventStore struct {
	backend Backend
	logger  *zap.Logger
}

func NewEventStore(backend Backend, logger *zap.Logger) *EventStore {
	return &EventStore{backend: backend, logger: logger}
}

func (s *EventStore) Create(ctx context.Context, event models.Event) (*models.Event, error) {
	created, err := s.backend.CreateEvent(ctx, event)
	if err != nil {
		s.logger.Error("Failed to create event", zap.String("title", event.Title), zap.Error(err))
		return nil, errors.NewRemoteError("create event", err)
	}
	return created, nil
}

func (s *EventStore) List(ctx context.Context) ([]models.Event, error) {
	events, err := s.backend.ListEvents(ctx)
	if err != nil {
		s.logger.Error("Failed to list events", zap.Error(err))
		return nil, errors.NewRemoteError("list events", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

func (s *EventStore) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]models.Event, error) {
	events, err := s.backend.NearbyEvents(ctx, lat, lng, radiusKm)
	if err != nil {
		s.logger.Error("Failed to search nearby events", zap.Error(err))
		return nil, errors.NewRemoteError("nearby events", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

func (s *EventStore) SetInterest(ctx context.Context, eventID, userID string, interested bool) error {
	if err := s.backend.SetEventInterest(ctx, eventID, userID, interested); err != nil {
		s.logger.Error("Failed to set interest",
			zap.String("event_id", eventID),
			zap.String("user_id", userID),
			zap.Bool("interested", interested),
			zap.Error(err))
		return errors.NewRemoteError("update interest", err)
	}
	return nil
}

// SetListMembership adds eventID to, or removes it from, one list on the
// user's profile. Only the single id is written.
func (s *EventStore) SetListMembership(ctx context.Context, userID string, list UserList, eventID string, member bool) error {
	ids := []string{eventID}
	var update ProfileUpdate
	switch {
	case list == ListCreated && member:
		update.AddCreated = ids
	case list == ListCreated:
		update.RemoveCreated = ids
	case list == ListInterested && member:
		update.AddInterested = ids
	case list == ListInterested:
		update.RemoveInterested = ids
	default:
		return errors.NewAPIError("INVALID_INPUT", "Unknown profile list "+string(list), errors.ErrInvalidInput.Status)
	}
	if err := s.backend.UpdateProfile(ctx, userID, update); err != nil {
		s.logger.Error("Failed to update user list",
			zap.String("user_id", userID),
			zap.String("list", string(list)),
			zap.String("event_id", eventID),
			zap.Bool("member", member),
			zap.Error(err))
		return errors.NewRemoteError("update profile", err)
	}
	return nil
}
