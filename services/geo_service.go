package services

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"go-pinmap/models"
	"go-pinmap/utils/errors"
)

const (
	eventsGeoKey   = "events:geo"
	nearbyMaxCount = 50
)

// CreateEvent stores a new event under a backend-assigned id and adds it to
// the geo index.
func (b *MongoBackend) CreateEvent(ctx context.Context, event models.Event) (*models.Event, error) {
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now().UTC()
	event.InterestedUsers = []string{}
	event.Location = event.Position().Point()

	if _, err := b.events.InsertOne(ctx, event); err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to create event in database", http.StatusInternalServerError)
	}

	err := b.redisClient.GeoAdd(ctx, eventsGeoKey, &redis.GeoLocation{
		Name:      event.ID,
		Longitude: event.Lng,
		Latitude:  event.Lat,
	}).Err()
	if err != nil {
		b.logger.Warn("Failed to add event to geo index", zap.String("event_id", event.ID), zap.Error(err))
	}
	return &event, nil
}

func (b *MongoBackend) ListEvents(ctx context.Context) ([]models.Event, error) {
	cursor, err := b.events.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to load events", http.StatusInternalServerError)
	}
	defer cursor.Close(ctx)

	events := []models.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to decode events", http.StatusInternalServerError)
	}
	return events, nil
}

// NearbyEvents returns events within radiusKm of the point, closest first.
func (b *MongoBackend) NearbyEvents(ctx context.Context, lat, lng, radiusKm float64) ([]models.Event, error) {
	geoResults, err := b.redisClient.GeoRadius(ctx, eventsGeoKey, lng, lat, &redis.GeoRadiusQuery{
		Radius:   radiusKm,
		Unit:     "km",
		WithDist: true,
		Sort:     "ASC",
		Count:    nearbyMaxCount,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(geoResults) == 0 {
		return []models.Event{}, nil
	}

	ids := make([]string, 0, len(geoResults))
	for _, r := range geoResults {
		ids = append(ids, r.Name)
	}
	cursor, err := b.events.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to load events", http.StatusInternalServerError)
	}
	defer cursor.Close(ctx)
	var found []models.Event
	if err := cursor.All(ctx, &found); err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to decode events", http.StatusInternalServerError)
	}

	byID := make(map[string]models.Event, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}
	events := make([]models.Event, 0, len(found))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			events = append(events, e)
		}
	}
	b.logger.Debug("Nearby events", zap.Int("count", len(events)), zap.Float64("radius_km", radiusKm))
	return events, nil
}

// SetEventInterest adds or removes userID from the event's interested users.
func (b *MongoBackend) SetEventInterest(ctx context.Context, eventID, userID string, interested bool) error {
	op := "$pull"
	if interested {
		op = "$addToSet"
	}
	res, err := b.events.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{op: bson.M{"interested_users": userID}})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to update interest", http.StatusInternalServerError)
	}
	if res.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// SyncGeoIndex rebuilds the Redis geo index from the stored events.
func (b *MongoBackend) SyncGeoIndex(ctx context.Context) error {
	events, err := b.ListEvents(ctx)
	if err != nil {
		return err
	}
	if err := b.redisClient.Del(ctx, eventsGeoKey).Err(); err != nil {
		return err
	}
	locations := make([]*redis.GeoLocation, 0, len(events))
	for _, e := range events {
		if !e.Position().Valid() {
			b.logger.Warn("Skipping event with invalid coordinates", zap.String("event_id", e.ID))
			continue
		}
		locations = append(locations, &redis.GeoLocation{Name: e.ID, Longitude: e.Lng, Latitude: e.Lat})
	}
	if len(locations) > 0 {
		if err := b.redisClient.GeoAdd(ctx, eventsGeoKey, locations...).Err(); err != nil {
			return err
		}
	}
	b.logger.Info("Rebuilt event geo index", zap.Int("events", len(locations)))
	return nil
}
