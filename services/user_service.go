package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"go-pinmap/models"
	"go-pinmap/utils/errors"
)

const profileCacheTTL = 24 * time.Hour

type MongoConfig struct {
	URI        string
	Database   string
	JWTSecret  string
	SessionTTL time.Duration
	PublicURL  string
}

// MongoBackend implements Backend on MongoDB, with Redis holding sessions,
// cached profiles and the geo index of events.
type MongoBackend struct {
	client      *mongo.Client
	accounts    *mongo.Collection
	users       *mongo.Collection
	events      *mongo.Collection
	redisClient *redis.Client
	jwtSecret   string
	sessionTTL  time.Duration
	publicURL   string
	mailer      Mailer
	logger      *zap.Logger
}

func NewMongoBackend(ctx context.Context, cfg MongoConfig, redisClient *redis.Client, mailer Mailer, logger *zap.Logger) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connection failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	logger.Info("Connected to MongoDB", zap.String("database", cfg.Database))

	db := client.Database(cfg.Database)
	b := &MongoBackend{
		client:      client,
		accounts:    db.Collection("accounts"),
		users:       db.Collection("users"),
		events:      db.Collection("events"),
		redisClient: redisClient,
		jwtSecret:   cfg.JWTSecret,
		sessionTTL:  cfg.SessionTTL,
		publicURL:   strings.TrimRight(cfg.PublicURL, "/"),
		mailer:      mailer,
		logger:      logger,
	}
	if b.sessionTTL <= 0 {
		b.sessionTTL = 24 * time.Hour
	}

	_, err = b.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "confirm_token", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		logger.Warn("Failed to create account indexes", zap.Error(err))
	}
	if _, err := b.events.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: 1}}}); err != nil {
		logger.Warn("Failed to create event index", zap.Error(err))
	}

	if err := b.SyncGeoIndex(ctx); err != nil {
		logger.Warn("Failed to rebuild event geo index", zap.Error(err))
	}
	return b, nil
}

func (b *MongoBackend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

// GetProfile returns the stored profile, creating it on first fetch for an
// account that has none yet.
func (b *MongoBackend) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if raw, err := b.redisClient.Get(ctx, "user:"+userID).Result(); err == nil {
		var p models.Profile
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			return &p, nil
		}
		b.logger.Warn("Dropping undecodable cached profile", zap.String("user_id", userID))
	}

	var profile models.Profile
	err := b.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&profile)
	if err == mongo.ErrNoDocuments {
		var acct models.Account
		if err := b.accounts.FindOne(ctx, bson.M{"_id": userID}).Decode(&acct); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, errors.ErrNotFound
			}
			return nil, errors.Wrap(err, "DB_ERROR", "Failed to load account", http.StatusInternalServerError)
		}
		if err := b.ensureProfile(ctx, acct.ID, displayName(acct, "")); err != nil {
			return nil, err
		}
		err = b.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&profile)
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to load profile", http.StatusInternalServerError)
	}

	if raw, err := json.Marshal(profile); err == nil {
		b.redisClient.Set(ctx, "user:"+userID, raw, profileCacheTTL)
	}
	return &profile, nil
}

// UpdateProfile applies update atomically. List changes use $addToSet and
// $pull, so a list may be added to or pulled from in one call but not both.
func (b *MongoBackend) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error {
	if update.Empty() {
		return nil
	}
	doc := bson.M{}
	if update.Name != nil {
		doc["$set"] = bson.M{"name": *update.Name}
	}
	add, pull := bson.M{}, bson.M{}
	for field, change := range map[string][2][]string{
		"created_events":    {update.AddCreated, update.RemoveCreated},
		"interested_events": {update.AddInterested, update.RemoveInterested},
	} {
		if len(change[0]) > 0 && len(change[1]) > 0 {
			return errors.NewAPIError("INVALID_INPUT", "Cannot add to and remove from "+field+" at once", http.StatusBadRequest)
		}
		if len(change[0]) > 0 {
			add[field] = bson.M{"$each": change[0]}
		}
		if len(change[1]) > 0 {
			pull[field] = bson.M{"$in": change[1]}
		}
	}
	if len(add) > 0 {
		doc["$addToSet"] = add
	}
	if len(pull) > 0 {
		doc["$pull"] = pull
	}

	res, err := b.users.UpdateOne(ctx, bson.M{"_id": userID}, doc)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to update profile", http.StatusInternalServerError)
	}
	if res.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	if err := b.redisClient.Del(ctx, "user:"+userID).Err(); err != nil {
		b.logger.Warn("Failed to invalidate cached profile", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// ensureProfile inserts the profile row if it is missing and leaves an
// existing one untouched.
func (b *MongoBackend) ensureProfile(ctx context.Context, userID, name string) error {
	_, err := b.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"name":              name,
			"created_events":    []string{},
			"interested_events": []string{},
		}},
		options.Update().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to create profile", http.StatusInternalServerError)
	}
	return nil
}

func displayName(acct models.Account, pending string) string {
	if name := strings.TrimSpace(pending); name != "" {
		return name
	}
	if name := strings.TrimSpace(acct.PendingName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(acct.Email, "@")
	return local
}
