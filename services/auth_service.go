package services

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"go-pinmap/models"
	"go-pinmap/utils/errors"
)

const confirmationMessage = "Please check your email (including spam folder) to confirm your account."

var (
	ErrUserExists         = errors.NewAPIError("USER_EXISTS", "User already exists. Please login instead.", http.StatusConflict)
	ErrInvalidCredentials = errors.NewAPIError("INVALID_CREDENTIALS", "Invalid login credentials", http.StatusUnauthorized)
	ErrEmailNotConfirmed  = errors.NewAPIError("EMAIL_NOT_CONFIRMED", "Please confirm your email before logging in", http.StatusForbidden)
	ErrInvalidConfirm     = errors.NewAPIError("INVALID_CONFIRMATION", "Confirmation link is invalid or has already been used", http.StatusBadRequest)
)

// Mailer delivers account confirmation links.
type Mailer interface {
	SendConfirmation(ctx context.Context, email, link string) error
}

// LogMailer writes confirmation links to the log instead of sending mail.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) SendConfirmation(_ context.Context, email, link string) error {
	m.Logger.Info("Confirmation link issued", zap.String("email", email), zap.String("link", link))
	return nil
}

// SignUp creates an unconfirmed account and mails its confirmation link.
func (b *MongoBackend) SignUp(ctx context.Context, email, password, displayName string) (*SignUpResult, error) {
	email = normalizeEmail(email)

	var existing models.Account
	err := b.accounts.FindOne(ctx, bson.M{"email": email}).Decode(&existing)
	if err == nil {
		return nil, ErrUserExists
	}
	if err != mongo.ErrNoDocuments {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to look up account", http.StatusInternalServerError)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "HASH_ERROR", "failed to hash password", http.StatusInternalServerError)
	}

	acct := models.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(passwordHash),
		ConfirmToken: uuid.New().String(),
		PendingName:  strings.TrimSpace(displayName),
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := b.accounts.InsertOne(ctx, acct); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, errors.Wrap(err, "DB_ERROR", "failed to create account in database", http.StatusInternalServerError)
	}

	link := b.publicURL + "/?verification=true&token=" + url.QueryEscape(acct.ConfirmToken)
	if err := b.mailer.SendConfirmation(ctx, email, link); err != nil {
		b.logger.Error("Failed to send confirmation", zap.String("email", email), zap.Error(err))
	}

	return &SignUpResult{
		NeedsEmailConfirmation: true,
		Email:                  email,
		Message:                confirmationMessage,
	}, nil
}

// Login authenticates a confirmed account and opens a session.
func (b *MongoBackend) Login(ctx context.Context, email, password string) (*AuthSession, error) {
	var acct models.Account
	err := b.accounts.FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&acct)
	if err == mongo.ErrNoDocuments {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to look up account", http.StatusInternalServerError)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !acct.Confirmed {
		return nil, ErrEmailNotConfirmed
	}
	return b.issueSession(ctx, acct)
}

// ConfirmEmail marks the account behind confirmToken as confirmed, creates
// its profile and opens a session.
func (b *MongoBackend) ConfirmEmail(ctx context.Context, confirmToken, pendingName string) (*AuthSession, error) {
	if confirmToken == "" {
		return nil, ErrInvalidConfirm
	}
	var acct models.Account
	err := b.accounts.FindOneAndUpdate(ctx,
		bson.M{"confirm_token": confirmToken},
		bson.M{
			"$set":   bson.M{"confirmed": true},
			"$unset": bson.M{"confirm_token": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&acct)
	if err == mongo.ErrNoDocuments {
		return nil, ErrInvalidConfirm
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to confirm account", http.StatusInternalServerError)
	}

	if err := b.ensureProfile(ctx, acct.ID, displayName(acct, pendingName)); err != nil {
		return nil, err
	}
	b.logger.Info("Account confirmed", zap.String("user_id", acct.ID))
	return b.issueSession(ctx, acct)
}

// GetSession resolves a bearer token. Expired, malformed or revoked tokens
// yield no session rather than an error.
func (b *MongoBackend) GetSession(ctx context.Context, token string) (*AuthSession, error) {
	claims, ok := b.parseToken(token)
	if !ok {
		return nil, nil
	}
	userID, err := b.redisClient.Get(ctx, sessionKey(claims.ID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if userID != claims.Subject {
		return nil, nil
	}
	sess := &AuthSession{Token: token, UserID: userID, Email: claims.Email}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

// Logout revokes the session behind token.
func (b *MongoBackend) Logout(ctx context.Context, token string) error {
	claims, ok := b.parseToken(token)
	if !ok {
		return nil
	}
	return b.redisClient.Del(ctx, sessionKey(claims.ID)).Err()
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (b *MongoBackend) issueSession(ctx context.Context, acct models.Account) (*AuthSession, error) {
	now := time.Now()
	expires := now.Add(b.sessionTTL)
	claims := sessionClaims{
		Email: acct.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(b.jwtSecret))
	if err != nil {
		return nil, errors.Wrap(err, "JWT_ERROR", "Failed to generate token", http.StatusInternalServerError)
	}
	if err := b.redisClient.Set(ctx, sessionKey(claims.ID), acct.ID, b.sessionTTL).Err(); err != nil {
		return nil, errors.Wrap(err, "SESSION_ERROR", "Failed to store session", http.StatusInternalServerError)
	}
	return &AuthSession{Token: tokenString, UserID: acct.ID, Email: acct.Email, ExpiresAt: expires}, nil
}

func (b *MongoBackend) parseToken(tokenString string) (*sessionClaims, bool) {
	if tokenString == "" {
		return nil, false
	}
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.NewAPIError("INVALID_TOKEN", "Unexpected signing method", http.StatusUnauthorized)
		}
		return []byte(b.jwtSecret), nil
	})
	if err != nil || !token.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}

func sessionKey(jti string) string {
	return "session:" + jti
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
