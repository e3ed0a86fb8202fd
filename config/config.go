package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"go-pinmap/models"
)

type Config struct {
	Server struct {
		Addr            string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		IdleTimeout     time.Duration
		ShutdownTimeout time.Duration
		AllowedOrigins  []string
		PublicURL       string
	}
	Mongo struct {
		URI      string
		Database string
	}
	Redis struct {
		Addr string
		DB   int
	}
	Auth struct {
		JWTSecret  string
		SessionTTL time.Duration
	}
	Geocoder struct {
		BaseURL   string
		UserAgent string
		Timeout   time.Duration
		Rate      float64
	}
	CategoriesFile   string
	WorkspaceIdleTTL time.Duration
	LogLevel         string
}

// Load reads .env when present and builds the configuration from the
// environment. JWT_SECRET is the only setting without a default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Server.Addr = getEnv("SERVER_ADDR", ":8080")
	cfg.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second)
	cfg.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	cfg.Server.IdleTimeout = getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	cfg.Server.ShutdownTimeout = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)
	cfg.Server.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"})
	cfg.Server.PublicURL = strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/")

	cfg.Mongo.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	cfg.Mongo.Database = getEnv("MONGODB_DATABASE", "pinmap")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)

	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth.SessionTTL = getEnvAsDuration("SESSION_TTL", 24*time.Hour)

	cfg.Geocoder.BaseURL = strings.TrimRight(getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"), "/")
	cfg.Geocoder.UserAgent = getEnv("GEOCODER_USER_AGENT", "go-pinmap/1.0")
	cfg.Geocoder.Timeout = getEnvAsDuration("GEOCODER_TIMEOUT", 10*time.Second)
	cfg.Geocoder.Rate = getEnvAsFloat("GEOCODER_RATE", 1)

	cfg.CategoriesFile = getEnv("CATEGORIES_FILE", "./data/categories.yaml")
	cfg.WorkspaceIdleTTL = getEnvAsDuration("WORKSPACE_IDLE_TTL", 2*time.Hour)
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	return cfg, nil
}

type categoryFile struct {
	Categories []models.Category `yaml:"categories"`
}

// LoadCategories reads the category catalog. A missing file yields an empty
// catalog, which disables the category membership check.
func LoadCategories(path string) ([]models.Category, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse categories %s: %w", path, err)
	}
	seen := make(map[string]bool)
	for _, c := range file.Categories {
		if c.Key == "" {
			return nil, fmt.Errorf("parse categories %s: entry without key", path)
		}
		if seen[c.Key] {
			return nil, fmt.Errorf("parse categories %s: duplicate key %q", path, c.Key)
		}
		seen[c.Key] = true
	}
	return file.Categories, nil
}

// NewLogger builds the JSON production logger used across the service.
func NewLogger(level string) (*zap.Logger, error) {
	var logLevel zapcore.Level
	switch level {
	case "debug":
		logLevel = zap.DebugLevel
	case "warn":
		logLevel = zap.WarnLevel
	case "error":
		logLevel = zap.ErrorLevel
	default:
		logLevel = zap.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(logLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build()
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvAsInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
