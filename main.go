package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go-pinmap/config"
	"go-pinmap/handlers"
	"go-pinmap/middleware"
	"go-pinmap/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer redisClient.Close()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	backend, err := services.NewMongoBackend(connectCtx, services.MongoConfig{
		URI:        cfg.Mongo.URI,
		Database:   cfg.Mongo.Database,
		JWTSecret:  cfg.Auth.JWTSecret,
		SessionTTL: cfg.Auth.SessionTTL,
		PublicURL:  cfg.Server.PublicURL,
	}, redisClient, services.LogMailer{Logger: logger}, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize backend", zap.Error(err))
	}

	categories, err := config.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		logger.Fatal("Failed to load categories", zap.Error(err))
	}
	logger.Info("Categories loaded", zap.Int("count", len(categories)))

	geocoder := services.NewNominatimClient(services.NominatimConfig{
		BaseURL:   cfg.Geocoder.BaseURL,
		UserAgent: cfg.Geocoder.UserAgent,
		Timeout:   cfg.Geocoder.Timeout,
		Rate:      cfg.Geocoder.Rate,
	}, logger)
	broadcaster := services.NewRedisBroadcaster(redisClient, logger)

	registry := services.NewRegistry(services.RegistryDeps{
		Backend:     backend,
		KV:          services.NewRedisKV(redisClient),
		Geocoder:    geocoder,
		Broadcaster: broadcaster,
		Categories:  categories,
		IdleTTL:     cfg.WorkspaceIdleTTL,
		Logger:      logger,
	})

	go func() {
		err := broadcaster.Listen(ctx, func(c services.Change) {
			refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			registry.RefreshAll(refreshCtx, c.Origin)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Change listener stopped", zap.Error(err))
		}
	}()
	go registry.RunEviction(ctx, time.Minute)

	appHandler := handlers.NewAppHandler(registry, logger)
	authHandler := handlers.NewAuthHandler()
	eventHandler := handlers.NewEventHandler(registry.Store(), categories)
	userHandler := handlers.NewUserHandler()
	mapHandler := handlers.NewMapHandler()
	wizardHandler := handlers.NewWizardHandler()

	r := mux.NewRouter()
	r.Use(middleware.ErrorMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger))

	// Routes

	r.HandleFunc("/app/init", appHandler.Init).Methods("POST")
	r.HandleFunc("/events/nearby", eventHandler.Nearby).Methods("GET")
	r.HandleFunc("/events/categories", eventHandler.Categories).Methods("GET")

	// Everything below needs a workspace
	api := r.NewRoute().Subrouter()
	api.Use(middleware.ClientMiddleware(registry))

	api.HandleFunc("/app/state", appHandler.State).Methods("GET")
	api.HandleFunc("/app/toasts", appHandler.Toasts).Methods("GET")

	api.HandleFunc("/auth/signup", authHandler.SignUp).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST")
	api.HandleFunc("/auth/confirm", authHandler.Confirm).Methods("GET")

	api.HandleFunc("/events", eventHandler.List).Methods("GET")
	api.HandleFunc("/events/{id}/interest", eventHandler.Interest).Methods("POST")
	api.HandleFunc("/events/{id}/focus", eventHandler.Focus).Methods("POST")

	api.HandleFunc("/profile", userHandler.Profile).Methods("GET")

	api.HandleFunc("/map", mapHandler.Get).Methods("GET")
	api.HandleFunc("/map/geojson", mapHandler.GeoJSON).Methods("GET")
	api.HandleFunc("/map/click", mapHandler.Click).Methods("POST")
	api.HandleFunc("/map/location", mapHandler.Location).Methods("POST")

	api.HandleFunc("/wizard", wizardHandler.Open).Methods("POST")
	api.HandleFunc("/wizard", wizardHandler.Get).Methods("GET")
	api.HandleFunc("/wizard", wizardHandler.Close).Methods("DELETE")
	api.HandleFunc("/wizard/details", wizardHandler.Details).Methods("PUT")
	api.HandleFunc("/wizard/next", wizardHandler.Next).Methods("POST")
	api.HandleFunc("/wizard/prev", wizardHandler.Prev).Methods("POST")
	api.HandleFunc("/wizard/location", wizardHandler.Location).Methods("POST")
	api.HandleFunc("/wizard/location/current", wizardHandler.CurrentLocation).Methods("POST")
	api.HandleFunc("/wizard/location/search", wizardHandler.Search).Methods("POST")
	api.HandleFunc("/wizard/submit", wizardHandler.Submit).Methods("POST")

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      middleware.CORSMiddleware(cfg.Server.AllowedOrigins)(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := backend.Close(shutdownCtx); err != nil {
		logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
	}
	logger.Info("Server exited")
}
