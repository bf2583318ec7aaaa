package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Eigensu/SM-Visitor/internal/http/handlers"
	imw "github.com/Eigensu/SM-Visitor/internal/http/middleware"
	"github.com/Eigensu/SM-Visitor/internal/repo/postgres"
	"github.com/Eigensu/SM-Visitor/internal/service"
	"github.com/Eigensu/SM-Visitor/internal/sse"
	"github.com/Eigensu/SM-Visitor/pkg/config"
	"github.com/Eigensu/SM-Visitor/pkg/database"
	"github.com/Eigensu/SM-Visitor/pkg/events"
	"github.com/Eigensu/SM-Visitor/pkg/logger"
	mw "github.com/Eigensu/SM-Visitor/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("invalid redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Repositories
	visitRepo := postgres.NewVisitRepo(pool)
	visitorRepo := postgres.NewVisitorRepo(pool)
	passRepo := postgres.NewPassRepo(pool)
	directoryRepo := postgres.NewDirectoryRepo(pool)

	// Core
	hub := sse.NewHub(directoryRepo, cfg.SSE.QueueSize)
	validator := service.NewCredentialValidator(visitorRepo, passRepo, cfg.Auth.JWTSecret)
	resolver := service.NewAudienceResolver(directoryRepo)
	visitService := service.NewVisitService(visitRepo, validator, passRepo, resolver, hub, eventBus)

	scanLimiter := imw.NewRateLimiter(redisClient, imw.RateLimitConfig{
		Requests: 30,
		Window:   time.Minute,
	})

	// Handlers
	visitsHandler := handlers.NewVisitsHandler(visitService, scanLimiter)
	visitorsHandler := handlers.NewVisitorsHandler(visitorRepo, eventBus, cfg.Auth.JWTSecret, cfg.Schedule.DefaultTimezone)
	passesHandler := handlers.NewPassesHandler(passRepo, validator, eventBus, cfg.Auth.JWTSecret)
	eventsHandler := handlers.NewEventsHandler(hub, cfg.SSE.HeartbeatInterval)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("gatekeeper"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1", func(r chi.Router) {
		// Pass validation is public: the token itself is the credential.
		r.Get("/passes/{token}/validate", passesHandler.Validate)

		r.Group(func(r chi.Router) {
			r.Use(imw.RequireAuth(cfg.Auth.JWTSecret))
			r.Mount("/visits", visitsHandler.Routes())
			r.Mount("/visitors", visitorsHandler.Routes())
			r.Mount("/passes", passesHandler.Routes())
			r.Mount("/events", eventsHandler.Routes())
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("gatekeeper API listening", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
