package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/hexwar/internal/auth"
	"github.com/freeeve/hexwar/internal/config"
	"github.com/freeeve/hexwar/internal/handler"
	"github.com/freeeve/hexwar/internal/logger"
	"github.com/freeeve/hexwar/internal/middleware"
	"github.com/freeeve/hexwar/internal/repository/postgres"
	redisrepo "github.com/freeeve/hexwar/internal/repository/redis"
	"github.com/freeeve/hexwar/internal/service"
	"github.com/freeeve/hexwar/migrations"
	"github.com/freeeve/hexwar/pkg/tactics"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("port", cfg.Port).Bool("devMode", cfg.DevMode).Msg("Config loaded")

	rules, err := cfg.Rules()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid engine rules")
	}
	tactics.StrictRetrace = cfg.StrictRetrace

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()
	if err := migrations.Apply(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Database migration failed")
	}

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable Redis keyspace notifications for timer expiry events.
	if err := redisClient.Underlying().ConfigSet(context.Background(), "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (autoplay falls back to polling)")
	}

	// Repos
	userRepo := postgres.NewUserRepo(db)
	matchRepo := postgres.NewMatchRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	matchSvc := service.NewMatchService(matchRepo, redisClient, wsHub, rules, cfg.AutoplayInterval)

	// Timer listener (autoplay on expiry)
	timerListener := service.NewTimerListener(redisClient.Underlying(), matchSvc)

	// Handlers
	authHandler := handler.NewAuthHandler(jwtMgr, userRepo, cfg.DevMode)
	matchHandler := handler.NewMatchHandler(matchSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, matchSvc)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status, code := "ok", http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			log.Warn().Err(err).Msg("Health check: postgres down")
			status, code = "postgres unavailable", http.StatusServiceUnavailable
		} else if err := redisClient.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Health check: redis down")
			status, code = "redis unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"status":%q,"liveMatches":%d}`, status, matchSvc.LiveCount())
	})

	// Auth (public)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", authHandler.Me)
	api.HandleFunc("POST /matches", matchHandler.CreateMatch)
	api.HandleFunc("GET /matches", matchHandler.ListMatches)
	api.HandleFunc("GET /matches/{id}", matchHandler.GetMatch)
	api.HandleFunc("POST /matches/{id}/tick", matchHandler.Tick)
	api.HandleFunc("GET /matches/{id}/actions", matchHandler.Actions)
	api.HandleFunc("GET /matches/{id}/reach", matchHandler.Reach)
	api.HandleFunc("GET /matches/{id}/path", matchHandler.Path)
	api.HandleFunc("GET /matches/{id}/search/{kind}", matchHandler.Search)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.Recover, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Recover active matches (rehydrate from Redis snapshots after restart)
	if err := matchSvc.RecoverActiveMatches(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover active matches (non-fatal)")
	}

	// Start timer listener
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Int("liveMatches", matchSvc.LiveCount()).Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
