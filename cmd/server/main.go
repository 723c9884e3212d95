package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgo/saga/presence/internal/config"
	"github.com/forgo/saga/presence/internal/database"
	"github.com/forgo/saga/presence/internal/handler"
	"github.com/forgo/saga/presence/internal/jobs"
	"github.com/forgo/saga/presence/internal/middleware"
	"github.com/forgo/saga/presence/internal/repository"
	"github.com/forgo/saga/presence/internal/service"
	"github.com/forgo/saga/presence/internal/telemetry"
	"github.com/forgo/saga/presence/pkg/jwt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize tracing
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	// Initialize database connection
	db := database.NewSurrealDB(database.Config{
		Host:      cfg.Database.Host,
		Port:      cfg.Database.Port,
		User:      cfg.Database.User,
		Password:  cfg.Database.Password,
		Namespace: cfg.Database.Namespace,
		Database:  cfg.Database.Database,
	})

	if err := db.Connect(ctx); err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	slog.Info("connected to database",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Database),
	)

	// Initialize JWT validation
	jwtService, err := jwt.NewService(jwt.Config{
		PrivateKeyPath: cfg.JWT.PrivateKeyPath,
		PublicKeyPath:  cfg.JWT.PublicKeyPath,
		Issuer:         cfg.JWT.Issuer,
		ExpirationMins: cfg.JWT.ExpirationMins,
	})
	if err != nil {
		slog.Error("failed to initialize JWT service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize repositories
	layerRepo := repository.NewLayerRepository(db)
	accountRepo := repository.NewAccountRepository(db)

	// Initialize services
	hub := service.NewConnectionHub()

	roomService := service.NewRoomService(service.RoomServiceConfig{
		Broadcaster:    hub,
		EmoteFreshness: cfg.Presence.EmoteFreshness,
	})

	layerService := service.NewLayerService(service.LayerServiceConfig{
		LayerRepo:      layerRepo,
		AccountRepo:    accountRepo,
		Admin:          accountRepo,
		StrictCapacity: cfg.Presence.StrictLayerCapacity,
	})

	presenceService := service.NewPresenceService(service.PresenceServiceConfig{
		Hub:        hub,
		Rooms:      roomService,
		Layers:     layerService,
		SendBuffer: cfg.Socket.SendBuffer,
	})

	// Start background jobs
	if cfg.Presence.StatsInterval > 0 {
		statsReporter := jobs.NewStatsReporter(presenceService, cfg.Presence.StatsInterval)
		statsReporter.Start()
		defer statsReporter.Stop()
	}

	// Initialize event routing
	dispatcher := handler.NewDispatcher(telemetry.Tracer())
	handler.NewRoomHandler(roomService).Register(dispatcher)
	handler.NewLayerHandler(layerService).Register(dispatcher)

	// Per-connection inbound event budget
	eventLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Rate:   cfg.Socket.EventRate,
		Window: time.Minute,
		Burst:  cfg.Socket.EventBurst,
	})
	defer eventLimiter.Stop()

	// HTTP budget for operational endpoints
	httpLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{})
	defer httpLimiter.Stop()

	// Initialize handlers
	socketHandler := handler.NewSocketHandler(handler.SocketHandlerConfig{
		Presence:   presenceService,
		Dispatcher: dispatcher,
		Limiter:    eventLimiter,
		Socket: handler.SocketConfig{
			WriteWait:       cfg.Socket.WriteWait,
			PongWait:        cfg.Socket.PongWait,
			PingPeriod:      cfg.Socket.PingPeriod(),
			MaxMessageBytes: cfg.Socket.MaxMessageBytes,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
		},
	})
	healthHandler := handler.NewHealthHandler(db, presenceService)

	// Create router
	mux := http.NewServeMux()

	authMiddleware := middleware.Auth(jwtService)
	optionalAuth := middleware.OptionalAuth(jwtService)
	limited := middleware.RateLimit(httpLimiter)

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("GET /v1/presence/stats", authMiddleware(limited(http.HandlerFunc(healthHandler.Stats))))
	mux.Handle("GET /v1/socket", optionalAuth(socketHandler))

	slog.Info("socket events registered", slog.Any("events", dispatcher.Events()))

	// Apply global middleware
	wrapped := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger,
		middleware.Recovery,
		middleware.CORS(cfg.Server.AllowedOrigins),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      wrapped,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("starting server",
			slog.String("port", cfg.Server.Port),
			slog.String("env", cfg.Server.Env),
			slog.Bool("strict_layer_capacity", cfg.Presence.StrictLayerCapacity),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Hijacked socket connections are not tracked by Shutdown
	presenceService.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	slog.Info("server exited")
}
