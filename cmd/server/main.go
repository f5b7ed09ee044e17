package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/collab/internal/api"
	"github.com/eldtechnologies/collab/internal/api/middleware"
	"github.com/eldtechnologies/collab/internal/codec"
	"github.com/eldtechnologies/collab/internal/collab"
	"github.com/eldtechnologies/collab/internal/config"
	"github.com/eldtechnologies/collab/internal/fanout"
	"github.com/eldtechnologies/collab/internal/handlers"
	"github.com/eldtechnologies/collab/internal/store"
	"github.com/eldtechnologies/collab/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("instance", cfg.InstanceID).
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis store
	redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisStore.Close()
	logger.Info().Msg("connected to Redis")

	checks := map[string]handlers.Pinger{"redis": redisStore}
	opts := []collab.Option{collab.WithLogger(logger)}

	// Optional durable room catalog
	switch cfg.Catalog {
	case "postgres":
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pgStore.Close()
		checks["catalog"] = pgStore
		opts = append(opts, collab.WithCatalog(pgStore))
		logger.Info().Msg("connected to PostgreSQL")
	case "sqlite":
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		defer sqliteStore.Close()
		checks["catalog"] = sqliteStore
		opts = append(opts, collab.WithCatalog(sqliteStore))
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite catalog")
	}

	wire, err := codec.New(cfg.Codec)
	if err != nil {
		logger.Fatal().Err(err).Msg("unknown codec")
	}
	opts = append(opts, collab.WithCodec(wire))

	// Cross-instance fan-out bus
	var bus fanout.Bus
	switch cfg.FanoutBus {
	case "redis":
		bus = fanout.NewRedisBus(redisStore.Client())
	case "nats":
		natsBus, err := fanout.NewNATSBus(cfg.NATSURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connection failed")
		}
		bus = natsBus
		logger.Info().Msg("connected to NATS")
	}
	if bus != nil {
		defer bus.Close()
	}

	hub := fanout.NewHub(wire, bus, cfg.InstanceID, logger)
	engine := collab.New(cfg.EngineConfig(), hub, redisStore, opts...)

	if err := engine.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("room restore failed")
	}

	limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})
	h := handlers.NewHandler(engine, transport.NewServer(engine, logger), checks, cfg.InstanceID, logger)

	// Create router
	router := api.NewRouter(logger, h, limiter)

	// Create server. Websocket sessions manage their own deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("codec", wire.Name()).
			Str("bus", cfg.FanoutBus).
			Msg("starting collab server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")

		// Graceful shutdown with 30 second timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}
