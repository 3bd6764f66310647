package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/potholeops/backend/internal/cache"
	"github.com/potholeops/backend/internal/config"
	"github.com/potholeops/backend/internal/db"
	"github.com/potholeops/backend/internal/events"
	"github.com/potholeops/backend/internal/graph"
	httpapi "github.com/potholeops/backend/internal/http"
	"github.com/potholeops/backend/internal/roadinfo"
	"github.com/potholeops/backend/internal/routing"
	"github.com/potholeops/backend/internal/safety"
	"github.com/potholeops/backend/internal/service"
	"github.com/potholeops/backend/internal/severity"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "pothole-backend").Logger()

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}

	var roadCache cache.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-memory road cache")
		} else {
			defer rc.Close()
			roadCache = rc
		}
	}

	httpClient := &http.Client{Timeout: cfg.ExternalTimeout}

	var upstream roadinfo.Provider
	if cfg.UseMockRoads() {
		upstream = roadinfo.MockProvider{}
		logger.Info().Msg("using mock road provider")
	} else {
		upstream = &roadinfo.OverpassClient{
			URLs:        cfg.OverpassMirrors(),
			UserAgent:   cfg.UserAgent,
			MinInterval: time.Second,
			Client:      httpClient,
		}
	}
	roads := &roadinfo.CachedProvider{
		Next:   upstream,
		Cache:  roadCache,
		TTL:    cfg.GraphCacheTTL,
		Logger: logger,
	}

	resolver := &roadinfo.Resolver{
		Provider:     roads,
		RadiusMeters: cfg.RoadInfoRadius,
		Defaults: roadinfo.Defaults{
			TrafficImportance: cfg.DefaultTrafficImportance,
			PriorityFactor:    cfg.DefaultPriorityFactor,
		},
		Logger: logger,
	}

	var publisher events.Publisher = events.LogPublisher{Logger: logger}
	if cfg.KafkaBrokers != "" {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			ClientID: "pothole-backend",
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("kafka unavailable, logging status events instead")
		} else {
			defer kp.Close(5 * time.Second)
			publisher = kp
		}
	}

	scorer := severity.NewScorer(severity.Limits{
		PriorityFactorMax:    cfg.PriorityFactorMax,
		TrafficImportanceMax: cfg.TrafficImportanceMax,
	})

	dispatch := &service.DispatchService{
		Router: &routing.OSRMClient{
			BaseURL:   cfg.OSRMURL,
			UserAgent: cfg.UserAgent,
			Client:    httpClient,
		},
		Graph: &graph.Builder{
			Provider:  roads,
			Radius:    cfg.GraphRadius,
			MaxRadius: cfg.GraphMaxRadius,
			Logger:    logger,
		},
		Hazards: store,
		Store:   store,
		Safety:  safety.Scorer{ThresholdMeters: cfg.HazardProximity},
		Logger: logger,
	}
	triage := &service.TriageService{
		Potholes:     store,
		Runs:         store,
		Roads:        resolver,
		Scorer:       scorer,
		Concurrency:  cfg.TriageConcurrency,
		NearbyRadius: cfg.NearbyRadius,
		Logger:       logger,
	}
	tickets := &service.TicketService{
		Tickets: store,
		Workers: store,
		Routes:  dispatch,
		Events:  publisher,
		Logger:  logger,
	}

	router := httpapi.Router(cfg, httpapi.Deps{
		Store:    store,
		Runs:     store,
		Triage:   triage,
		Tickets:  tickets,
		Dispatch: dispatch,
		Scorer:   scorer,
	}, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
