package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/dearteddy/backend/internal/adapters/cache"
	"github.com/zatekoja/dearteddy/backend/internal/adapters/database"
	"github.com/zatekoja/dearteddy/backend/internal/api/handlers"
	"github.com/zatekoja/dearteddy/backend/internal/api/routes"
	"github.com/zatekoja/dearteddy/backend/internal/application/services"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/openai"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/observability"
	"github.com/zatekoja/dearteddy/backend/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCloser := observability.InitLogger(cfg.OTEL.ServiceName, cfg.Logging)
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	// Redis is optional: it backs the entry cache, the in-flight guard and
	// shared rate limits. Without it those fall back to the database check
	// and in-process limits.
	healthChecks := map[string]handlers.HealthCheck{"postgres": pgClient.Ping}
	var cacheProvider providers.CacheProvider
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("continuing without Redis")
		} else {
			defer redisClient.Close()
			cacheProvider = cache.NewRedisAdapter(redisClient)
			healthChecks["redis"] = redisClient.Ping
		}
	}

	baseEntryAdapter := database.NewJournalEntryAdapter(pgClient)
	var entryRepo repositories.JournalEntryRepository = baseEntryAdapter
	if cacheProvider != nil {
		entryRepo = database.NewCachedJournalEntryAdapter(baseEntryAdapter, cacheProvider, cfg.Conversation.CacheTTLSeconds, metrics)
		log.Info().Msg("journal entry adapter wrapped with caching layer")
	}
	recRepo := database.NewCBTRecommendationAdapter(pgClient)
	moodRepo := database.NewMoodLogAdapter(pgClient)

	if cfg.OpenAI.APIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is not set; every conversation stage will use fallback text")
	}
	openaiClient := openai.NewClient(&cfg.OpenAI)
	defer openaiClient.Close()

	insightsService := services.NewInsightsService(entryRepo, recRepo)
	conversationService := services.NewConversationService(
		entryRepo,
		recRepo,
		openaiClient,
		insightsService,
		cacheProvider,
		services.ConversationConfig{
			InFlightTTLSeconds:  cfg.Conversation.InFlightTTLSeconds,
			MaxEntryLength:      cfg.Conversation.MaxEntryLength,
			MaxReflectionLength: cfg.Conversation.MaxReflectionLen,
		},
		metrics,
	)
	copingService := services.NewCopingService(openaiClient, metrics)
	moodService := services.NewMoodService(moodRepo)

	router := routes.NewRouter(
		handlers.NewJournalHandler(conversationService),
		handlers.NewInsightsHandler(insightsService),
		handlers.NewCopingHandler(copingService, cacheProvider, cfg.Server.TrustProxyHeaders),
		handlers.NewMoodHandler(moodService),
		handlers.NewHealthHandler(healthChecks),
		cfg.Server.AllowedOrigins,
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	// WriteTimeout leaves room for a full model call on reflection requests.
	writeTimeout := time.Duration(cfg.OpenAI.TimeoutSeconds+15) * time.Second
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	log.Info().Msg("server stopped")
}
