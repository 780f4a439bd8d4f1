// Command backfill runs maintenance jobs against the journal store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zatekoja/dearteddy/backend/internal/adapters/cache"
	"github.com/zatekoja/dearteddy/backend/internal/adapters/database"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/openai"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/observability"
	"github.com/zatekoja/dearteddy/backend/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Maintenance jobs for journal entries",
	Long: `Maintenance jobs for journal entries.

Available subcommands:
  patterns - Extract thought patterns for analyzed entries that have none
  stalled  - Finish conversations left waiting on an analysis`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(patternsCmd, stalledCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps holds the clients shared by every subcommand.
type deps struct {
	cfg     *config.Config
	entries repositories.JournalEntryRepository
	recs    repositories.CBTRecommendationRepository
	llm     *openai.Client
	guard   providers.CacheProvider
	closers []func() error
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn().Err(err).Msg("error closing dependency")
		}
	}
}

// setup connects to the database and the model. Redis is connected only when
// withGuard is set, so jobs that mutate conversations respect in-flight requests.
func setup(withGuard bool) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logCloser := observability.InitLogger("dear-teddy-backfill", cfg.Logging)

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &deps{
		cfg:     cfg,
		entries: database.NewJournalEntryAdapter(pgClient),
		recs:    database.NewCBTRecommendationAdapter(pgClient),
		llm:     openai.NewClient(&cfg.OpenAI),
		closers: []func() error{logCloser.Close, pgClient.Close},
	}
	d.closers = append(d.closers, func() error {
		d.llm.Close()
		return nil
	})

	if withGuard && cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("continuing without the in-flight guard")
		} else {
			d.closers = append(d.closers, redisClient.Close)
			d.guard = cache.NewRedisAdapter(redisClient)
			// Writes go through the cached adapter so the API never serves
			// an entry from before the job touched it.
			d.entries = database.NewCachedJournalEntryAdapter(d.entries, d.guard, cfg.Conversation.CacheTTLSeconds, nil)
		}
	}

	return d, nil
}
