package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/dearteddy/backend/internal/application/prompts"
	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	"golang.org/x/sync/errgroup"
)

// BackfillBatchSize is how many entries are fetched per page.
const BackfillBatchSize = 100

const (
	patternTemperature = 0.3
	patternMaxTokens   = 600
)

// BackfillSummary counts the outcome of a backfill run.
type BackfillSummary struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	PatternsSaved  int
}

// PatternBackfillService extracts thought patterns for analyzed entries that have none.
type PatternBackfillService struct {
	entries     repositories.JournalEntryRepository
	recs        repositories.CBTRecommendationRepository
	llm         providers.CompletionProvider
	workerCount int
	batchSize   int
}

// NewPatternBackfillService creates a new backfill service
func NewPatternBackfillService(
	entries repositories.JournalEntryRepository,
	recs repositories.CBTRecommendationRepository,
	llm providers.CompletionProvider,
	workers int,
) *PatternBackfillService {
	if workers <= 0 {
		workers = 1
	}
	return &PatternBackfillService{
		entries:     entries,
		recs:        recs,
		llm:         llm,
		workerCount: workers,
		batchSize:   BackfillBatchSize,
	}
}

// BackfillAll walks every analyzed entry without recommendations once, in ID order.
// Entries for which the model finds no pattern stay without recommendations and are
// seen again by the next run.
func (s *PatternBackfillService) BackfillAll(ctx context.Context) (*BackfillSummary, error) {
	var processed, success, failure, saved int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount)

	afterID := ""
	var listErr error
	for {
		if gctx.Err() != nil {
			break
		}
		batch, err := s.entries.ListWithoutRecommendations(gctx, afterID, s.batchSize)
		if err != nil {
			listErr = fmt.Errorf("failed to list entries without recommendations: %w", err)
			break
		}
		if len(batch) == 0 {
			break
		}

		for _, entry := range batch {
			g.Go(func() error {
				n, err := s.BackfillSingle(gctx, entry)
				atomic.AddInt64(&processed, 1)
				if err != nil {
					atomic.AddInt64(&failure, 1)
					log.Warn().Err(err).Str("entry_id", entry.ID).Msg("failed to backfill thought patterns")
					return nil
				}
				atomic.AddInt64(&success, 1)
				atomic.AddInt64(&saved, int64(n))
				return nil
			})
		}

		afterID = batch[len(batch)-1].ID
		if len(batch) < s.batchSize {
			break
		}
	}

	_ = g.Wait()

	summary := &BackfillSummary{
		TotalProcessed: int(processed),
		SuccessCount:   int(success),
		FailureCount:   int(failure),
		PatternsSaved:  int(saved),
	}
	if listErr != nil {
		return summary, listErr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// BackfillSingle extracts and stores the thought patterns of one entry and
// returns how many were saved. Unlike the conversation, failures are reported
// rather than replaced with fallback content.
func (s *PatternBackfillService) BackfillSingle(ctx context.Context, entry *entities.JournalEntry) (int, error) {
	if s.llm == nil {
		return 0, providers.ErrCompletionConfigMissing
	}

	raw, callErr := s.llm.Complete(ctx, providers.CompletionRequest{
		SystemPrompt: prompts.SystemPrompt,
		Prompt:       prompts.BuildPatternPrompt(entry.Content, entry.AnxietyLevel),
		JSONMode:     true,
		Temperature:  patternTemperature,
		MaxTokens:    patternMaxTokens,
	})
	outcome := prompts.Resolve(raw, callErr, prompts.ParsePatterns)
	if !outcome.OK() {
		return 0, fmt.Errorf("pattern extraction failed (%s): %w", outcome.Kind, outcome.Err)
	}
	if len(outcome.Value) == 0 {
		return 0, nil
	}

	if err := s.recs.CreateBatch(ctx, recommendationsFor(entry.ID, outcome.Value)); err != nil {
		return 0, fmt.Errorf("failed to save recommendations for %s: %w", entry.ID, err)
	}
	return len(outcome.Value), nil
}
