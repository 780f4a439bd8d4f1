package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zatekoja/dearteddy/backend/internal/application/services"
)

var (
	patternWorkers int
	patternEntryID string
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Extract thought patterns for entries without recommendations",
	RunE:  runPatterns,
}

func init() {
	patternsCmd.Flags().IntVar(&patternWorkers, "workers", 3, "Number of concurrent workers")
	patternsCmd.Flags().StringVar(&patternEntryID, "entry", "", "Single entry ID to backfill")
}

func runPatterns(cmd *cobra.Command, args []string) error {
	d, err := setup(false)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	svc := services.NewPatternBackfillService(d.entries, d.recs, d.llm, patternWorkers)

	if patternEntryID != "" {
		entry, err := d.entries.GetByID(ctx, patternEntryID)
		if err != nil {
			return err
		}
		saved, err := svc.BackfillSingle(ctx, entry)
		if err != nil {
			return fmt.Errorf("failed to backfill entry %s: %w", patternEntryID, err)
		}
		log.Info().Str("entry_id", patternEntryID).Int("patterns_saved", saved).Msg("entry backfilled")
		return nil
	}

	start := time.Now()
	log.Info().Int("workers", patternWorkers).Msg("starting pattern backfill")
	summary, err := svc.BackfillAll(ctx)
	if summary != nil {
		log.Info().
			Dur("elapsed", time.Since(start)).
			Int("total_processed", summary.TotalProcessed).
			Int("success", summary.SuccessCount).
			Int("failed", summary.FailureCount).
			Int("patterns_saved", summary.PatternsSaved).
			Msg("pattern backfill complete")
	}
	return err
}
