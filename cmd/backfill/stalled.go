package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zatekoja/dearteddy/backend/internal/application/services"
)

var (
	stalledOlderThan time.Duration
	stalledLimit     int
)

var stalledCmd = &cobra.Command{
	Use:   "stalled",
	Short: "Finish conversations left waiting on an analysis",
	Long: `Finish conversations left waiting on an analysis.

A request that crashes after storing a reflection leaves its entry waiting for
the model. This command runs the missing analysis for entries that have not
changed for at least --older-than.`,
	RunE: runStalled,
}

func init() {
	stalledCmd.Flags().DurationVar(&stalledOlderThan, "older-than", 10*time.Minute, "Only resume entries untouched for this long")
	stalledCmd.Flags().IntVar(&stalledLimit, "limit", 100, "Maximum number of entries to resume")
}

func runStalled(cmd *cobra.Command, args []string) error {
	d, err := setup(true)
	if err != nil {
		return err
	}
	defer d.Close()

	svc := services.NewConversationService(
		d.entries,
		d.recs,
		d.llm,
		services.NewInsightsService(d.entries, d.recs),
		d.guard,
		services.ConversationConfig{
			InFlightTTLSeconds:  d.cfg.Conversation.InFlightTTLSeconds,
			MaxEntryLength:      d.cfg.Conversation.MaxEntryLength,
			MaxReflectionLength: d.cfg.Conversation.MaxReflectionLen,
		},
		nil,
	)

	summary, err := svc.ResumeStalled(cmd.Context(), stalledOlderThan, stalledLimit)
	if summary != nil {
		log.Info().
			Int("resumed", summary.Resumed).
			Int("skipped", summary.Skipped).
			Int("failed", summary.Failed).
			Msg("stalled conversations processed")
	}
	return err
}
