package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/dearteddy/backend/internal/adapters/database"
	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/observability"
	"github.com/zatekoja/dearteddy/backend/pkg/config"
)

//go:embed schema.sql
var schema string

const demoUserID = "demo-user"

type seedEntry struct {
	title        string
	content      string
	anxietyLevel int
	stages       []repositories.ConversationUpdate
	patterns     []entities.CBTRecommendation
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	defer observability.InitLogger("dear-teddy-seed", cfg.Logging).Close()

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pgClient.Close()

	ctx := context.Background()

	if _, err := pgClient.DB().ExecContext(ctx, schema); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE cbt_recommendations, journal_entries, mood_logs CASCADE`)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to reset tables")
		}
	}

	entryRepo := database.NewJournalEntryAdapter(pgClient)
	recRepo := database.NewCBTRecommendationAdapter(pgClient)

	for _, s := range demoEntries() {
		entry := &entities.JournalEntry{
			UserID:       demoUserID,
			Title:        s.title,
			Content:      s.content,
			AnxietyLevel: s.anxietyLevel,
		}
		if err := entryRepo.Create(ctx, entry); err != nil {
			log.Error().Err(err).Str("title", s.title).Msg("failed to create entry")
			continue
		}

		for _, stage := range s.stages {
			if err := entryRepo.ApplyTransition(ctx, entry.ID, stage); err != nil {
				log.Error().Err(err).Str("entry_id", entry.ID).Msg("failed to advance entry")
				break
			}
		}

		recs := make([]*entities.CBTRecommendation, 0, len(s.patterns))
		for i := range s.patterns {
			rec := s.patterns[i]
			rec.JournalEntryID = entry.ID
			recs = append(recs, &rec)
		}
		if err := recRepo.CreateBatch(ctx, recs); err != nil {
			log.Error().Err(err).Str("entry_id", entry.ID).Msg("failed to save recommendations")
		}

		log.Info().Str("entry_id", entry.ID).Str("title", s.title).Msg("seeded entry")
	}
}

func demoEntries() []seedEntry {
	p := entities.StringPtr
	return []seedEntry{
		{
			title:        "Presentation at work",
			content:      "I have to present to the whole team tomorrow and I keep imagining forgetting everything.",
			anxietyLevel: 8,
			stages: []repositories.ConversationUpdate{
				{
					From:             entities.StateAwaitingAnalysis,
					InitialInsight:   p("## What I Noticed\nYou are predicting a worst case before it has happened.\n\n## Thought Patterns\n• Fortune telling\n• Catastrophizing"),
					ReflectionPrompt: p("What happened the last time you presented?"),
				},
				{From: entities.StateAwaitingFirstReflection, UserReflection: p("It went fine, people asked good questions.")},
				{From: entities.StateAwaitingFollowupAnalysis, FollowupInsight: p("That memory is real evidence that you can do this. What would help you feel prepared tonight?")},
				{From: entities.StateAwaitingSecondReflection, SecondReflection: p("One run-through and then an early night.")},
				{
					From:                 entities.StateAwaitingClosingAnalysis,
					ClosingMessage:       p("That sounds like a kind, realistic plan. You have done this before and you can do it again."),
					ConversationComplete: true,
				},
			},
			patterns: []entities.CBTRecommendation{
				{ThoughtPattern: "Fortune telling", Recommendation: "Predicting failure - Recall past presentations that went well"},
				{ThoughtPattern: "Catastrophizing", Recommendation: "Expecting the worst - Ask what is most likely to happen"},
			},
		},
		{
			title:        "Unanswered message",
			content:      "My friend has not replied for two days. I think they are annoyed with me.",
			anxietyLevel: 6,
			stages: []repositories.ConversationUpdate{
				{
					From:             entities.StateAwaitingAnalysis,
					InitialInsight:   p("It makes sense to feel unsettled by silence. You are filling the gap with the most painful explanation."),
					ReflectionPrompt: p("What other reasons could explain the silence?"),
				},
			},
			patterns: []entities.CBTRecommendation{
				{ThoughtPattern: "Mind reading", Recommendation: "Assuming their thoughts - List three other explanations"},
			},
		},
		{
			title:        "Sunday evening",
			content:      "Nothing specific, just a heavy feeling about the week ahead.",
			anxietyLevel: 4,
		},
	}
}
