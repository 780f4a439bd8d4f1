package services

import (
	"context"
	"fmt"

	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
)

const (
	anxietyWindow     = 30
	anxietyTrendSpan  = 5
	statsMinEntries   = 3
	statsPatternLimit = 3
)

// placeholderPatterns are pattern names written by older error paths; they are
// never real observations and are left out of every count.
var placeholderPatterns = []string{
	"Error analyzing entry",
	"API Quota Exceeded",
	"API Configuration Issue",
}

// InsightsService summarises a user's journaling history.
type InsightsService struct {
	entries repositories.JournalEntryRepository
	recs    repositories.CBTRecommendationRepository
}

// NewInsightsService creates a new insights service
func NewInsightsService(entries repositories.JournalEntryRepository, recs repositories.CBTRecommendationRepository) *InsightsService {
	return &InsightsService{entries: entries, recs: recs}
}

// RecurringPatterns returns the user's most frequent thought patterns
func (s *InsightsService) RecurringPatterns(ctx context.Context, userID string, limit int) ([]entities.PatternCount, error) {
	patterns, err := s.recs.TopPatternsByUser(ctx, userID, limit, placeholderPatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to load recurring patterns: %w", err)
	}
	return patterns, nil
}

// Stats returns entry count, anxiety average and trend, and recurring patterns.
// Patterns are only reported once the user has a few entries.
func (s *InsightsService) Stats(ctx context.Context, userID string) (*entities.JournalStats, error) {
	total, err := s.entries.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &entities.JournalStats{
		TotalEntries:      total,
		RecurringPatterns: []entities.PatternCount{},
	}
	if total == 0 {
		return stats, nil
	}

	levels, err := s.entries.RecentAnxietyLevels(ctx, userID, anxietyWindow)
	if err != nil {
		return nil, err
	}
	stats.AnxietyAverage, stats.AnxietyTrend = anxietyStats(levels)

	if total >= statsMinEntries {
		patterns, err := s.RecurringPatterns(ctx, userID, statsPatternLimit)
		if err != nil {
			return nil, err
		}
		stats.RecurringPatterns = patterns
	}

	return stats, nil
}

// anxietyStats takes levels newest first. The trend is the mean of the newest
// levels minus the mean of the oldest ones, so a negative trend is improvement.
func anxietyStats(levels []int) (average, trend *float64) {
	if len(levels) == 0 {
		return nil, nil
	}
	avg := mean(levels)
	average = &avg

	if len(levels) >= anxietyTrendSpan {
		t := mean(levels[:anxietyTrendSpan]) - mean(levels[len(levels)-anxietyTrendSpan:])
		trend = &t
	}
	return average, trend
}

func mean(values []int) float64 {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
