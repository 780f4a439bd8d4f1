package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/dearteddy/backend/pkg/errors"
)

const (
	defaultMoodDays    = 7
	maxMoodDays        = 90
	maxMoodNotesLength = 1000
)

// MoodService records mood check-ins and returns them for charting.
type MoodService struct {
	moods repositories.MoodLogRepository
	now   func() time.Time
}

// NewMoodService creates a new mood service
func NewMoodService(moods repositories.MoodLogRepository) *MoodService {
	return &MoodService{moods: moods, now: time.Now}
}

// LogMood stores a check-in with an optional note
func (s *MoodService) LogMood(ctx context.Context, userID string, score int, notes string) (*entities.MoodLog, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidationError("user id is required")
	}
	if score < entities.MinMoodScore || score > entities.MaxMoodScore {
		return nil, apperrors.NewValidationError(fmt.Sprintf("mood score must be between %d and %d", entities.MinMoodScore, entities.MaxMoodScore))
	}
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > maxMoodNotesLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("notes must be at most %d characters", maxMoodNotesLength))
	}

	mood := &entities.MoodLog{
		UserID:    userID,
		MoodScore: score,
		Notes:     notes,
		CreatedAt: s.now().UTC(),
	}
	if err := s.moods.Create(ctx, mood); err != nil {
		return nil, err
	}
	return mood, nil
}

// RecentMoods returns the check-ins from the last days days, oldest first.
// A non-positive days means a week; it is capped at maxMoodDays.
func (s *MoodService) RecentMoods(ctx context.Context, userID string, days int) ([]*entities.MoodLog, error) {
	if days <= 0 {
		days = defaultMoodDays
	}
	if days > maxMoodDays {
		days = maxMoodDays
	}
	return s.moods.ListByUserSince(ctx, userID, s.now().UTC().AddDate(0, 0, -days))
}
