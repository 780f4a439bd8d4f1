package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
)

// MoodLogRepository defines the interface for mood check-in data operations
type MoodLogRepository interface {
	// Create inserts a mood log
	Create(ctx context.Context, mood *entities.MoodLog) error

	// ListByUserSince returns a user's mood logs created at or after since, oldest first
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]*entities.MoodLog, error)
}
