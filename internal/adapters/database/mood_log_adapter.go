package database

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/dearteddy/backend/pkg/errors"
)

const moodLogsTable = "mood_logs"

// MoodLogAdapter implements mood check-in persistence in Postgres.
type MoodLogAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	sqlx   *sqlx.DB
}

// NewMoodLogAdapter creates a new mood log adapter.
func NewMoodLogAdapter(client *postgres.Client) repositories.MoodLogRepository {
	return &MoodLogAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		sqlx:   sqlx.NewDb(client.DB(), "postgres"),
	}
}

// Create inserts a mood log, filling in its ID and timestamp when unset
func (a *MoodLogAdapter) Create(ctx context.Context, mood *entities.MoodLog) error {
	if mood == nil {
		return apperrors.NewInternalError("mood log is nil", fmt.Errorf("mood log is nil"))
	}
	if mood.ID == "" {
		mood.ID = uuid.NewString()
	}
	if mood.CreatedAt.IsZero() {
		mood.CreatedAt = time.Now().UTC()
	}

	query, args, err := a.db.Insert(moodLogsTable).Prepared(true).Rows(goqu.Record{
		"id":         mood.ID,
		"user_id":    mood.UserID,
		"mood_score": mood.MoodScore,
		"notes":      mood.Notes,
		"created_at": mood.CreatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build mood log insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewPersistenceError("failed to create mood log", err)
	}
	return nil
}

// ListByUserSince returns a user's mood logs since a cutoff, oldest first
func (a *MoodLogAdapter) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]*entities.MoodLog, error) {
	query, args, err := a.db.From(moodLogsTable).Prepared(true).
		Select("id", "user_id", "mood_score", "notes", "created_at").
		Where(goqu.C("user_id").Eq(userID), goqu.C("created_at").Gte(since)).
		Order(goqu.C("created_at").Asc(), goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build mood log query", err)
	}

	moods := []*entities.MoodLog{}
	if err := a.sqlx.SelectContext(ctx, &moods, query, args...); err != nil {
		return nil, apperrors.NewPersistenceError("failed to list mood logs", err)
	}
	return moods, nil
}
