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

const cbtRecommendationsTable = "cbt_recommendations"

// CBTRecommendationAdapter implements CBT recommendation persistence in Postgres.
type CBTRecommendationAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	sqlx   *sqlx.DB
}

// NewCBTRecommendationAdapter creates a new CBT recommendation adapter.
func NewCBTRecommendationAdapter(client *postgres.Client) repositories.CBTRecommendationRepository {
	return &CBTRecommendationAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		sqlx:   sqlx.NewDb(client.DB(), "postgres"),
	}
}

// CreateBatch inserts recommendations in a single statement
func (a *CBTRecommendationAdapter) CreateBatch(ctx context.Context, recommendations []*entities.CBTRecommendation) error {
	if len(recommendations) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]interface{}, 0, len(recommendations))
	for _, rec := range recommendations {
		if rec == nil {
			continue
		}
		if rec.JournalEntryID == "" {
			return apperrors.NewValidationError("recommendation has no journal entry")
		}
		if len([]rune(rec.ThoughtPattern)) > entities.MaxThoughtPatternLength {
			return apperrors.NewValidationError(fmt.Sprintf("thought pattern exceeds %d characters", entities.MaxThoughtPatternLength))
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rows = append(rows, goqu.Record{
			"id":               rec.ID,
			"journal_entry_id": rec.JournalEntryID,
			"thought_pattern":  rec.ThoughtPattern,
			"recommendation":   rec.Recommendation,
			"created_at":       rec.CreatedAt,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	query, args, err := a.db.Insert(cbtRecommendationsTable).Prepared(true).Rows(rows...).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build recommendation insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewPersistenceError("failed to create recommendations", err)
	}

	return nil
}

// ListByEntry retrieves the recommendations attached to an entry, oldest first
func (a *CBTRecommendationAdapter) ListByEntry(ctx context.Context, entryID string) ([]*entities.CBTRecommendation, error) {
	query := `
		SELECT id, journal_entry_id, thought_pattern, recommendation, created_at
		FROM cbt_recommendations
		WHERE journal_entry_id = $1
		ORDER BY created_at, id
	`

	recommendations := []*entities.CBTRecommendation{}
	if err := a.sqlx.SelectContext(ctx, &recommendations, query, entryID); err != nil {
		return nil, apperrors.NewPersistenceError("failed to list recommendations", err)
	}
	return recommendations, nil
}

// TopPatternsByUser counts thought patterns across a user's entries, most frequent first
func (a *CBTRecommendationAdapter) TopPatternsByUser(ctx context.Context, userID string, limit int, exclude []string) ([]entities.PatternCount, error) {
	query := `
		SELECT r.thought_pattern, COUNT(*) AS count
		FROM cbt_recommendations r
		JOIN journal_entries e ON e.id = r.journal_entry_id
		WHERE e.user_id = ?
	`
	args := []interface{}{userID}

	if len(exclude) > 0 {
		inClause, inArgs, err := sqlx.In(" AND r.thought_pattern NOT IN (?)", exclude)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to build pattern exclusion", err)
		}
		query += inClause
		args = append(args, inArgs...)
	}

	query += `
		GROUP BY r.thought_pattern
		ORDER BY count DESC, r.thought_pattern ASC
		LIMIT ?
	`
	args = append(args, limit)

	patterns := []entities.PatternCount{}
	if err := a.sqlx.SelectContext(ctx, &patterns, a.sqlx.Rebind(query), args...); err != nil {
		return nil, apperrors.NewPersistenceError("failed to count thought patterns", err)
	}
	return patterns, nil
}
