package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/dearteddy/backend/pkg/errors"
)

const journalEntriesTable = "journal_entries"

var journalEntryColumns = []interface{}{
	"id", "user_id", "title", "content", "anxiety_level", "created_at", "updated_at",
	"initial_insight", "reflection_prompt", "user_reflection", "followup_insight",
	"second_reflection", "closing_message", "conversation_complete", "used_fallback",
}

// JournalEntryAdapter implements journal entry persistence in Postgres.
type JournalEntryAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	sqlx   *sqlx.DB
}

// NewJournalEntryAdapter creates a new journal entry adapter.
func NewJournalEntryAdapter(client *postgres.Client) repositories.JournalEntryRepository {
	return &JournalEntryAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		sqlx:   sqlx.NewDb(client.DB(), "postgres"),
	}
}

// Create inserts a journal entry. The conversation fields are always empty on insert.
func (a *JournalEntryAdapter) Create(ctx context.Context, entry *entities.JournalEntry) error {
	if entry == nil {
		return apperrors.NewInternalError("journal entry is nil", fmt.Errorf("journal entry is nil"))
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = entry.CreatedAt

	record := goqu.Record{
		"id":                    entry.ID,
		"user_id":               entry.UserID,
		"title":                 entry.Title,
		"content":               entry.Content,
		"anxiety_level":         entry.AnxietyLevel,
		"created_at":            entry.CreatedAt,
		"updated_at":            entry.UpdatedAt,
		"conversation_complete": false,
		"used_fallback":         false,
	}

	query, args, err := a.db.Insert(journalEntriesTable).Prepared(true).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build journal entry insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewPersistenceError("failed to create journal entry", err)
	}

	return nil
}

// GetByID retrieves a journal entry by ID
func (a *JournalEntryAdapter) GetByID(ctx context.Context, id string) (*entities.JournalEntry, error) {
	query, args, err := a.db.From(journalEntriesTable).Prepared(true).
		Select(journalEntryColumns...).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build journal entry query", err)
	}

	var entry entities.JournalEntry
	err = a.sqlx.GetContext(ctx, &entry, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("journal entry with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("failed to get journal entry", err)
	}
	if err := entry.Validate(); err != nil {
		return nil, apperrors.NewPersistenceError("stored journal entry is inconsistent", err)
	}

	return &entry, nil
}

// ListByUser retrieves a user's entries, newest first
func (a *JournalEntryAdapter) ListByUser(ctx context.Context, userID string, filter repositories.JournalEntryFilter) ([]*entities.JournalEntry, error) {
	ds := a.db.From(journalEntriesTable).Prepared(true).
		Select(journalEntryColumns...).
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())

	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	return a.selectEntries(ctx, ds, "failed to list journal entries")
}

// CountByUser returns how many entries a user has written
func (a *JournalEntryAdapter) CountByUser(ctx context.Context, userID string) (int, error) {
	query, args, err := a.db.From(journalEntriesTable).Prepared(true).
		Select(goqu.COUNT("*")).
		Where(goqu.C("user_id").Eq(userID)).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build journal entry count query", err)
	}

	var count int
	if err := a.sqlx.GetContext(ctx, &count, query, args...); err != nil {
		return 0, apperrors.NewPersistenceError("failed to count journal entries", err)
	}
	return count, nil
}

// RecentAnxietyLevels returns up to limit anxiety levels, newest first
func (a *JournalEntryAdapter) RecentAnxietyLevels(ctx context.Context, userID string, limit int) ([]int, error) {
	ds := a.db.From(journalEntriesTable).Prepared(true).
		Select("anxiety_level").
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("created_at").Desc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build anxiety level query", err)
	}

	levels := []int{}
	if err := a.sqlx.SelectContext(ctx, &levels, query, args...); err != nil {
		return nil, apperrors.NewPersistenceError("failed to load anxiety levels", err)
	}
	return levels, nil
}

// ApplyTransition writes the set fields of update while the entry is still in update.From.
func (a *JournalEntryAdapter) ApplyTransition(ctx context.Context, id string, update repositories.ConversationUpdate) error {
	guard, err := stateGuard(update.From)
	if err != nil {
		return err
	}

	record := goqu.Record{"updated_at": time.Now().UTC()}
	setIfPresent(record, "initial_insight", update.InitialInsight)
	setIfPresent(record, "reflection_prompt", update.ReflectionPrompt)
	setIfPresent(record, "user_reflection", update.UserReflection)
	setIfPresent(record, "followup_insight", update.FollowupInsight)
	setIfPresent(record, "second_reflection", update.SecondReflection)
	setIfPresent(record, "closing_message", update.ClosingMessage)
	if update.ConversationComplete {
		record["conversation_complete"] = true
	}
	if update.UsedFallback {
		record["used_fallback"] = true
	}

	query, args, err := a.db.Update(journalEntriesTable).Prepared(true).
		Set(record).
		Where(goqu.C("id").Eq(id), guard).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build journal entry update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewPersistenceError("failed to update journal entry", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewPersistenceError("failed to read affected rows", err)
	}
	if rows > 0 {
		return nil
	}

	exists, err := a.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NewNotFoundError(fmt.Sprintf("journal entry with id %s not found", id))
	}
	return apperrors.NewInvalidStateError(fmt.Sprintf("journal entry %s is no longer in state %s", id, update.From))
}

// ResetConversation saves an edit and clears the conversation in one transaction
func (a *JournalEntryAdapter) ResetConversation(ctx context.Context, id string, from entities.ConversationState, edit repositories.EntryEdit) error {
	guard, err := editableGuard(from)
	if err != nil {
		return err
	}

	updateQuery, updateArgs, err := a.db.Update(journalEntriesTable).Prepared(true).
		Set(goqu.Record{
			"title":                 edit.Title,
			"content":               edit.Content,
			"anxiety_level":         edit.AnxietyLevel,
			"updated_at":            time.Now().UTC(),
			"initial_insight":       nil,
			"reflection_prompt":     nil,
			"user_reflection":       nil,
			"followup_insight":      nil,
			"second_reflection":     nil,
			"closing_message":       nil,
			"conversation_complete": false,
			"used_fallback":         false,
		}).
		Where(goqu.C("id").Eq(id), guard).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build journal entry reset query", err)
	}
	deleteQuery, deleteArgs, err := a.db.Delete(cbtRecommendationsTable).Prepared(true).
		Where(goqu.C("journal_entry_id").Eq(id)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build recommendation delete query", err)
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewPersistenceError("failed to begin journal entry reset", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, updateQuery, updateArgs...)
	if err != nil {
		return apperrors.NewPersistenceError("failed to reset journal entry", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewPersistenceError("failed to read affected rows", err)
	}
	if rows == 0 {
		if err := tx.Rollback(); err != nil {
			return apperrors.NewPersistenceError("failed to roll back journal entry reset", err)
		}
		exists, err := a.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NewNotFoundError(fmt.Sprintf("journal entry with id %s not found", id))
		}
		return apperrors.NewInvalidStateError(fmt.Sprintf("journal entry %s is no longer in state %s", id, from))
	}

	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return apperrors.NewPersistenceError("failed to delete recommendations", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewPersistenceError("failed to commit journal entry reset", err)
	}
	return nil
}

// Delete removes an entry; its recommendations go with it through the foreign key
func (a *JournalEntryAdapter) Delete(ctx context.Context, id string) error {
	query, args, err := a.db.Delete(journalEntriesTable).Prepared(true).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build journal entry delete query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewPersistenceError("failed to delete journal entry", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewPersistenceError("failed to read affected rows", err)
	}
	if rows == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("journal entry with id %s not found", id))
	}

	return nil
}

// ListWithoutRecommendations pages by ID through analyzed entries with no recommendations
func (a *JournalEntryAdapter) ListWithoutRecommendations(ctx context.Context, afterID string, limit int) ([]*entities.JournalEntry, error) {
	noRecommendations := a.db.From(cbtRecommendationsTable).
		Select(goqu.L("1")).
		Where(goqu.I(cbtRecommendationsTable + ".journal_entry_id").Eq(goqu.I(journalEntriesTable + ".id")))

	conditions := []exp.Expression{
		goqu.C("initial_insight").IsNotNull(),
		goqu.L("NOT EXISTS ?", noRecommendations),
	}
	if afterID != "" {
		conditions = append(conditions, goqu.C("id").Gt(afterID))
	}

	ds := a.db.From(journalEntriesTable).Prepared(true).
		Select(journalEntryColumns...).
		Where(conditions...).
		Order(goqu.C("id").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	return a.selectEntries(ctx, ds, "failed to list entries without recommendations")
}

// ListStalled returns entries whose analysis never completed, oldest first
func (a *JournalEntryAdapter) ListStalled(ctx context.Context, updatedBefore time.Time, limit int) ([]*entities.JournalEntry, error) {
	analysisPending := goqu.Or(
		goqu.C("initial_insight").IsNull(),
		goqu.And(goqu.C("user_reflection").IsNotNull(), goqu.C("followup_insight").IsNull()),
		goqu.And(goqu.C("second_reflection").IsNotNull(), goqu.C("closing_message").IsNull()),
	)

	ds := a.db.From(journalEntriesTable).Prepared(true).
		Select(journalEntryColumns...).
		Where(goqu.C("updated_at").Lt(updatedBefore), analysisPending).
		Order(goqu.C("updated_at").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	return a.selectEntries(ctx, ds, "failed to list stalled entries")
}

func (a *JournalEntryAdapter) selectEntries(ctx context.Context, ds *goqu.SelectDataset, failure string) ([]*entities.JournalEntry, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build journal entry query", err)
	}

	entries := []*entities.JournalEntry{}
	if err := a.sqlx.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, apperrors.NewPersistenceError(failure, err)
	}
	return entries, nil
}

func (a *JournalEntryAdapter) exists(ctx context.Context, id string) (bool, error) {
	query, args, err := a.db.From(journalEntriesTable).Prepared(true).
		Select(goqu.L("1")).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build journal entry lookup", err)
	}

	var one int
	err = a.sqlx.GetContext(ctx, &one, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewPersistenceError("failed to look up journal entry", err)
	}
	return true, nil
}

// stateGuard is the WHERE condition that holds only while an entry is in state.
func stateGuard(state entities.ConversationState) (exp.Expression, error) {
	switch state {
	case entities.StateAwaitingAnalysis:
		return goqu.C("initial_insight").IsNull(), nil
	case entities.StateAwaitingFirstReflection:
		return goqu.And(goqu.C("initial_insight").IsNotNull(), goqu.C("user_reflection").IsNull()), nil
	case entities.StateAwaitingFollowupAnalysis:
		return goqu.And(goqu.C("user_reflection").IsNotNull(), goqu.C("followup_insight").IsNull()), nil
	case entities.StateAwaitingSecondReflection:
		return goqu.And(goqu.C("followup_insight").IsNotNull(), goqu.C("second_reflection").IsNull()), nil
	case entities.StateAwaitingClosingAnalysis:
		return goqu.And(goqu.C("second_reflection").IsNotNull(), goqu.C("closing_message").IsNull()), nil
	default:
		return nil, apperrors.NewInvalidStateError(fmt.Sprintf("no transition leaves state %q", state))
	}
}

// editableGuard holds while an entry rests in state, waiting on the user or finished.
func editableGuard(state entities.ConversationState) (exp.Expression, error) {
	switch state {
	case entities.StateAwaitingFirstReflection, entities.StateAwaitingSecondReflection:
		return stateGuard(state)
	case entities.StateComplete:
		return goqu.C("closing_message").IsNotNull(), nil
	default:
		return nil, apperrors.NewInvalidStateError(fmt.Sprintf("an entry in state %q cannot be edited", state))
	}
}

func setIfPresent(record goqu.Record, column string, value *string) {
	if value != nil {
		record[column] = *value
	}
}
