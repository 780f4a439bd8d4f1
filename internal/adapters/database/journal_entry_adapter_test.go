package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/dearteddy/backend/pkg/errors"
)

func setupMockClient(t *testing.T) (*postgres.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return postgres.NewClientFromDB(db), mock
}

var entryColumnNames = []string{
	"id", "user_id", "title", "content", "anxiety_level", "created_at", "updated_at",
	"initial_insight", "reflection_prompt", "user_reflection", "followup_insight",
	"second_reflection", "closing_message", "conversation_complete", "used_fallback",
}

func TestJournalEntryAdapter_Create(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "journal_entries"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &entities.JournalEntry{UserID: "user-1", Content: "I feel anxious about my exam", AnxietyLevel: 7}
	err := adapter.Create(context.Background(), entry)

	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, entry.CreatedAt, entry.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalEntryAdapter_CreateFailureIsPersistenceError(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "journal_entries"`)).
		WillReturnError(errors.New("connection reset"))

	err := adapter.Create(context.Background(), &entities.JournalEntry{UserID: "user-1", Content: "x", AnxietyLevel: 3})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePersistence))
}

func TestJournalEntryAdapter_GetByID(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(entryColumnNames).AddRow(
		"entry-1", "user-1", "", "I feel anxious about my exam", 7, now, now,
		"You are carrying a lot.", "What would help?", nil, nil,
		nil, nil, false, false,
	)
	mock.ExpectQuery(`SELECT .* FROM "journal_entries" WHERE \("id" = \$1\)`).
		WithArgs("entry-1").
		WillReturnRows(rows)

	entry, err := adapter.GetByID(context.Background(), "entry-1")

	require.NoError(t, err)
	assert.Equal(t, "user-1", entry.UserID)
	require.NotNil(t, entry.InitialInsight)
	assert.Equal(t, "You are carrying a lot.", *entry.InitialInsight)
	assert.Nil(t, entry.UserReflection)
	assert.Equal(t, entities.StateAwaitingFirstReflection, entry.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalEntryAdapter_GetByIDNotFound(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	mock.ExpectQuery(`SELECT .* FROM "journal_entries"`).
		WillReturnRows(sqlmock.NewRows(entryColumnNames))

	_, err := adapter.GetByID(context.Background(), "missing")

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestJournalEntryAdapter_GetByIDRejectsInconsistentRow(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(entryColumnNames).AddRow(
		"entry-1", "user-1", "", "content", 4, now, now,
		nil, nil, "a reflection without an insight", nil,
		nil, nil, false, false,
	)
	mock.ExpectQuery(`SELECT .* FROM "journal_entries"`).WillReturnRows(rows)

	_, err := adapter.GetByID(context.Background(), "entry-1")

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePersistence))
}

func TestJournalEntryAdapter_ApplyTransitionGuardsOnState(t *testing.T) {
	tests := []struct {
		from  entities.ConversationState
		guard string
	}{
		{entities.StateAwaitingAnalysis, `"initial_insight" IS NULL`},
		{entities.StateAwaitingFirstReflection, `"user_reflection" IS NULL`},
		{entities.StateAwaitingFollowupAnalysis, `"followup_insight" IS NULL`},
		{entities.StateAwaitingSecondReflection, `"second_reflection" IS NULL`},
		{entities.StateAwaitingClosingAnalysis, `"closing_message" IS NULL`},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			client, mock := setupMockClient(t)
			adapter := NewJournalEntryAdapter(client)

			mock.ExpectExec(`UPDATE "journal_entries" SET .*` + regexp.QuoteMeta(tt.guard)).
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := adapter.ApplyTransition(context.Background(), "entry-1", repositories.ConversationUpdate{
				From:           tt.from,
				ClosingMessage: entities.StringPtr("done"),
			})

			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestJournalEntryAdapter_ApplyTransitionWritesOnlySetFields(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	mock.ExpectExec(`UPDATE "journal_entries" SET "initial_insight"=\$1,"reflection_prompt"=\$2,"updated_at"=\$3,"used_fallback"=\$4 WHERE`).
		WithArgs("insight", "prompt", sqlmock.AnyArg(), true, "entry-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := adapter.ApplyTransition(context.Background(), "entry-1", repositories.ConversationUpdate{
		From:             entities.StateAwaitingAnalysis,
		InitialInsight:   entities.StringPtr("insight"),
		ReflectionPrompt: entities.StringPtr("prompt"),
		UsedFallback:     true,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalEntryAdapter_ApplyTransitionLostRace(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	mock.ExpectExec(`UPDATE "journal_entries"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "journal_entries"`)).
		WithArgs("entry-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := adapter.ApplyTransition(context.Background(), "entry-1", repositories.ConversationUpdate{
		From:           entities.StateAwaitingFirstReflection,
		UserReflection: entities.StringPtr("again"),
	})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalEntryAdapter_ApplyTransitionMissingEntry(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	mock.ExpectExec(`UPDATE "journal_entries"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "journal_entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	err := adapter.ApplyTransition(context.Background(), "gone", repositories.ConversationUpdate{
		From:           entities.StateAwaitingFirstReflection,
		UserReflection: entities.StringPtr("hello"),
	})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestJournalEntryAdapter_ApplyTransitionFromCompleteNeverQueries(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	err := adapter.ApplyTransition(context.Background(), "entry-1", repositories.ConversationUpdate{
		From: entities.StateComplete,
	})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalEntryAdapter_ResetConversation(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "journal_entries" SET .*"content"=\$\d+.*"initial_insight"=NULL.*"user_reflection"=NULL WHERE .*` + regexp.QuoteMeta(`"closing_message" IS NOT NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "cbt_recommendations"`)).
		WithArgs("entry-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := adapter.ResetConversation(context.Background(), "entry-1", entities.StateComplete, repositories.EntryEdit{
		Title:        "Exam",
		Content:      "Rewritten entry",
		AnxietyLevel: 5,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalEntryAdapter_ResetConversationLostRaceKeepsRecommendations(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "journal_entries"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "journal_entries"`)).
		WithArgs("entry-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := adapter.ResetConversation(context.Background(), "entry-1", entities.StateAwaitingFirstReflection, repositories.EntryEdit{Content: "x", AnxietyLevel: 3})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalEntryAdapter_ResetConversationRejectsEntriesUnderAnalysis(t *testing.T) {
	for _, state := range []entities.ConversationState{
		entities.StateAwaitingAnalysis,
		entities.StateAwaitingFollowupAnalysis,
		entities.StateAwaitingClosingAnalysis,
	} {
		t.Run(string(state), func(t *testing.T) {
			client, mock := setupMockClient(t)
			adapter := NewJournalEntryAdapter(client)

			err := adapter.ResetConversation(context.Background(), "entry-1", state, repositories.EntryEdit{Content: "x", AnxietyLevel: 3})

			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestJournalEntryAdapter_DeleteNotFound(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "journal_entries"`)).
		WithArgs("entry-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := adapter.Delete(context.Background(), "entry-1")

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestJournalEntryAdapter_CountAndAnxietyLevels(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "journal_entries"`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "anxiety_level" FROM "journal_entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"anxiety_level"}).AddRow(7).AddRow(5).AddRow(2))

	count, err := adapter.CountByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	levels, err := adapter.RecentAnxietyLevels(context.Background(), "user-1", 30)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 5, 2}, levels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalEntryAdapter_ListWithoutRecommendationsUsesKeyset(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM "journal_entries" WHERE .*NOT EXISTS .*"cbt_recommendations".*"id" > \$\d.* ORDER BY "id" ASC LIMIT`).
		WillReturnRows(sqlmock.NewRows(entryColumnNames).AddRow(
			"entry-2", "user-1", "", "content", 5, now, now,
			"insight", "prompt", nil, nil, nil, nil, false, false,
		))

	entries, err := adapter.ListWithoutRecommendations(context.Background(), "entry-1", 50)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "entry-2", entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalEntryAdapter_ListStalled(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewJournalEntryAdapter(client)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM "journal_entries" WHERE .*"updated_at" < \$1.* ORDER BY "updated_at" ASC`).
		WillReturnRows(sqlmock.NewRows(entryColumnNames).AddRow(
			"entry-3", "user-1", "", "content", 5, now, now,
			nil, nil, nil, nil, nil, nil, false, false,
		))

	entries, err := adapter.ListStalled(context.Background(), now.Add(-5*time.Minute), 10)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entities.StateAwaitingAnalysis, entries[0].State())
}
