//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zatekoja/dearteddy/backend/internal/adapters/cache"
	"github.com/zatekoja/dearteddy/backend/internal/adapters/database"
	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/dearteddy/backend/pkg/errors"
)

// JournalAdapterIntegrationTestSuite runs the journal adapters against a real database
type JournalAdapterIntegrationTestSuite struct {
	suite.Suite
	client  *postgres.Client
	entries repositories.JournalEntryRepository
	recs    repositories.CBTRecommendationRepository
}

func (s *JournalAdapterIntegrationTestSuite) SetupSuite() {
	s.client = newTestPostgresClient(s.T())
	s.entries = database.NewJournalEntryAdapter(s.client)
	s.recs = database.NewCBTRecommendationAdapter(s.client)
}

func (s *JournalAdapterIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *JournalAdapterIntegrationTestSuite) SetupTest() {
	truncateTables(s.T(), s.client)
}

func (s *JournalAdapterIntegrationTestSuite) createEntry(userID string, level int) *entities.JournalEntry {
	entry := &entities.JournalEntry{
		UserID:       userID,
		Content:      "I feel anxious about my exam",
		AnxietyLevel: level,
	}
	require.NoError(s.T(), s.entries.Create(context.Background(), entry))
	return entry
}

func (s *JournalAdapterIntegrationTestSuite) TestConversationRoundTrip() {
	ctx := context.Background()
	entry := s.createEntry("user-1", 7)

	steps := []repositories.ConversationUpdate{
		{From: entities.StateAwaitingAnalysis, InitialInsight: entities.StringPtr("insight"), ReflectionPrompt: entities.StringPtr("prompt")},
		{From: entities.StateAwaitingFirstReflection, UserReflection: entities.StringPtr("reflection")},
		{From: entities.StateAwaitingFollowupAnalysis, FollowupInsight: entities.StringPtr("followup")},
		{From: entities.StateAwaitingSecondReflection, SecondReflection: entities.StringPtr("second")},
		{From: entities.StateAwaitingClosingAnalysis, ClosingMessage: entities.StringPtr("closing"), ConversationComplete: true, UsedFallback: true},
	}
	for _, step := range steps {
		require.NoError(s.T(), s.entries.ApplyTransition(ctx, entry.ID, step), "from %s", step.From)
	}

	got, err := s.entries.GetByID(ctx, entry.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), entities.StateComplete, got.State())
	assert.True(s.T(), got.ConversationComplete)
	assert.True(s.T(), got.UsedFallback)
	assert.Equal(s.T(), "closing", *got.ClosingMessage)
}

func (s *JournalAdapterIntegrationTestSuite) TestConcurrentTransitionsOnlyOneWins() {
	ctx := context.Background()
	entry := s.createEntry("user-1", 5)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.entries.ApplyTransition(ctx, entry.ID, repositories.ConversationUpdate{
				From:             entities.StateAwaitingAnalysis,
				InitialInsight:   entities.StringPtr("insight"),
				ReflectionPrompt: entities.StringPtr("prompt"),
			})
		}()
	}
	wg.Wait()
	close(results)

	var won, rejected int
	for err := range results {
		switch {
		case err == nil:
			won++
		case apperrors.IsType(err, apperrors.ErrorTypeInvalidState):
			rejected++
		default:
			s.T().Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(s.T(), 1, won)
	assert.Equal(s.T(), attempts-1, rejected)
}

func (s *JournalAdapterIntegrationTestSuite) TestDeleteCascadesToRecommendations() {
	ctx := context.Background()
	entry := s.createEntry("user-1", 5)
	require.NoError(s.T(), s.recs.CreateBatch(ctx, []*entities.CBTRecommendation{
		{JournalEntryID: entry.ID, ThoughtPattern: "Labeling", Recommendation: "Describe the behaviour, not the person"},
	}))

	require.NoError(s.T(), s.entries.Delete(ctx, entry.ID))

	recs, err := s.recs.ListByEntry(ctx, entry.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), recs)

	_, err = s.entries.GetByID(ctx, entry.ID)
	assert.True(s.T(), apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func (s *JournalAdapterIntegrationTestSuite) TestInsightsQueries() {
	ctx := context.Background()
	var ids []string
	for _, level := range []int{3, 6, 9} {
		entry := s.createEntry("user-1", level)
		ids = append(ids, entry.ID)
		// created_at orders the levels
		time.Sleep(5 * time.Millisecond)
	}
	s.createEntry("user-2", 1)

	require.NoError(s.T(), s.recs.CreateBatch(ctx, []*entities.CBTRecommendation{
		{JournalEntryID: ids[0], ThoughtPattern: "Catastrophizing", Recommendation: "a"},
		{JournalEntryID: ids[1], ThoughtPattern: "Catastrophizing", Recommendation: "b"},
		{JournalEntryID: ids[1], ThoughtPattern: "Mind reading", Recommendation: "c"},
		{JournalEntryID: ids[2], ThoughtPattern: "Error analyzing entry", Recommendation: "d"},
	}))

	count, err := s.entries.CountByUser(ctx, "user-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, count)

	levels, err := s.entries.RecentAnxietyLevels(ctx, "user-1", 30)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []int{9, 6, 3}, levels)

	top, err := s.recs.TopPatternsByUser(ctx, "user-1", 3, []string{"Error analyzing entry"})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []entities.PatternCount{
		{Pattern: "Catastrophizing", Count: 2},
		{Pattern: "Mind reading", Count: 1},
	}, top)
}

func (s *JournalAdapterIntegrationTestSuite) TestListWithoutRecommendations() {
	ctx := context.Background()
	pending := s.createEntry("user-1", 4)
	analyzed := s.createEntry("user-1", 4)
	covered := s.createEntry("user-1", 4)

	for _, e := range []*entities.JournalEntry{analyzed, covered} {
		require.NoError(s.T(), s.entries.ApplyTransition(ctx, e.ID, repositories.ConversationUpdate{
			From:             entities.StateAwaitingAnalysis,
			InitialInsight:   entities.StringPtr("insight"),
			ReflectionPrompt: entities.StringPtr("prompt"),
		}))
	}
	require.NoError(s.T(), s.recs.CreateBatch(ctx, []*entities.CBTRecommendation{
		{JournalEntryID: covered.ID, ThoughtPattern: "Labeling", Recommendation: "x"},
	}))

	got, err := s.entries.ListWithoutRecommendations(ctx, "", 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), analyzed.ID, got[0].ID)
	assert.NotEqual(s.T(), pending.ID, got[0].ID)
}

func (s *JournalAdapterIntegrationTestSuite) TestCachedAdapterInvalidatesOnTransition() {
	redisClient := maybeTestRedisClient(s.T())
	if redisClient == nil {
		s.T().Skip("Redis not available")
	}
	defer redisClient.Close()

	ctx := context.Background()
	cached := database.NewCachedJournalEntryAdapter(s.entries, cache.NewRedisAdapter(redisClient), 60, nil)
	entry := s.createEntry("user-1", 5)

	before, err := cached.GetByID(ctx, entry.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), entities.StateAwaitingAnalysis, before.State())

	require.NoError(s.T(), cached.ApplyTransition(ctx, entry.ID, repositories.ConversationUpdate{
		From:             entities.StateAwaitingAnalysis,
		InitialInsight:   entities.StringPtr("insight"),
		ReflectionPrompt: entities.StringPtr("prompt"),
	}))

	after, err := cached.GetByID(ctx, entry.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), entities.StateAwaitingFirstReflection, after.State())
}

func (s *JournalAdapterIntegrationTestSuite) TestResetConversationClearsConversationAndRecommendations() {
	ctx := context.Background()
	entry := s.createEntry("user-1", 7)
	require.NoError(s.T(), s.entries.ApplyTransition(ctx, entry.ID, repositories.ConversationUpdate{
		From:             entities.StateAwaitingAnalysis,
		InitialInsight:   entities.StringPtr("insight"),
		ReflectionPrompt: entities.StringPtr("prompt"),
		UsedFallback:     true,
	}))
	require.NoError(s.T(), s.recs.CreateBatch(ctx, []*entities.CBTRecommendation{
		{JournalEntryID: entry.ID, ThoughtPattern: "Labeling", Recommendation: "x"},
	}))

	edit := repositories.EntryEdit{Title: "Edited", Content: "The exam went fine", AnxietyLevel: 2}
	require.NoError(s.T(), s.entries.ResetConversation(ctx, entry.ID, entities.StateAwaitingFirstReflection, edit))

	got, err := s.entries.GetByID(ctx, entry.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), entities.StateAwaitingAnalysis, got.State())
	assert.Equal(s.T(), "The exam went fine", got.Content)
	assert.Equal(s.T(), 2, got.AnxietyLevel)
	assert.False(s.T(), got.UsedFallback)

	recs, err := s.recs.ListByEntry(ctx, entry.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), recs)

	// A second edit from the old state loses.
	err = s.entries.ResetConversation(ctx, entry.ID, entities.StateAwaitingFirstReflection, edit)
	assert.True(s.T(), apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
}

func (s *JournalAdapterIntegrationTestSuite) TestMoodLogsSince() {
	ctx := context.Background()
	moods := database.NewMoodLogAdapter(s.client)
	now := time.Now().UTC().Truncate(time.Microsecond)

	for _, m := range []*entities.MoodLog{
		{UserID: "user-1", MoodScore: 3, CreatedAt: now.AddDate(0, 0, -10)},
		{UserID: "user-1", MoodScore: 5, CreatedAt: now.AddDate(0, 0, -2)},
		{UserID: "user-1", MoodScore: 8, Notes: "good day", CreatedAt: now.Add(-time.Hour)},
		{UserID: "user-2", MoodScore: 1, CreatedAt: now.Add(-time.Hour)},
	} {
		require.NoError(s.T(), moods.Create(ctx, m))
	}

	got, err := moods.ListByUserSince(ctx, "user-1", now.AddDate(0, 0, -7))
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 2)
	assert.Equal(s.T(), 5, got[0].MoodScore)
	assert.Equal(s.T(), "good day", got[1].Notes)
}

func TestJournalAdapterIntegration(t *testing.T) {
	suite.Run(t, new(JournalAdapterIntegrationTestSuite))
}
