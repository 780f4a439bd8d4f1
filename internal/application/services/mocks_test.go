package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
	"github.com/zatekoja/dearteddy/backend/internal/domain/repositories"
)

type MockJournalEntryRepo struct {
	mock.Mock
}

func (m *MockJournalEntryRepo) Create(ctx context.Context, entry *entities.JournalEntry) error {
	args := m.Called(ctx, entry)
	if entry.ID == "" {
		entry.ID = "entry-1"
	}
	return args.Error(0)
}

func (m *MockJournalEntryRepo) GetByID(ctx context.Context, id string) (*entities.JournalEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.JournalEntry), args.Error(1)
}

func (m *MockJournalEntryRepo) ListByUser(ctx context.Context, userID string, filter repositories.JournalEntryFilter) ([]*entities.JournalEntry, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.JournalEntry), args.Error(1)
}

func (m *MockJournalEntryRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockJournalEntryRepo) RecentAnxietyLevels(ctx context.Context, userID string, limit int) ([]int, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockJournalEntryRepo) ApplyTransition(ctx context.Context, id string, update repositories.ConversationUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockJournalEntryRepo) ResetConversation(ctx context.Context, id string, from entities.ConversationState, edit repositories.EntryEdit) error {
	return m.Called(ctx, id, from, edit).Error(0)
}

func (m *MockJournalEntryRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJournalEntryRepo) ListWithoutRecommendations(ctx context.Context, afterID string, limit int) ([]*entities.JournalEntry, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.JournalEntry), args.Error(1)
}

func (m *MockJournalEntryRepo) ListStalled(ctx context.Context, updatedBefore time.Time, limit int) ([]*entities.JournalEntry, error) {
	args := m.Called(ctx, updatedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.JournalEntry), args.Error(1)
}

type MockCBTRecommendationRepo struct {
	mock.Mock
}

func (m *MockCBTRecommendationRepo) CreateBatch(ctx context.Context, recommendations []*entities.CBTRecommendation) error {
	args := m.Called(ctx, recommendations)
	return args.Error(0)
}

func (m *MockCBTRecommendationRepo) ListByEntry(ctx context.Context, entryID string) ([]*entities.CBTRecommendation, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.CBTRecommendation), args.Error(1)
}

func (m *MockCBTRecommendationRepo) TopPatternsByUser(ctx context.Context, userID string, limit int, exclude []string) ([]entities.PatternCount, error) {
	args := m.Called(ctx, userID, limit, exclude)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.PatternCount), args.Error(1)
}

type MockCompletionProvider struct {
	mock.Mock
}

func (m *MockCompletionProvider) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	return m.Called(ctx, key, value, expirationSeconds).Error(0)
}

func (m *MockCache) SetIfAbsent(ctx context.Context, key string, value []byte, expirationSeconds int) (bool, error) {
	args := m.Called(ctx, key, value, expirationSeconds)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockCache) Increment(ctx context.Context, key string, expirationSeconds int) (int64, time.Duration, error) {
	args := m.Called(ctx, key, expirationSeconds)
	return args.Get(0).(int64), args.Get(1).(time.Duration), args.Error(2)
}

// cancellableEntryRepo fails writes whose context is done, the way the
// database driver does.
type cancellableEntryRepo struct {
	*MockJournalEntryRepo
}

func (r cancellableEntryRepo) ApplyTransition(ctx context.Context, id string, update repositories.ConversationUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MockJournalEntryRepo.ApplyTransition(ctx, id, update)
}

type cancellableRecommendationRepo struct {
	*MockCBTRecommendationRepo
}

func (r cancellableRecommendationRepo) CreateBatch(ctx context.Context, recommendations []*entities.CBTRecommendation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MockCBTRecommendationRepo.CreateBatch(ctx, recommendations)
}

type MockMoodLogRepo struct {
	mock.Mock
}

func (m *MockMoodLogRepo) Create(ctx context.Context, mood *entities.MoodLog) error {
	args := m.Called(ctx, mood)
	if mood.ID == "" {
		mood.ID = "mood-1"
	}
	return args.Error(0)
}

func (m *MockMoodLogRepo) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]*entities.MoodLog, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.MoodLog), args.Error(1)
}
