package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
)

// JournalEntryRepository defines the interface for journal entry data operations
type JournalEntryRepository interface {
	// Create inserts a new entry in AWAITING_ANALYSIS
	Create(ctx context.Context, entry *entities.JournalEntry) error

	// GetByID retrieves an entry by ID
	GetByID(ctx context.Context, id string) (*entities.JournalEntry, error)

	// ListByUser retrieves a user's entries, newest first
	ListByUser(ctx context.Context, userID string, filter JournalEntryFilter) ([]*entities.JournalEntry, error)

	// CountByUser returns how many entries a user has written
	CountByUser(ctx context.Context, userID string) (int, error)

	// RecentAnxietyLevels returns up to limit anxiety levels, newest first
	RecentAnxietyLevels(ctx context.Context, userID string, limit int) ([]int, error)

	// ApplyTransition writes the set fields of update, but only while the
	// entry is still in update.From. A lost race is reported as an
	// INVALID_STATE_TRANSITION error and nothing is written.
	ApplyTransition(ctx context.Context, id string, update ConversationUpdate) error

	// ResetConversation writes edit, clears every conversation field and drops
	// the entry's recommendations, but only while the entry is still in from.
	// The entry is left in AWAITING_ANALYSIS.
	ResetConversation(ctx context.Context, id string, from entities.ConversationState, edit EntryEdit) error

	// Delete removes an entry and its recommendations
	Delete(ctx context.Context, id string) error

	// ListWithoutRecommendations pages through analyzed entries that have no
	// CBT recommendations, ordered by ID and starting after afterID.
	ListWithoutRecommendations(ctx context.Context, afterID string, limit int) ([]*entities.JournalEntry, error)

	// ListStalled returns entries left in an analysis state since before the cutoff
	ListStalled(ctx context.Context, updatedBefore time.Time, limit int) ([]*entities.JournalEntry, error)
}

// JournalEntryFilter defines filters for listing journal entries
type JournalEntryFilter struct {
	Limit  int
	Offset int
}

// EntryEdit is the user-written part of an entry
type EntryEdit struct {
	Title        string
	Content      string
	AnxietyLevel int
}

// ConversationUpdate is a partial update applied when a conversation advances.
// Nil fields are left untouched.
type ConversationUpdate struct {
	From entities.ConversationState

	InitialInsight       *string
	ReflectionPrompt     *string
	UserReflection       *string
	FollowupInsight      *string
	SecondReflection     *string
	ClosingMessage       *string
	ConversationComplete bool
	UsedFallback         bool
}

// CBTRecommendationRepository defines the interface for CBT recommendation data operations
type CBTRecommendationRepository interface {
	// CreateBatch inserts recommendations for one or more entries
	CreateBatch(ctx context.Context, recommendations []*entities.CBTRecommendation) error

	// ListByEntry retrieves the recommendations attached to an entry
	ListByEntry(ctx context.Context, entryID string) ([]*entities.CBTRecommendation, error)

	// TopPatternsByUser returns the most frequent thought patterns across a
	// user's entries, skipping the names in exclude.
	TopPatternsByUser(ctx context.Context, userID string, limit int, exclude []string) ([]entities.PatternCount, error)
}

type consistentReadKey struct{}

// WithConsistentRead marks reads made with ctx as needing the stored row.
// Caching decorators must go to the database for them.
func WithConsistentRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, consistentReadKey{}, true)
}

// ConsistentRead reports whether ctx was marked by WithConsistentRead.
func ConsistentRead(ctx context.Context) bool {
	v, _ := ctx.Value(consistentReadKey{}).(bool)
	return v
}
