package entities

import (
	"fmt"
	"time"
)

// ConversationState is the position of a journal entry in its reflection conversation.
// It is never stored; it is derived from which conversation fields are set.
type ConversationState string

const (
	StateAwaitingAnalysis         ConversationState = "AWAITING_ANALYSIS"
	StateAwaitingFirstReflection  ConversationState = "AWAITING_FIRST_REFLECTION"
	StateAwaitingFollowupAnalysis ConversationState = "AWAITING_FOLLOWUP_ANALYSIS"
	StateAwaitingSecondReflection ConversationState = "AWAITING_SECOND_REFLECTION"
	StateAwaitingClosingAnalysis  ConversationState = "AWAITING_CLOSING_ANALYSIS"
	StateComplete                 ConversationState = "COMPLETE"
)

// Editable reports whether an entry in this state may be edited by its owner.
// That holds while the conversation waits on the user or has finished.
func (s ConversationState) Editable() bool {
	switch s {
	case StateAwaitingFirstReflection, StateAwaitingSecondReflection, StateComplete:
		return true
	default:
		return false
	}
}

// Anxiety level bounds accepted on journal entries.
const (
	MinAnxietyLevel = 1
	MaxAnxietyLevel = 10
)

// JournalEntry is one user-authored journaling session and the AI conversation attached to it.
type JournalEntry struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Title        string    `json:"title,omitempty" db:"title"`
	Content      string    `json:"content" db:"content"`
	AnxietyLevel int       `json:"anxiety_level" db:"anxiety_level"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`

	InitialInsight       *string `json:"initial_insight" db:"initial_insight"`
	ReflectionPrompt     *string `json:"reflection_prompt" db:"reflection_prompt"`
	UserReflection       *string `json:"user_reflection" db:"user_reflection"`
	FollowupInsight      *string `json:"followup_insight" db:"followup_insight"`
	SecondReflection     *string `json:"second_reflection" db:"second_reflection"`
	ClosingMessage       *string `json:"closing_message" db:"closing_message"`
	ConversationComplete bool    `json:"conversation_complete" db:"conversation_complete"`

	// UsedFallback records that at least one stage stored fallback text instead of an AI reply.
	UsedFallback bool `json:"used_fallback" db:"used_fallback"`
}

// State derives the conversation state from the nullable conversation fields.
func (e *JournalEntry) State() ConversationState {
	switch {
	case e.InitialInsight == nil:
		return StateAwaitingAnalysis
	case e.UserReflection == nil:
		return StateAwaitingFirstReflection
	case e.FollowupInsight == nil:
		return StateAwaitingFollowupAnalysis
	case e.SecondReflection == nil:
		return StateAwaitingSecondReflection
	case e.ClosingMessage == nil:
		return StateAwaitingClosingAnalysis
	default:
		return StateComplete
	}
}

// Validate checks that conversation fields are filled strictly in order and
// that the completion flag agrees with the closing message.
func (e *JournalEntry) Validate() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"initial_insight", e.InitialInsight},
		{"user_reflection", e.UserReflection},
		{"followup_insight", e.FollowupInsight},
		{"second_reflection", e.SecondReflection},
		{"closing_message", e.ClosingMessage},
	}

	for i := 1; i < len(fields); i++ {
		if fields[i].value != nil && fields[i-1].value == nil {
			return fmt.Errorf("journal entry %s: %s is set before %s", e.ID, fields[i].name, fields[i-1].name)
		}
	}
	if (e.InitialInsight == nil) != (e.ReflectionPrompt == nil) {
		return fmt.Errorf("journal entry %s: initial_insight and reflection_prompt must be set together", e.ID)
	}
	if e.ConversationComplete != (e.ClosingMessage != nil) {
		return fmt.Errorf("journal entry %s: conversation_complete=%t disagrees with closing_message", e.ID, e.ConversationComplete)
	}
	return nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// CBTRecommendation is a thought pattern noticed in an entry with a suggested reframe.
type CBTRecommendation struct {
	ID             string    `json:"id" db:"id"`
	JournalEntryID string    `json:"journal_entry_id" db:"journal_entry_id"`
	ThoughtPattern string    `json:"thought_pattern" db:"thought_pattern"`
	Recommendation string    `json:"recommendation" db:"recommendation"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// MaxThoughtPatternLength is the storage limit for CBTRecommendation.ThoughtPattern.
const MaxThoughtPatternLength = 255

// PatternCount is how often a thought pattern has appeared across a user's entries.
type PatternCount struct {
	Pattern string `json:"pattern" db:"thought_pattern"`
	Count   int    `json:"count" db:"count"`
}

// JournalStats summarises a user's journaling history.
type JournalStats struct {
	TotalEntries      int            `json:"total_entries"`
	AnxietyAverage    *float64       `json:"anxiety_average"`
	AnxietyTrend      *float64       `json:"anxiety_trend"`
	RecurringPatterns []PatternCount `json:"recurring_patterns"`
}
