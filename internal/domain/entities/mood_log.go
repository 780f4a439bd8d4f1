package entities

import "time"

// Mood score bounds accepted on mood check-ins.
const (
	MinMoodScore = 1
	MaxMoodScore = 10
)

// MoodLog is a quick mood check-in recorded outside any journal entry.
type MoodLog struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	MoodScore int       `json:"mood_score" db:"mood_score"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
