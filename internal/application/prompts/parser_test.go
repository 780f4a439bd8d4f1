package prompts

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
)

func TestParseInitial(t *testing.T) {
	raw := `{
		"insight_text": " You sound anxious about the exam. ",
		"reflection_prompt": "Take a moment. What would passing mean to you?",
		"thought_patterns": [
			{"pattern": "Catastrophizing", "description": "Expecting the worst", "recommendation": "Look for evidence"},
			{"pattern": "  ", "description": "ignored", "recommendation": "ignored"}
		]
	}`

	result, err := ParseInitial(raw)
	require.NoError(t, err)

	assert.Equal(t, "You sound anxious about the exam.", result.InsightText)
	assert.Equal(t, "Take a moment. What would passing mean to you?", result.ReflectionPrompt)
	require.Len(t, result.ThoughtPatterns, 1)
	assert.Equal(t, "Catastrophizing", result.ThoughtPatterns[0].Pattern)
}

func TestParseInitial_WithoutPatterns(t *testing.T) {
	result, err := ParseInitial(`{"insight_text":"a","reflection_prompt":"b"}`)
	require.NoError(t, err)
	assert.Empty(t, result.ThoughtPatterns)
}

func TestParseInitial_StripsCodeFence(t *testing.T) {
	raw := "```json\n{\"insight_text\":\"a\",\"reflection_prompt\":\"b\"}\n```"
	result, err := ParseInitial(raw)
	require.NoError(t, err)
	assert.Equal(t, "a", result.InsightText)
}

func TestParseInitial_SurroundingText(t *testing.T) {
	raw := `Here you go: {"insight_text":"a","reflection_prompt":"b"} Hope that helps.`
	result, err := ParseInitial(raw)
	require.NoError(t, err)
	assert.Equal(t, "b", result.ReflectionPrompt)
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name   string
		parse  func(string) error
		raw    string
		reason string
	}{
		{"empty", func(s string) error { _, err := ParseInitial(s); return err }, "   ", "empty response"},
		{"not json", func(s string) error { _, err := ParseInitial(s); return err }, "I'm sorry, I can't help", "not a JSON object"},
		{"array", func(s string) error { _, err := ParseInitial(s); return err }, `[{"insight_text":"a"}]`, "JSON array"},
		{"broken json", func(s string) error { _, err := ParseInitial(s); return err }, `{"insight_text": "a"`, "invalid JSON"},
		{"missing reflection prompt", func(s string) error { _, err := ParseInitial(s); return err }, `{"insight_text":"a"}`, "missing key reflection_prompt"},
		{"blank insight", func(s string) error { _, err := ParseInitial(s); return err }, `{"insight_text":" ","reflection_prompt":"b"}`, "empty value for insight_text"},
		{"followup missing key", func(s string) error { _, err := ParseFollowup(s); return err }, `{"insight_text":"a"}`, "missing key followup_text"},
		{"closing wrong type", func(s string) error { _, err := ParseClosing(s); return err }, `{"closing_message": 42}`, "invalid JSON"},
		{"patterns missing key", func(s string) error { _, err := ParsePatterns(s); return err }, `{}`, "missing key thought_patterns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.parse(tt.raw)
			require.Error(t, err)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Contains(t, parseErr.Reason, tt.reason)
			assert.ErrorIs(t, err, providers.ErrCompletionMalformed)
			assert.Equal(t, providers.ErrorKindMalformed, providers.ClassifyCompletionError(err))
		})
	}
}

func TestParseFollowupAndClosing(t *testing.T) {
	followup, err := ParseFollowup(`{"followup_text":"That makes sense."}`)
	require.NoError(t, err)
	assert.Equal(t, "That makes sense.", followup.FollowupText)

	closing, err := ParseClosing(`{"closing_message":"Take a short walk today."}`)
	require.NoError(t, err)
	assert.Equal(t, "Take a short walk today.", closing.ClosingMessage)
}

func TestParsePatterns_TruncatesLongNames(t *testing.T) {
	long := strings.Repeat("é", 300)
	patterns, err := ParsePatterns(fmt.Sprintf(`{"thought_patterns":[{"pattern":%q,"recommendation":"r"}]}`, long))
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 255, len([]rune(patterns[0].Pattern)))
}

func TestParsePatterns_EmptyList(t *testing.T) {
	patterns, err := ParsePatterns(`{"thought_patterns":[]}`)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestParseCopingStatement(t *testing.T) {
	text, err := ParseCopingStatement("  \"This feeling will pass, and I can take one step at a time.\"  ")
	require.NoError(t, err)
	assert.Equal(t, "This feeling will pass, and I can take one step at a time.", text)

	_, err = ParseCopingStatement("\"\"")
	assert.ErrorIs(t, err, providers.ErrCompletionMalformed)
}

func TestResolve(t *testing.T) {
	ok := Resolve(`{"followup_text":"hi"}`, nil, ParseFollowup)
	assert.True(t, ok.OK())
	assert.Equal(t, "hi", ok.Value.FollowupText)

	timedOut := Resolve("", fmt.Errorf("openai: %w", providers.ErrCompletionTimeout), ParseFollowup)
	assert.False(t, timedOut.OK())
	assert.Equal(t, providers.ErrorKindTimeout, timedOut.Kind)

	malformed := Resolve("not json", nil, ParseFollowup)
	assert.False(t, malformed.OK())
	assert.Equal(t, providers.ErrorKindMalformed, malformed.Kind)
}
