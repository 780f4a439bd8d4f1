package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zatekoja/dearteddy/backend/internal/domain/entities"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
)

// ThoughtPattern is a cognitive distortion the model noticed in an entry.
type ThoughtPattern struct {
	Pattern        string `json:"pattern"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// InitialResult is the parsed reply to BuildInitialPrompt.
type InitialResult struct {
	InsightText      string
	ReflectionPrompt string
	ThoughtPatterns  []ThoughtPattern
}

// FollowupResult is the parsed reply to BuildFollowupPrompt.
type FollowupResult struct {
	FollowupText string
}

// ClosingResult is the parsed reply to BuildClosingPrompt.
type ClosingResult struct {
	ClosingMessage string
}

// ParseError describes a model reply that could not be used.
type ParseError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s response: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s response: %s", e.Stage, e.Reason)
}

// Is makes every ParseError match providers.ErrCompletionMalformed.
func (e *ParseError) Is(target error) bool {
	return target == providers.ErrCompletionMalformed
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Outcome is the result of one completion call: either a parsed value or the
// kind of failure that prevented one.
type Outcome[T any] struct {
	Value T
	Kind  providers.ErrorKind
	Err   error
}

// OK reports whether Value holds a usable reply.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Resolve folds a provider call and its parse into a single Outcome.
func Resolve[T any](raw string, callErr error, parse func(string) (T, error)) Outcome[T] {
	if callErr != nil {
		return Outcome[T]{Kind: providers.ClassifyCompletionError(callErr), Err: callErr}
	}
	value, err := parse(raw)
	if err != nil {
		return Outcome[T]{Kind: providers.ErrorKindMalformed, Err: err}
	}
	return Outcome[T]{Value: value}
}

type initialPayload struct {
	InsightText      *string          `json:"insight_text"`
	ReflectionPrompt *string          `json:"reflection_prompt"`
	ThoughtPatterns  []ThoughtPattern `json:"thought_patterns"`
}

type followupPayload struct {
	FollowupText *string `json:"followup_text"`
}

type closingPayload struct {
	ClosingMessage *string `json:"closing_message"`
}

type patternsPayload struct {
	ThoughtPatterns *[]ThoughtPattern `json:"thought_patterns"`
}

// ParseInitial parses the reply to BuildInitialPrompt. thought_patterns is optional.
func ParseInitial(raw string) (InitialResult, error) {
	var payload initialPayload
	if err := decodeObject("initial", raw, &payload); err != nil {
		return InitialResult{}, err
	}

	insight, err := required("initial", "insight_text", payload.InsightText)
	if err != nil {
		return InitialResult{}, err
	}
	prompt, err := required("initial", "reflection_prompt", payload.ReflectionPrompt)
	if err != nil {
		return InitialResult{}, err
	}

	return InitialResult{
		InsightText:      insight,
		ReflectionPrompt: prompt,
		ThoughtPatterns:  cleanPatterns(payload.ThoughtPatterns),
	}, nil
}

// ParseFollowup parses the reply to BuildFollowupPrompt.
func ParseFollowup(raw string) (FollowupResult, error) {
	var payload followupPayload
	if err := decodeObject("followup", raw, &payload); err != nil {
		return FollowupResult{}, err
	}
	text, err := required("followup", "followup_text", payload.FollowupText)
	if err != nil {
		return FollowupResult{}, err
	}
	return FollowupResult{FollowupText: text}, nil
}

// ParseClosing parses the reply to BuildClosingPrompt.
func ParseClosing(raw string) (ClosingResult, error) {
	var payload closingPayload
	if err := decodeObject("closing", raw, &payload); err != nil {
		return ClosingResult{}, err
	}
	text, err := required("closing", "closing_message", payload.ClosingMessage)
	if err != nil {
		return ClosingResult{}, err
	}
	return ClosingResult{ClosingMessage: text}, nil
}

// ParsePatterns parses the reply to BuildPatternPrompt.
func ParsePatterns(raw string) ([]ThoughtPattern, error) {
	var payload patternsPayload
	if err := decodeObject("patterns", raw, &payload); err != nil {
		return nil, err
	}
	if payload.ThoughtPatterns == nil {
		return nil, &ParseError{Stage: "patterns", Reason: "missing key thought_patterns"}
	}
	return cleanPatterns(*payload.ThoughtPatterns), nil
}

// ParseCopingStatement cleans a plain-text coping statement.
func ParseCopingStatement(raw string) (string, error) {
	text := strings.TrimSpace(stripCodeFence(raw))
	text = strings.Trim(text, "\"“”")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ParseError{Stage: "coping", Reason: "empty statement"}
	}
	return text, nil
}

func decodeObject(stage, raw string, dst interface{}) error {
	cleaned := strings.TrimSpace(stripCodeFence(raw))
	if cleaned == "" {
		return &ParseError{Stage: stage, Reason: "empty response"}
	}
	if strings.HasPrefix(cleaned, "[") {
		return &ParseError{Stage: stage, Reason: "response is a JSON array, not an object"}
	}
	if !strings.HasPrefix(cleaned, "{") {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start < 0 || end < start {
			return &ParseError{Stage: stage, Reason: "response is not a JSON object"}
		}
		cleaned = cleaned[start : end+1]
	}
	if err := json.Unmarshal([]byte(cleaned), dst); err != nil {
		return &ParseError{Stage: stage, Reason: "invalid JSON", Err: err}
	}
	return nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return cleaned
}

func required(stage, key string, value *string) (string, error) {
	if value == nil {
		return "", &ParseError{Stage: stage, Reason: "missing key " + key}
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return "", &ParseError{Stage: stage, Reason: "empty value for " + key}
	}
	return trimmed, nil
}

func cleanPatterns(in []ThoughtPattern) []ThoughtPattern {
	out := make([]ThoughtPattern, 0, len(in))
	for _, p := range in {
		p.Pattern = truncateRunes(strings.TrimSpace(p.Pattern), entities.MaxThoughtPatternLength)
		p.Description = strings.TrimSpace(p.Description)
		p.Recommendation = strings.TrimSpace(p.Recommendation)
		if p.Pattern == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
