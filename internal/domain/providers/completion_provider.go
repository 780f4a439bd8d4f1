package providers

import (
	"context"
	"errors"
)

// CompletionRequest is a single prompt sent to a language model.
type CompletionRequest struct {
	SystemPrompt string
	Prompt       string
	// JSONMode asks the model for a single JSON object. The prompt itself
	// must mention JSON or providers may ignore the flag.
	JSONMode    bool
	Temperature float64
	MaxTokens   int
}

// CompletionProvider returns raw model output for a prompt.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

var (
	// ErrCompletionTimeout indicates the model did not answer in time.
	ErrCompletionTimeout = errors.New("completion timed out")
	// ErrCompletionRateLimited indicates the provider refused the call for quota or rate reasons.
	ErrCompletionRateLimited = errors.New("completion rate limited")
	// ErrCompletionConfigMissing indicates the provider is not configured or rejected the credentials.
	ErrCompletionConfigMissing = errors.New("completion provider not configured")
	// ErrCompletionMalformed indicates the model answered with something that could not be used.
	ErrCompletionMalformed = errors.New("completion response malformed")
)

// ErrorKind labels why a completion could not be used. It only feeds logs and metrics.
type ErrorKind string

const (
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindConfig    ErrorKind = "config"
	ErrorKindMalformed ErrorKind = "malformed"
	ErrorKindUnknown   ErrorKind = "unknown"
)

// ClassifyCompletionError maps an error from a CompletionProvider or parser to its kind.
func ClassifyCompletionError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrCompletionTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, ErrCompletionRateLimited):
		return ErrorKindRateLimit
	case errors.Is(err, ErrCompletionConfigMissing):
		return ErrorKindConfig
	case errors.Is(err, ErrCompletionMalformed):
		return ErrorKindMalformed
	default:
		return ErrorKindUnknown
	}
}
