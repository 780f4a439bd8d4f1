package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/dearteddy/backend/internal/application/prompts"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/dearteddy/backend/pkg/errors"
)

// Coping statements used when the model cannot be reached, chosen by failure kind.
const (
	CopingFallbackRateLimited = "I notice you're feeling anxious. While I can't generate a personalized statement right now due to API limits, remember that this feeling is temporary, and you have overcome challenges before."
	CopingFallbackConfig      = "Take a deep breath. This moment is temporary, and you have the strength to handle what comes next."
	CopingFallbackDefault     = "In this moment of anxiety, remember that you have the tools and strength within you to navigate through these feelings."
)

const (
	stageCoping = "coping"

	copingTemperature      = 0.7
	copingMaxTokens        = 100
	maxCopingContextLength = 1000
)

// CopingStatement is a short grounding statement for an anxious moment.
type CopingStatement struct {
	Statement string `json:"statement"`
	Fallback  bool   `json:"fallback"`
}

// CopingService generates coping statements.
type CopingService struct {
	llm     providers.CompletionProvider
	metrics *observability.Metrics
}

// NewCopingService creates a new coping service
func NewCopingService(llm providers.CompletionProvider, metrics *observability.Metrics) *CopingService {
	return &CopingService{llm: llm, metrics: metrics}
}

// Generate returns a one or two sentence statement for the given anxiety
// context. Model failures never surface; a fixed statement is returned instead.
func (s *CopingService) Generate(ctx context.Context, anxietyContext string) (*CopingStatement, error) {
	anxietyContext = strings.TrimSpace(anxietyContext)
	if anxietyContext == "" {
		return nil, apperrors.NewValidationError("anxiety context is required")
	}
	if utf8.RuneCountInString(anxietyContext) > maxCopingContextLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("anxiety context must be at most %d characters", maxCopingContextLength))
	}

	var raw string
	callErr := providers.ErrCompletionConfigMissing
	if s.llm != nil {
		raw, callErr = s.llm.Complete(ctx, providers.CompletionRequest{
			SystemPrompt: prompts.CopingSystemPrompt,
			Prompt:       prompts.BuildCopingPrompt(anxietyContext),
			Temperature:  copingTemperature,
			MaxTokens:    copingMaxTokens,
		})
	}

	outcome := prompts.Resolve(raw, callErr, prompts.ParseCopingStatement)
	if outcome.OK() {
		observability.RecordTransition(ctx, s.metrics, stageCoping, "ai")
		return &CopingStatement{Statement: outcome.Value}, nil
	}

	log.Warn().Err(outcome.Err).Str("kind", string(outcome.Kind)).Msg("using fallback coping statement")
	observability.RecordTransition(ctx, s.metrics, stageCoping, "fallback")
	observability.RecordFallback(ctx, s.metrics, stageCoping, string(outcome.Kind))
	return &CopingStatement{Statement: copingFallback(outcome.Kind), Fallback: true}, nil
}

func copingFallback(kind providers.ErrorKind) string {
	switch kind {
	case providers.ErrorKindRateLimit:
		return CopingFallbackRateLimited
	case providers.ErrorKindConfig:
		return CopingFallbackConfig
	default:
		return CopingFallbackDefault
	}
}
