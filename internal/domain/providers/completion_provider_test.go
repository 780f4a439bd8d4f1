package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCompletionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"timeout sentinel", fmt.Errorf("openai: %w", ErrCompletionTimeout), ErrorKindTimeout},
		{"context deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), ErrorKindTimeout},
		{"rate limited", fmt.Errorf("status 429: %w", ErrCompletionRateLimited), ErrorKindRateLimit},
		{"missing key", ErrCompletionConfigMissing, ErrorKindConfig},
		{"malformed", fmt.Errorf("parse: %w", ErrCompletionMalformed), ErrorKindMalformed},
		{"anything else", errors.New("connection reset"), ErrorKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyCompletionError(tt.err))
		})
	}
}
