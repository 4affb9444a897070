package common

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"not found", fmt.Errorf("case X: %w", ErrRecordNotFound), codes.NotFound},
		{"validation", ErrValidation, codes.InvalidArgument},
		{"rate limited", &RateLimitError{Provider: "vision"}, codes.ResourceExhausted},
		{"config", ConfigError("missing key"), codes.Internal},
		{"status passes through", InvalidArgumentError("bad id"), codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(ToStatus(tt.err)))
		})
	}
}

func TestRetryAfterOf(t *testing.T) {
	wrapped := fmt.Errorf("batch 2: %w", &RateLimitError{Provider: "vision", RetryAfter: 3 * time.Second})
	assert.True(t, IsRateLimited(wrapped))
	d, ok := RetryAfterOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = RetryAfterOf(&RateLimitError{Provider: "vision"})
	assert.False(t, ok)
	_, ok = RetryAfterOf(errors.New("boom"))
	assert.False(t, ok)
}

func TestValidateAndReturnError(t *testing.T) {
	assert.NoError(t, ValidateAndReturnError(NewValidator().Field("case_id", "CASE-1", CaseID)))

	err := ValidateAndReturnError(NewValidator().Field("case_id", "../etc", CaseID))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, err.Error(), "case_id")
}
