package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesFieldsFromCode(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{
			name:      "config code",
			code:      ErrCodeConfigInvalid,
			category:  CategoryConfig,
			severity:  SeverityError,
			retryable: false,
		},
		{
			name:      "corrupt index is fatal",
			code:      ErrCodeCorruptIndex,
			category:  CategoryIO,
			severity:  SeverityFatal,
			retryable: false,
		},
		{
			name:      "retrieval unavailable is retryable warning",
			code:      ErrCodeRetrievalUnavailable,
			category:  CategoryRetrieval,
			severity:  SeverityWarning,
			retryable: true,
		},
		{
			name:      "timeout is not retryable by the engine",
			code:      ErrCodeTimeout,
			category:  CategoryRetrieval,
			severity:  SeverityError,
			retryable: false,
		},
		{
			name:      "resource exhausted is retryable",
			code:      ErrCodeResourceExhausted,
			category:  CategoryRetrieval,
			severity:  SeverityWarning,
			retryable: true,
		},
		{
			name:      "unknown role is validation",
			code:      ErrCodeUnknownRole,
			category:  CategoryValidation,
			severity:  SeverityError,
			retryable: false,
		},
		{
			name:      "internal",
			code:      ErrCodeInternal,
			category:  CategoryInternal,
			severity:  SeverityError,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)

			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestError_FormatIncludesCode(t *testing.T) {
	err := New(ErrCodeQueryEmpty, "query must not be empty", nil)

	assert.Equal(t, "[ERR_403_QUERY_EMPTY] query must not be empty", err.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeRetrievalUnavailable, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connection refused", err.Message)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	err := Timeout("search timed out", context.DeadlineExceeded)
	target := New(ErrCodeTimeout, "", nil)

	assert.True(t, errors.Is(err, target))
	assert.False(t, errors.Is(err, New(ErrCodeInternal, "", nil)))
}

func TestUnknownRole_CarriesDetailAndSuggestion(t *testing.T) {
	err := UnknownRole("librarian")

	assert.Equal(t, ErrCodeUnknownRole, err.Code)
	assert.Equal(t, "librarian", err.Details["role"])
	assert.NotEmpty(t, err.Suggestion)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(RetrievalUnavailable("dense index down", nil)))
	assert.False(t, IsRetryable(QueryEmpty()))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeResourceExhausted, GetCode(ResourceExhausted("too many requests")))
	assert.Empty(t, GetCode(fmt.Errorf("plain error")))
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAndWrapsLastError(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}

	lastErr := fmt.Errorf("still down")
	err := Retry(context.Background(), cfg, func() error { return lastErr })

	require.Error(t, err)
	assert.ErrorIs(t, err, lastErr)
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error {
		return fmt.Errorf("should not matter")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, fmt.Errorf("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
