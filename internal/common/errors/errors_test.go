package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_Unwrap(t *testing.T) {
	cause := stderrors.New("dial tcp: connection refused")
	err := fmt.Errorf("upsert batch 3: %w", NewServiceRequestFailedError("batch", cause))

	se, ok := AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeServiceRequestFailed, se.Code)
	assert.True(t, se.Retryable)
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "batch", se.Metadata["operation"])
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"auth", NewServiceAuthFailedError(401, "unauthorized"), true},
		{"unconfigured", NewServiceUnconfiguredError("placeholder id"), true},
		{"schema", NewSchemaSetupFailedError("genres", stderrors.New("bad type")), true},
		{"rejected batch", NewServiceRejectedError("batch", 400, "bad"), false},
		{"transport", NewServiceRequestFailedError("batch", stderrors.New("reset")), false},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), true},
		{"plain", stderrors.New("something"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestConvertToBPMNError(t *testing.T) {
	t.Run("retryable keeps retry budget", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewServiceRequestFailedError("batch", stderrors.New("x")))
		assert.Equal(t, "SERVICE_REQUEST_FAILED", bpmn.Code)
		assert.Equal(t, 3, bpmn.Retries)
		vars := bpmn.ToErrorVariables()
		assert.Equal(t, "SERVICE_REQUEST_FAILED", vars["originalErrorCode"])
		assert.Equal(t, true, vars["retryable"])
	})

	t.Run("non-retryable has zero retries", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewDatasetMissingError("dataset/movies_metadata.csv"))
		assert.Equal(t, 0, bpmn.Retries)
		assert.False(t, bpmn.Retryable)
	})

	t.Run("rejected 5xx is retryable but has no budget", func(t *testing.T) {
		se := NewServiceRejectedError("recomms", 503, "busy")
		assert.True(t, se.Retryable)
		assert.Equal(t, 0, ConvertToBPMNError(se).Retries)
	})
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "RECOMMENDER", GetErrorCategory(ErrCodeServiceAuthFailed))
	assert.Equal(t, "RECOMMENDER", GetErrorCategory(ErrCodeCircuitOpen))
	assert.Equal(t, "INGESTION", GetErrorCategory(ErrCodeDatasetMissing))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeQueryExecutionFailed))
	assert.Equal(t, "SEARCH", GetErrorCategory(ErrCodeSearchQueryFailed))
	assert.Equal(t, "CACHE", GetErrorCategory(ErrCodeCacheFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeMovieNotFound))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
	assert.Equal(t, ErrCodeMovieNotFound, CodeOf(fmt.Errorf("lookup: %w", NewMovieNotFoundError("42"))))
}
