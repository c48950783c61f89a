// Package errors provides the standardized error taxonomy shared by the
// ingestion job, the recommendation gateway and the HTTP layer.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Recommendation service errors
const (
	ErrCodeServiceUnconfigured  ErrorCode = "SERVICE_UNCONFIGURED"
	ErrCodeServiceAuthFailed    ErrorCode = "SERVICE_AUTH_FAILED"
	ErrCodeServiceRequestFailed ErrorCode = "SERVICE_REQUEST_FAILED"
	ErrCodeServiceRejected      ErrorCode = "SERVICE_REJECTED"
	ErrCodeServiceTimeout       ErrorCode = "SERVICE_TIMEOUT"
	ErrCodeSchemaSetupFailed    ErrorCode = "SCHEMA_SETUP_FAILED"
	ErrCodeCircuitOpen          ErrorCode = "CIRCUIT_OPEN"
)

// Ingestion errors
const (
	ErrCodeDatasetMissing    ErrorCode = "DATASET_MISSING"
	ErrCodeDatasetReadFailed ErrorCode = "DATASET_READ_FAILED"
	ErrCodeIngestionAborted  ErrorCode = "INGESTION_ABORTED"
)

// Storage and infrastructure errors
const (
	ErrCodeDatabaseConnectionFailed      ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed          ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeCacheFailed                   ErrorCode = "CACHE_FAILED"
	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeSearchQueryFailed             ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeNotificationSendFailed        ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeWorkflowEngineFailed          ErrorCode = "WORKFLOW_ENGINE_FAILED"
)

// Request errors
const (
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeMovieNotFound  ErrorCode = "MOVIE_NOT_FOUND"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	se := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		se.Details = cause.Error()
	}
	return se
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewServiceUnconfiguredError is returned before any network call when the
// recommendation service credentials are missing or still placeholders.
func NewServiceUnconfiguredError(details string) *StandardError {
	se := newError(ErrCodeServiceUnconfigured, "Recommendation service is not configured", nil, false)
	se.Details = details
	return se
}

// NewServiceAuthFailedError creates a non-retryable credentials error.
func NewServiceAuthFailedError(status int, body string) *StandardError {
	se := newError(ErrCodeServiceAuthFailed, "Recommendation service rejected credentials", nil, false)
	se.Details = fmt.Sprintf("status: %d, body: %s", status, truncate(body, 200))
	return se.WithMetadata("status", status)
}

// NewServiceRequestFailedError creates a retryable transport error.
func NewServiceRequestFailedError(operation string, err error) *StandardError {
	se := newError(ErrCodeServiceRequestFailed, fmt.Sprintf("Recommendation service call '%s' failed", operation), err, true)
	return se.WithMetadata("operation", operation)
}

// NewServiceRejectedError marks a request the service answered with a
// non-success status other than an auth failure.
func NewServiceRejectedError(operation string, status int, body string) *StandardError {
	se := newError(ErrCodeServiceRejected, fmt.Sprintf("Recommendation service rejected '%s'", operation), nil, status >= 500)
	se.Details = fmt.Sprintf("status: %d, body: %s", status, truncate(body, 200))
	return se.WithMetadata("operation", operation).WithMetadata("status", status)
}

// NewServiceTimeoutError creates a retryable timeout error.
func NewServiceTimeoutError(operation string, err error) *StandardError {
	return newError(ErrCodeServiceTimeout, fmt.Sprintf("Recommendation service call '%s' timed out", operation), err, true)
}

// NewSchemaSetupFailedError creates a non-retryable property declaration error.
func NewSchemaSetupFailedError(property string, err error) *StandardError {
	se := newError(ErrCodeSchemaSetupFailed, fmt.Sprintf("Declaring property '%s' failed", property), err, false)
	return se.WithMetadata("property", property)
}

// NewCircuitOpenError is returned while the query breaker is open.
func NewCircuitOpenError(name string, err error) *StandardError {
	se := newError(ErrCodeCircuitOpen, fmt.Sprintf("Circuit '%s' is open", name), err, true)
	return se.WithMetadata("breaker", name)
}

// NewDatasetMissingError creates a non-retryable missing input file error.
func NewDatasetMissingError(path string) *StandardError {
	se := newError(ErrCodeDatasetMissing, "Dataset file not found", nil, false)
	se.Details = fmt.Sprintf("path: %s", path)
	return se.WithMetadata("path", path)
}

// NewDatasetReadFailedError wraps I/O and header errors of an input table.
func NewDatasetReadFailedError(table string, err error) *StandardError {
	se := newError(ErrCodeDatasetReadFailed, fmt.Sprintf("Reading table '%s' failed", table), err, false)
	return se.WithMetadata("table", table)
}

// NewIngestionAbortedError wraps the fatal error that stopped a run.
func NewIngestionAbortedError(stage string, err error) *StandardError {
	se := newError(ErrCodeIngestionAborted, fmt.Sprintf("Ingestion aborted during %s", stage), err, false)
	return se.WithMetadata("stage", stage)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err, true)
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	se := newError(ErrCodeQueryExecutionFailed, "Database query execution error", err, true)
	se.Details = fmt.Sprintf("queryType: %s, error: %s", queryType, se.Details)
	return se
}

// NewCacheFailedError creates a retryable cache error.
func NewCacheFailedError(op string, err error) *StandardError {
	return newError(ErrCodeCacheFailed, fmt.Sprintf("Cache %s failed", op), err, true)
}

// NewElasticsearchConnectionFailedError creates a retryable Elasticsearch connection error.
func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeElasticsearchConnectionFailed, "Elasticsearch connection error", err, true)
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(queryType string, err error) *StandardError {
	se := newError(ErrCodeSearchQueryFailed, "Elasticsearch query error", err, true)
	se.Details = fmt.Sprintf("queryType: %s, error: %s", queryType, se.Details)
	return se
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	se := newError(ErrCodeNotificationSendFailed, "Notification delivery failed", err, true)
	se.Details = fmt.Sprintf("type: %s, error: %s", channel, se.Details)
	return se
}

// NewWorkflowEngineError wraps a failed Zeebe command.
func NewWorkflowEngineError(operation string, err error, retryable bool) *StandardError {
	se := newError(ErrCodeWorkflowEngineFailed, fmt.Sprintf("Workflow engine operation '%s' failed", operation), err, retryable)
	return se.WithMetadata("operation", operation)
}

func NewInvalidRequestError(details string) *StandardError {
	se := newError(ErrCodeInvalidRequest, "Invalid request", nil, false)
	se.Details = details
	return se
}

func NewMovieNotFoundError(movieID string) *StandardError {
	se := newError(ErrCodeMovieNotFound, "Movie not found", nil, false)
	se.Details = fmt.Sprintf("movieId: %s", movieID)
	return se
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for a job failing with code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeServiceRequestFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeWorkflowEngineFailed,
		ErrCodeCacheFailed:
		return 3

	case ErrCodeServiceTimeout,
		ErrCodeCircuitOpen:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard finds a StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CodeOf returns the code of the first StandardError in err's chain, or
// INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if se, ok := AsStandard(err); ok {
		return se.Code
	}
	return ErrCodeInternal
}

// IsFatal reports whether err must abort a batch job instead of being
// counted and skipped.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch CodeOf(err) {
	case ErrCodeServiceUnconfigured, ErrCodeServiceAuthFailed, ErrCodeSchemaSetupFailed,
		ErrCodeDatasetMissing, ErrCodeIngestionAborted:
		return true
	}
	return false
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "SERVICE") || strings.Contains(codeStr, "SCHEMA") || strings.Contains(codeStr, "CIRCUIT"):
		return "RECOMMENDER"
	case strings.Contains(codeStr, "DATASET") || strings.Contains(codeStr, "INGESTION"):
		return "INGESTION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY_EXECUTION"):
		return "DATABASE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "WORKFLOW"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "NOT_FOUND"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
