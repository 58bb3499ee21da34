// Package errors provides standardized error handling for the lead engine.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Configuration errors: fatal to a whole ingestion run.
	ErrCodeBranchNotFound ErrorCode = "BRANCH_NOT_FOUND"
	ErrCodeBranchInactive ErrorCode = "BRANCH_INACTIVE"

	// Store collaborator errors: retryable, bounded.
	ErrCodeMappingFetchFailed       ErrorCode = "MAPPING_FETCH_FAILED"
	ErrCodeStoreUnavailable         ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"

	// Inbound request errors.
	ErrCodePayloadInvalid ErrorCode = "PAYLOAD_INVALID"
	ErrCodeBatchTooLarge  ErrorCode = "BATCH_TOO_LARGE"
	ErrCodeLeadNotFound   ErrorCode = "LEAD_NOT_FOUND"

	// Outbound notification errors.
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewBranchNotFoundError creates a non-retryable configuration error.
func NewBranchNotFoundError(branchID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBranchNotFound,
		Message:   "Branch not found in schema registry",
		Details:   fmt.Sprintf("branchId: %s", branchID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewBranchInactiveError creates a non-retryable configuration error.
func NewBranchInactiveError(branchID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBranchInactive,
		Message:   "Branch is deactivated and cannot accept leads",
		Details:   fmt.Sprintf("branchId: %s", branchID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMappingFetchError creates a retryable schema registry error.
func NewMappingFetchError(branchID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMappingFetchFailed,
		Message:   "Failed to fetch field mappings",
		Details:   fmt.Sprintf("branchId: %s, error: %s", branchID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError creates a retryable persistence collaborator error.
func NewStoreUnavailableError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Lead store unavailable",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPayloadInvalidError creates a non-retryable inbound payload error.
func NewPayloadInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePayloadInvalid,
		Message:   "Ingestion payload failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewBatchTooLargeError creates a non-retryable inbound payload error.
func NewBatchTooLargeError(size, limit int) *StandardError {
	return &StandardError{
		Code:      ErrCodeBatchTooLarge,
		Message:   "Ingestion batch exceeds configured limit",
		Details:   fmt.Sprintf("size: %d, limit: %d", size, limit),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLeadNotFoundError creates a non-retryable lookup error.
func NewLeadNotFoundError(leadID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLeadNotFound,
		Message:   "Lead not found",
		Details:   fmt.Sprintf("leadId: %s", leadID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification error.
func NewNotificationSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Failed to send lead notification",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreUnavailable,
		ErrCodeMappingFetchFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeNotificationSendFailed:
		return 3 // Retryable technical errors

	default:
		return 0 // Configuration and payload errors: no retry
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// AsStandard normalizes any error to a StandardError.
func AsStandard(err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
