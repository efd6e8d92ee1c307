package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrAuth         ErrorType = "AUTH"
	ErrAPI          ErrorType = "API"
	ErrPrecondition ErrorType = "PRECONDITION"
	ErrRecord       ErrorType = "RECORD"
	ErrConfig       ErrorType = "CONFIG"
	ErrNotFound     ErrorType = "NOT_FOUND"
	ErrInternal     ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
	Timestamp  time.Time
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewAuthError creates a new authentication error
func NewAuthError(message string, cause error) *AppError {
	return New(ErrAuth, message, cause)
}

// NewAPIError creates a new API error carrying the HTTP status code
func NewAPIError(statusCode int, message string) *AppError {
	err := New(ErrAPI, message, nil)
	err.StatusCode = statusCode
	return err
}

// NewPreconditionError creates a new precondition error
func NewPreconditionError(message string, cause error) *AppError {
	return New(ErrPrecondition, message, cause)
}

// NewRecordError creates a new single-record error
func NewRecordError(message string, cause error) *AppError {
	return New(ErrRecord, message, cause)
}

// NewConfigError creates a new configuration error
func NewConfigError(message string, cause error) *AppError {
	return New(ErrConfig, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return New(ErrNotFound, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return New(ErrInternal, message, cause)
}

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsAuth checks if the error is an authentication error
func IsAuth(err error) bool { return isType(err, ErrAuth) }

// IsAPI checks if the error is a data-endpoint API error
func IsAPI(err error) bool { return isType(err, ErrAPI) }

// IsPrecondition checks if the error is a precondition error
func IsPrecondition(err error) bool { return isType(err, ErrPrecondition) }

// IsRecord checks if the error is a contained per-record error
func IsRecord(err error) bool { return isType(err, ErrRecord) }

// IsConfig checks if the error is a configuration error
func IsConfig(err error) bool { return isType(err, ErrConfig) }

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return isType(err, ErrNotFound) }

// StatusCode extracts the HTTP status code from an API error, or 0.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 0
}

// SyncInProgressError represents an error when a sync run is already active
// for a provider
type SyncInProgressError struct {
	Provider string
}

func (e *SyncInProgressError) Error() string {
	return fmt.Sprintf("sync already in progress for provider: %s", e.Provider)
}

// NewSyncInProgressError creates a new SyncInProgressError
func NewSyncInProgressError(provider string) error {
	return &SyncInProgressError{Provider: provider}
}

// IsSyncInProgress checks if the error is a sync-in-progress error
func IsSyncInProgress(err error) bool {
	var e *SyncInProgressError
	return errors.As(err, &e)
}

// UnmappedAccountsError represents a failed account-mapping precondition. It
// lists every provider account that lacks a local counterpart.
type UnmappedAccountsError struct {
	Provider string
	Accounts []string
}

func (e *UnmappedAccountsError) Error() string {
	return fmt.Sprintf("cannot sync %s - unmapped accounts: %s", e.Provider, strings.Join(e.Accounts, ", "))
}

// NewUnmappedAccountsError creates a new UnmappedAccountsError
func NewUnmappedAccountsError(provider string, accounts []string) error {
	return &UnmappedAccountsError{Provider: provider, Accounts: accounts}
}

// IsUnmappedAccounts checks if the error is an unmapped-accounts error
func IsUnmappedAccounts(err error) bool {
	var e *UnmappedAccountsError
	return errors.As(err, &e)
}
