package errors

import (
	stderrors "errors"
	"fmt"
)

// UnifindError is the structured error type for unifind.
// It provides rich context for error handling, logging, and user presentation.
type UnifindError struct {
	// Code is the unique error code (e.g., "ERR_204_ENTRY_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *UnifindError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *UnifindError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is works against sentinel-like values
// built with New(code, "", nil).
func (e *UnifindError) Is(target error) bool {
	if t, ok := target.(*UnifindError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *UnifindError) WithDetail(key, value string) *UnifindError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *UnifindError) WithSuggestion(suggestion string) *UnifindError {
	e.Suggestion = suggestion
	return e
}

// New creates a new UnifindError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *UnifindError {
	return &UnifindError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a UnifindError from an existing error.
// The error's message becomes the UnifindError message.
func Wrap(code string, err error) *UnifindError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *UnifindError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an error for a missing or malformed request field.
func ValidationError(message string, cause error) *UnifindError {
	return New(ErrCodeInvalidInput, message, cause)
}

// AuthorizationError creates an error for a path or account that does not
// belong to the requesting owner.
func AuthorizationError(message string) *UnifindError {
	return New(ErrCodeAccessDenied, message, nil)
}

// NotFoundError creates an error for a missing entry.
func NotFoundError(message string) *UnifindError {
	return New(ErrCodeEntryNotFound, message, nil)
}

// AccountNotFoundError creates an error for a missing linked account.
func AccountNotFoundError(accountID string) *UnifindError {
	return New(ErrCodeAccountNotFound, "linked account not found", nil).
		WithDetail("account_id", accountID)
}

// BackendUnavailable creates an error for an unreachable search engine.
func BackendUnavailable(cause error) *UnifindError {
	return New(ErrCodeBackendUnavailable, "search backend unavailable", cause).
		WithSuggestion("Check that the search index directory is readable and retry")
}

// SyncFailure creates a provider sync error for one account.
func SyncFailure(message string, cause error) *UnifindError {
	return New(ErrCodeSyncFailed, message, cause)
}

// PartialWriteFailure creates an error for a batch commit that failed mid-crawl.
func PartialWriteFailure(message string, cause error) *UnifindError {
	return New(ErrCodePartialWrite, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *UnifindError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *UnifindError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first UnifindError in err's chain.
func As(err error) (*UnifindError, bool) {
	var ue *UnifindError
	if stderrors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if ue, ok := As(err); ok {
		return ue.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ue, ok := As(err); ok {
		return ue.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code.
// Returns empty string if err carries no UnifindError.
func GetCode(err error) string {
	if ue, ok := As(err); ok {
		return ue.Code
	}
	return ""
}

// GetCategory extracts the category.
// Returns empty string if err carries no UnifindError.
func GetCategory(err error) Category {
	if ue, ok := As(err); ok {
		return ue.Category
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return GetCategory(err) == CategoryValidation
}

// IsAuthorization reports whether err is an access-denied error.
func IsAuthorization(err error) bool {
	return GetCategory(err) == CategoryAuthorization
}

// IsNotFound reports whether err is an entry, account or file lookup miss.
func IsNotFound(err error) bool {
	switch GetCode(err) {
	case ErrCodeEntryNotFound, ErrCodeAccountNotFound, ErrCodeFileNotFound:
		return true
	}
	return false
}

// IsBackendUnavailable reports whether err is a search backend outage.
func IsBackendUnavailable(err error) bool {
	return GetCode(err) == ErrCodeBackendUnavailable
}

// IsSyncFailure reports whether err is a provider sync failure.
func IsSyncFailure(err error) bool {
	return GetCategory(err) == CategorySync
}
