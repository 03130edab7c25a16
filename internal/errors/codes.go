// Package errors provides structured error handling for unifind.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and lookup errors (files, entries, accounts)
//   - 3XX: Network and backend errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//   - 6XX: Authorization errors
//   - 7XX: Provider sync errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, entry and account lookup errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network and search backend errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryAuthorization indicates an owner touching another owner's data.
	CategoryAuthorization Category = "AUTHORIZATION"
	// CategorySync indicates provider sync failures.
	CategorySync Category = "SYNC"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission   = "ERR_202_FILE_PERMISSION"
	ErrCodeCorruptIndex     = "ERR_203_CORRUPT_INDEX"
	ErrCodeEntryNotFound    = "ERR_204_ENTRY_NOT_FOUND"
	ErrCodeAccountNotFound  = "ERR_205_ACCOUNT_NOT_FOUND"
	ErrCodePartialWrite     = "ERR_206_PARTIAL_WRITE"
	ErrCodeStoreUnavailable = "ERR_207_STORE_UNAVAILABLE"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeBackendUnavailable = "ERR_302_BACKEND_UNAVAILABLE"
	ErrCodeProviderRateLimit  = "ERR_303_PROVIDER_RATE_LIMIT"
	ErrCodeCircuitOpen        = "ERR_304_PROVIDER_CIRCUIT_OPEN"

	// Validation errors (400-499)
	ErrCodeInvalidInput        = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty          = "ERR_402_QUERY_EMPTY"
	ErrCodeUnsupportedProvider = "ERR_403_UNSUPPORTED_PROVIDER"
	ErrCodeInvalidPath         = "ERR_404_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_503_INDEX_FAILED"

	// Authorization errors (600-699)
	ErrCodeAccessDenied = "ERR_601_ACCESS_DENIED"

	// Sync errors (700-799)
	ErrCodeSyncFailed   = "ERR_701_SYNC_FAILED"
	ErrCodeTokenInvalid = "ERR_702_TOKEN_INVALID"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '6':
		return CategoryAuthorization
	case '7':
		return CategorySync
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeSyncFailed, ErrCodeTokenInvalid, ErrCodePartialWrite:
		// Logged at the worker boundary, never fatal to the worker.
		return SeverityWarning
	}

	// Retryable network errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeBackendUnavailable, ErrCodeProviderRateLimit:
		return true
	default:
		return false
	}
}
