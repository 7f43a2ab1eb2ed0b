// Package errors provides structured error handling for codeseek.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, local store)
//   - 3XX: Network/connectivity errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and local storage I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates connectivity errors against the embedder or
	// a remote vector store.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input or embedder self-test failures.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates an unrecoverable error, the pass must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the pass can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid  = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigDisabled = "ERR_102_CONFIG_DISABLED"
	ErrCodeConfigMissing  = "ERR_103_CONFIG_MISSING_FIELD"

	// IO errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileRead     = "ERR_202_FILE_READ"
	ErrCodeFileTooLarge = "ERR_203_FILE_TOO_LARGE"
	ErrCodeStoreCorrupt = "ERR_204_STORE_CORRUPT"
	ErrCodeCacheIO      = "ERR_205_CACHE_IO"

	// Network errors (300-399)
	ErrCodeServiceUnreachable = "ERR_301_SERVICE_UNREACHABLE"
	ErrCodeHostUnresolvable   = "ERR_302_HOST_UNRESOLVABLE"
	ErrCodeRateLimited        = "ERR_303_RATE_LIMITED"
	ErrCodeProviderServer     = "ERR_304_PROVIDER_SERVER"
	ErrCodeRetriesExhausted   = "ERR_305_RETRIES_EXHAUSTED"

	// Validation errors (400-499)
	ErrCodeModelNotFound     = "ERR_401_MODEL_NOT_FOUND"
	ErrCodeValidationFailed  = "ERR_402_VALIDATION_FAILED"
	ErrCodeDimensionMismatch = "ERR_403_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_404_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeUpsertFailed    = "ERR_503_UPSERT_FAILED"
	ErrCodeSearchFailed    = "ERR_504_SEARCH_FAILED"
	ErrCodeStaleGeneration = "ERR_505_STALE_GENERATION"
)

// categoryFromCode extracts the category from an error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt, ErrCodeRetriesExhausted, ErrCodeServiceUnreachable, ErrCodeHostUnresolvable:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRateLimited, ErrCodeProviderServer:
		return true
	default:
		return false
	}
}
