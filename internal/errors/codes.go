// Package errors provides structured error handling for amannotes.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (index files, backing databases)
//   - 3XX: Embedding errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryStorage    Category = "STORAGE"
	CategoryEmbedding  Category = "EMBEDDING"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the index cannot be used until it is rebuilt.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeNoteNotFound     = "ERR_201_NOTE_NOT_FOUND"
	ErrCodeStoreUnavailable = "ERR_202_STORE_UNAVAILABLE"
	ErrCodeCorruptIndex     = "ERR_203_CORRUPT_INDEX"
	ErrCodeIndexLocked      = "ERR_204_INDEX_LOCKED"

	// Embedding errors (300-399)
	ErrCodeEmbedderUnavailable = "ERR_301_EMBEDDER_UNAVAILABLE"
	ErrCodeEmbeddingFailed     = "ERR_302_EMBEDDING_FAILED"
	ErrCodeDimensionMismatch   = "ERR_303_DIMENSION_MISMATCH"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty    = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidNoteID = "ERR_403_INVALID_NOTE_ID"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeIndexFailed  = "ERR_502_INDEX_FAILED"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	// "ERR_101_..." -> '1'
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether a later attempt of the same call may succeed.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedderUnavailable, ErrCodeEmbeddingFailed, ErrCodeStoreUnavailable, ErrCodeIndexLocked:
		return true
	default:
		return false
	}
}
