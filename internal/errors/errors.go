package errors

import (
	"errors"
	"fmt"
)

// CodedError is the structured error type used at package boundaries.
// It carries a stable code so callers and logs can classify failures
// without matching on message text.
type CodedError struct {
	// Code is the unique error code (e.g., "ERR_302_EMBEDDING_FAILED").
	Code string

	Message  string
	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	Cause     error
	Retryable bool

	// Suggestion is an actionable hint shown by the CLI.
	Suggestion string
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is(err, New(code, "", nil)) works.
func (e *CodedError) Is(target error) bool {
	if t, ok := target.(*CodedError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *CodedError) WithDetail(key, value string) *CodedError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *CodedError) WithSuggestion(suggestion string) *CodedError {
	e.Suggestion = suggestion
	return e
}

// New creates a CodedError. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *CodedError {
	return &CodedError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CodedError from an existing error, reusing its message.
// Returns nil for a nil error.
func Wrap(code string, err error) *CodedError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func ConfigError(message string, cause error) *CodedError {
	return New(ErrCodeConfigInvalid, message, cause)
}

func StorageError(message string, cause error) *CodedError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

func EmbeddingError(message string, cause error) *CodedError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

func ValidationError(message string, cause error) *CodedError {
	return New(ErrCodeInvalidInput, message, cause)
}

// IsRetryable reports whether any CodedError in the chain is retryable.
func IsRetryable(err error) bool {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal reports whether the error has fatal severity.
func IsFatal(err error) bool {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" if err carries none.
func GetCode(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
