package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodedError_Unwrap_PreservesCause(t *testing.T) {
	cause := errors.New("disk gone")
	err := New(ErrCodeStoreUnavailable, "open lexical index", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "[ERR_202_STORE_UNAVAILABLE] open lexical index", err.Error())
}

func TestCodedError_Is_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("reindex: %w", New(ErrCodeCorruptIndex, "bad page", nil))

	assert.True(t, errors.Is(err, New(ErrCodeCorruptIndex, "", nil)))
	assert.False(t, errors.Is(err, New(ErrCodeIndexFailed, "", nil)))
}

func TestCodedError_DerivedFields(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeCorruptIndex, CategoryStorage, SeverityFatal, false},
		{ErrCodeStoreUnavailable, CategoryStorage, SeverityWarning, true},
		{ErrCodeEmbeddingFailed, CategoryEmbedding, SeverityWarning, true},
		{ErrCodeDimensionMismatch, CategoryEmbedding, SeverityError, false},
		{ErrCodeQueryEmpty, CategoryValidation, SeverityError, false},
		{ErrCodeSearchFailed, CategoryInternal, SeverityError, false},
		{"bogus", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestCodedError_WithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeIndexLocked, "index is locked", nil).
		WithDetail("path", "/tmp/idx").
		WithSuggestion("stop the other amannotes process")

	assert.Equal(t, "/tmp/idx", err.Details["path"])
	assert.Contains(t, FormatForCLI(err), "Hint: stop the other amannotes process")
	assert.Contains(t, FormatForCLI(err), "Code: ERR_204_INDEX_LOCKED")
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHelpers_InspectWrappedChain(t *testing.T) {
	err := fmt.Errorf("embed chunk: %w", EmbeddingError("timeout", nil))

	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
	assert.Equal(t, ErrCodeEmbeddingFailed, GetCode(err))
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestFormatForCLI_PlainError(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))

	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Empty(t, FormatForCLI(nil))
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(New(ErrCodeCorruptIndex, "bad", errors.New("cause")).WithDetail("file", "a.db"))
	require.NotEmpty(t, attrs)

	keys := make(map[string]string)
	for _, a := range attrs {
		keys[a.Key] = a.Value.String()
	}
	assert.Equal(t, ErrCodeCorruptIndex, keys["error_code"])
	assert.Equal(t, "cause", keys["cause"])
	assert.Equal(t, "a.db", keys["detail_file"])

	plain := LogAttrs(errors.New("x"))
	require.Len(t, plain, 1)
	assert.Equal(t, "error", plain[0].Key)
}
