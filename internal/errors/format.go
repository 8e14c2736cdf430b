package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var ce *CodedError
	if !errors.As(err, &ce) {
		ce = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ce.Message)
	if ce.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ce.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ce.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	var ce *CodedError
	if !errors.As(err, &ce) {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error", ce.Error()),
		slog.String("error_code", ce.Code),
		slog.String("category", string(ce.Category)),
		slog.Bool("retryable", ce.Retryable),
	}
	if ce.Cause != nil {
		attrs = append(attrs, slog.String("cause", ce.Cause.Error()))
	}
	for k, v := range ce.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}
