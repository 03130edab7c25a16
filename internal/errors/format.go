package errors

import (
	"fmt"
	"log/slog"
	"strings"
)

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ue, ok := As(err)
	if !ok {
		ue = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ue.Message))
	if ue.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ue.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", ue.Code))

	return sb.String()
}

// Reason returns the short reason string surfaced to callers of on-demand
// operations: the message plus the code, without the cause chain.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if ue, ok := As(err); ok {
		return fmt.Sprintf("%s (%s)", ue.Message, ue.Code)
	}
	return err.Error()
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	ue, ok := As(err)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": ue.Code,
		"message":    ue.Message,
		"category":   string(ue.Category),
		"severity":   string(ue.Severity),
		"retryable":  ue.Retryable,
	}

	if ue.Cause != nil {
		result["cause"] = ue.Cause.Error()
	}

	for k, v := range ue.Details {
		result["detail_"+k] = v
	}

	return result
}

// LogAttrs returns FormatForLog as a slog attribute group under "error".
func LogAttrs(err error) slog.Attr {
	fields := FormatForLog(err)
	attrs := make([]any, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.Group("error", attrs...)
}
