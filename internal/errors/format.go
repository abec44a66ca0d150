package errors

import (
	"fmt"
	"log/slog"
	"strings"
)

// SafeMessage returns err's message cut to limit characters. A KBError
// contributes its message without the code prefix. A blank message is
// replaced by the error's type name.
func SafeMessage(err error, limit int) string {
	if err == nil {
		return "unknown"
	}
	var msg string
	if ke, ok := err.(*KBError); ok {
		msg = strings.TrimSpace(ke.Message)
	} else {
		msg = strings.TrimSpace(err.Error())
	}
	if msg == "" {
		msg = fmt.Sprintf("%T", err)
	}
	if limit <= 0 {
		return msg
	}
	n := 0
	for i := range msg {
		if n == limit {
			return msg[:i]
		}
		n++
	}
	return msg
}

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ke, ok := As(err)
	if !ok {
		ke = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ke.Message)
	if ke.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ke.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ke.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err.
//
//	slog.Error("reindex_failed", errors.LogAttrs(err)...)
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	ke, ok := As(err)
	if !ok {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error_code", ke.Code),
		slog.String("error", ke.Message),
		slog.String("category", string(ke.Category)),
		slog.Bool("retryable", ke.Retryable),
	}
	if ke.Cause != nil && ke.Cause.Error() != ke.Message {
		attrs = append(attrs, slog.String("cause", ke.Cause.Error()))
	}
	for k, v := range ke.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}
