package cmd

import (
	"strconv"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// parseID parses a positive numeric identifier argument.
func parseID(what, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, kberrors.Validation("invalid %s %q: must be a positive integer", what, raw)
	}
	return id, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
