package domain

import (
	"strconv"
	"time"
)

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatBool(v bool) string {
	return strconv.FormatBool(v)
}
