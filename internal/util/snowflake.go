package util

import (
	"fmt"
	"strconv"
	"strings"
)

// SnowflakeToInt64 converts a Discord snowflake to the signed BIGINT column type
func SnowflakeToInt64(id string) (int64, error) {
	value, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snowflake %q: %w", id, err)
	}
	if value > 1<<63-1 {
		return 0, fmt.Errorf("snowflake %q overflows int64", id)
	}
	return int64(value), nil
}

// Int64ToSnowflake converts a BIGINT column value back to a snowflake
func Int64ToSnowflake(id int64) (string, error) {
	if id < 0 {
		return "", fmt.Errorf("negative snowflake %d", id)
	}
	return strconv.FormatInt(id, 10), nil
}

// SanitizeSystemID normalizes a PluralKit system id: trimmed, dashes removed,
// lowercased. ok is false when the result contains anything but ASCII letters.
func SanitizeSystemID(raw string) (id string, ok bool) {
	id = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "-", ""))
	if id == "" {
		return id, false
	}
	for _, c := range id {
		if c < 'a' || c > 'z' {
			return id, false
		}
	}
	return id, true
}
