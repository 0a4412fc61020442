package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var englishPrinter = message.NewPrinter(language.English)

// DefaultRoleColor is Discord's default role colour
const DefaultRoleColor = 0x99AAB5

// HexToColor parses a hex colour such as "#EEEEEE" or "eeeeee".
// Missing or unparseable values return DefaultRoleColor.
func HexToColor(hex string) int {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if hex == "" {
		return DefaultRoleColor
	}
	value, err := strconv.ParseUint(hex, 16, 32)
	if err != nil || value > 0xFFFFFF {
		return DefaultRoleColor
	}
	return int(value)
}

// FormatSignificantDuration renders the two most significant units of d,
// e.g. "2d 4h", "5h 5m", "20m 1s" or "0s".
func FormatSignificantDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	total := int64(d / time.Second)

	days := total / 86400
	hours := (total % 86400) / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// FormatThousands renders n with English digit grouping, e.g. "1,234,567"
func FormatThousands(n int64) string {
	return englishPrinter.Sprintf("%d", n)
}
