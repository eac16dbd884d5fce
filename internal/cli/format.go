// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		// Negate through uint64 so math.MinInt64 does not overflow.
		return "-" + groupDigits(strconv.FormatUint(uint64(-(n+1))+1, 10))
	}
	return groupDigits(strconv.FormatInt(n, 10))
}

func groupDigits(s string) string {
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// Above this magnitude tenths no longer fit comfortably in an int64.
const maxTenthsAmount = 1e15

// FormatAmount formats a projected resource total with one decimal.
// e.g., 12345.67 -> "12,345.7"
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}

	abs := math.Abs(v)
	var s string
	if abs < maxTenthsAmount {
		tenths := int64(math.Round(abs * 10))
		if tenths == 0 {
			return "0.0"
		}
		s = FormatNumber(tenths/10) + "." + strconv.FormatInt(tenths%10, 10)
	} else {
		whole, frac, _ := strings.Cut(strconv.FormatFloat(abs, 'f', 1, 64), ".")
		s = groupDigits(whole) + "." + frac
	}

	if v < 0 {
		return "-" + s
	}
	return s
}

// FormatRate formats a per-period change with an explicit sign.
// e.g., 30 -> "+30.0/3m"
func FormatRate(change float64) string {
	sign := "+"
	if change < 0 {
		sign = ""
	}
	return sign + FormatAmount(change) + "/3m"
}

// FormatAgo renders how long before now t was, or "never" for a zero time.
func FormatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	secs := int64(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	default:
		return fmt.Sprintf("%dh %dm ago", secs/3600, (secs%3600)/60)
	}
}
