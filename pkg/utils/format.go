// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatPrice formats a price with thousands separators and two decimals.
// A nil price renders as a dash.
func FormatPrice(price *float64) string {
	if price == nil || math.IsNaN(*price) || math.IsInf(*price, 0) {
		return "-"
	}
	return FormatNumber(*price, 2)
}

// FormatNumber formats a value with thousands separators.
func FormatNumber(value float64, decimals int) string {
	negative := value < 0
	if negative {
		value = -value
	}

	str := fmt.Sprintf("%.*f", decimals, value)
	intPart, decPart, hasDec := strings.Cut(str, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	result := b.String()
	if hasDec {
		result += "." + decPart
	}
	if negative {
		result = "-" + result
	}
	return result
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	if value >= 0 {
		return fmt.Sprintf("+%.2f%%", value)
	}
	return fmt.Sprintf("%.2f%%", value)
}

// FormatUntil formats the time remaining until t relative to now.
func FormatUntil(t, now time.Time) string {
	d := t.Sub(now)
	if d <= 0 {
		return "expired"
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%02dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
