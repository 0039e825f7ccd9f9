package extraction

import (
	"math"
	"strconv"
	"strings"
)

var separatorStripper = strings.NewReplacer(",", "", ".", "")

// ParseAmount normalizes a captured monetary figure. Grouping and decimal
// separators are dropped and the last two digits are read as cents, so
// "1.234.567,89" becomes 1234567.89. Malformed input reports false.
func ParseAmount(raw string) (float64, bool) {
	digits := separatorStripper.Replace(strings.TrimSpace(raw))
	if digits == "" {
		return 0, false
	}
	if len(digits) > 2 {
		digits = digits[:len(digits)-2] + "." + digits[len(digits)-2:]
	}
	value, err := strconv.ParseFloat(digits, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, false
	}
	return value, true
}

// ParseBrazilianNumber reads "1.234,56" style figures: dots group
// thousands and the comma is the decimal separator.
func ParseBrazilianNumber(raw string) (float64, bool) {
	normalized := strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(raw), ".", ""), ",", ".")
	if normalized == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}
