package schema

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type DType string

const (
	DTypeBoolean DType = "BOOLEAN"
	DTypeDate    DType = "DATE"
	DTypeInteger DType = "INTEGER"
	DTypeFloat   DType = "FLOAT"
	DTypeText    DType = "TEXT"
)

// datePattern is unanchored: any embedded d/m/y fragment marks the cell as a date.
var datePattern = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`)

var (
	leadingIntegerPattern = regexp.MustCompile(`^\s*[+-]?\d+`)
	integerPattern        = regexp.MustCompile(`^\s*[+-]?\d+\s*$`)
)

// Classify maps formatted cell text to a dtype label. It never fails.
func Classify(text string) DType {
	lower := strings.ToLower(text)
	if lower == "true" || lower == "false" {
		return DTypeBoolean
	}
	if datePattern.MatchString(text) {
		return DTypeDate
	}
	if hasIntegerPrefix(text) {
		return DTypeInteger
	}
	if isCanonicalFloat(text) {
		return DTypeFloat
	}
	return DTypeText
}

// hasIntegerPrefix accepts text that starts with an integer, such as "42kg" or "12.5kg",
// unless the whole text is a decimal literal like "3.14" or "1e5".
func hasIntegerPrefix(text string) bool {
	if !leadingIntegerPattern.MatchString(text) {
		return false
	}
	if integerPattern.MatchString(text) {
		return true
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	return err != nil
}

func isCanonicalFloat(text string) bool {
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) {
		return false
	}
	return formatNumber(value) == text
}

// formatNumber renders a float the way a JSON/ECMAScript number prints: plain decimal
// notation between 1e-6 and 1e21, exponent notation outside it.
func formatNumber(value float64) string {
	switch {
	case math.IsInf(value, 1):
		return "Infinity"
	case math.IsInf(value, -1):
		return "-Infinity"
	case value == 0:
		return "0"
	}
	abs := math.Abs(value)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	formatted := strconv.FormatFloat(value, 'e', -1, 64)
	mantissa, exponent, ok := strings.Cut(formatted, "e")
	if !ok {
		return formatted
	}
	sign := exponent[:1]
	digits := strings.TrimLeft(exponent[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mantissa + "e" + sign + digits
}
