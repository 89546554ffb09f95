package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	nonNumericRe   = regexp.MustCompile(`[^0-9.,-]`)
	decimalCommaRe = regexp.MustCompile(`,\d{1,2}$`)
	currencyCodeRe = regexp.MustCompile(`\b([A-Z]{3})\b`)
)

var currencySymbols = []struct{ symbol, code string }{
	{"€", "EUR"},
	{"$", "USD"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
}

// ParseNumber coerces a cell to a float. Every character outside [0-9.-] is
// dropped; a trailing ",dd" is read as a decimal comma ("3,50", "1.299,00").
// ok is false when nothing parseable remains, in which case the value is 0.
func ParseNumber(value string) (float64, bool) {
	cleaned := nonNumericRe.ReplaceAllString(strings.TrimSpace(value), "")
	if cleaned == "" {
		return 0, false
	}

	if decimalCommaRe.MatchString(cleaned) {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// ParseInt coerces a cell to an integer, truncating any fraction
func ParseInt(value string) (int, bool) {
	n, ok := ParseNumber(value)
	if !ok {
		return 0, false
	}
	return int(math.Trunc(n)), true
}

// DetectCurrency reads an ISO code or currency symbol out of a price cell
func DetectCurrency(value string) string {
	if m := currencyCodeRe.FindStringSubmatch(value); len(m) > 1 {
		return m[1]
	}
	for _, c := range currencySymbols {
		if strings.Contains(value, c.symbol) {
			return c.code
		}
	}
	return ""
}
