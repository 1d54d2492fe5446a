package solver

import (
	"math"
	"strconv"
	"strings"
)

// Normalize coerces a raw answer into the value submitted to the quiz
// endpoint. Only strings are rewritten: booleans and numbers are recognised,
// anything unparseable is returned trimmed.
func Normalize(raw any) any {
	text, ok := raw.(string)
	if !ok {
		return raw
	}
	trimmed := strings.TrimSpace(text)
	switch strings.ToLower(trimmed) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	if strings.Contains(trimmed, ".") {
		value, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return trimmed
		}
		if whole, ok := wholeNumber(value); ok {
			return whole
		}
		return value
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return trimmed
	}
	return value
}

func wholeNumber(value float64) (int64, bool) {
	if math.IsInf(value, 0) || math.IsNaN(value) || value != math.Trunc(value) {
		return 0, false
	}
	if value < math.MinInt64 || value >= math.MaxInt64 {
		return 0, false
	}
	return int64(value), true
}
