package adapter

import "strconv"

// asFloat coerces a numeric argument, returning 0 when absent or non-numeric.
func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// asInt coerces an integer argument, falling back to def when absent or not
// a whole number.
func asInt(v interface{}, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		if n == float64(int64(n)) {
			return int(n)
		}
	}
	return def
}

func itoa(n int) string { return strconv.Itoa(n) }
