package frame

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/itlightning/dateparse"
)

// Boolean vocabularies accepted when casting text to Bool. Matching is
// case-insensitive after trimming.
var (
	truthy = map[string]struct{}{"true": {}, "t": {}, "1": {}, "yes": {}, "y": {}, "on": {}}
	falsy  = map[string]struct{}{"false": {}, "f": {}, "0": {}, "no": {}, "n": {}, "off": {}}
)

// castColumn converts every cell of c to dtype to. Cells that cannot be
// converted become null; casting never fails.
func castColumn(c *Column, to DType) *Column {
	if c.dtype == to {
		return c
	}
	out := make([]any, len(c.values))
	for i, v := range c.values {
		out[i] = castValue(v, c.dtype, to)
	}
	return newColumn(c.name, to, out)
}

// castValue converts a single stored cell. It returns nil when v is null or
// cannot be represented in the target type.
func castValue(v any, from, to DType) any {
	if v == nil {
		return nil
	}
	if from == to {
		return v
	}
	switch to {
	case String:
		return formatValue(v, from)
	case Float32, Float64:
		f, ok := toFloat(v)
		if !ok || math.IsNaN(f) {
			return nil
		}
		if to == Float32 {
			return float64(float32(f))
		}
		return f
	case Int32, Int64:
		n, ok := toInt(v)
		if !ok || (to == Int32 && !fitsInt32(n)) {
			return nil
		}
		return n
	case Bool:
		return toBool(v)
	case Date:
		t, ok := toTime(v)
		if !ok {
			return nil
		}
		return truncateDay(t)
	case Datetime:
		t, ok := toTime(v)
		if !ok {
			return nil
		}
		return t
	}
	return nil
}

func formatValue(v any, from DType) any {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if from == Date {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339Nano)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// toInt truncates floats toward zero; non-finite floats and unparsable text
// fail.
func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x > math.MaxInt64 || x < math.MinInt64 {
			return 0, false
		}
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func toBool(v any) any {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if _, ok := truthy[s]; ok {
			return true
		}
		if _, ok := falsy[s]; ok {
			return false
		}
	}
	return nil
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return ParseTime(x)
	}
	return time.Time{}, false
}

// ParseTime parses text into a time using best-effort format detection.
// Timezone-less inputs are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func fitsInt32(n int64) bool { return n >= math.MinInt32 && n <= math.MaxInt32 }
