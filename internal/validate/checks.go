package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"cleanse/internal/rules"
)

// Check names accepted under a column's "checks" mapping.
const (
	CheckNotNull    = "not_null"
	CheckUnique     = "unique"
	CheckInRange    = "in_range"
	CheckGE         = "ge"
	CheckLE         = "le"
	CheckGT         = "gt"
	CheckLT         = "lt"
	CheckIsIn       = "isin"
	CheckNotIn      = "notin"
	CheckStartsWith = "str_startswith"
	CheckEndsWith   = "str_endswith"
	CheckMatches    = "str_matches"
	CheckLength     = "str_length"
)

// cellCheck tests one non-null cell.
type cellCheck func(v any) bool

// compiled is one check bound to a column.
type compiled struct {
	column string
	name   string
	// cell is nil for column-level checks (unique, not_null).
	cell cellCheck
}

func compileColumn(column string, cs rules.ColumnSchema) ([]compiled, []error) {
	var (
		out  []compiled
		errs []error
	)
	if !cs.Nullable {
		out = append(out, compiled{column: column, name: CheckNotNull})
	}

	names := make([]string, 0, len(cs.Checks))
	for n := range cs.Checks {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == CheckNotNull && !cs.Nullable {
			continue
		}
		arg := cs.Checks[name]
		c, err := compileCheck(column, cs.DType, name, arg)
		if err != nil {
			errs = append(errs, fmt.Errorf("schema.%s.checks.%s: %w", column, name, err))
			continue
		}
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, errs
}

func compileCheck(column string, dt rules.DType, name string, arg any) (*compiled, error) {
	c := &compiled{column: column, name: name}
	switch name {
	case CheckNotNull, CheckUnique:
		on, ok := arg.(bool)
		if !ok {
			return nil, fmt.Errorf("want a boolean, got %T", arg)
		}
		if !on {
			return nil, nil
		}
		return c, nil

	case CheckInRange:
		m, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("want a mapping with min_value and/or max_value, got %T", arg)
		}
		if err := requireNumeric(dt); err != nil {
			return nil, err
		}
		lo, hasLo := m["min_value"]
		hi, hasHi := m["max_value"]
		if !hasLo && !hasHi {
			return nil, fmt.Errorf("at least one of min_value or max_value is required")
		}
		var minV, maxV float64
		if hasLo {
			if minV, ok = toFloat(lo); !ok {
				return nil, fmt.Errorf("min_value must be a number, got %T", lo)
			}
		}
		if hasHi {
			if maxV, ok = toFloat(hi); !ok {
				return nil, fmt.Errorf("max_value must be a number, got %T", hi)
			}
		}
		if hasLo && hasHi && minV > maxV {
			return nil, fmt.Errorf("min_value %v exceeds max_value %v", minV, maxV)
		}
		c.cell = func(v any) bool {
			x, ok := toFloat(v)
			return ok && (!hasLo || x >= minV) && (!hasHi || x <= maxV)
		}
		return c, nil

	case CheckGE, CheckLE, CheckGT, CheckLT:
		if err := requireNumeric(dt); err != nil {
			return nil, err
		}
		bound, ok := toFloat(arg)
		if !ok {
			return nil, fmt.Errorf("want a number, got %T", arg)
		}
		cmp := map[string]func(x float64) bool{
			CheckGE: func(x float64) bool { return x >= bound },
			CheckLE: func(x float64) bool { return x <= bound },
			CheckGT: func(x float64) bool { return x > bound },
			CheckLT: func(x float64) bool { return x < bound },
		}[name]
		c.cell = func(v any) bool {
			x, ok := toFloat(v)
			return ok && cmp(x)
		}
		return c, nil

	case CheckIsIn, CheckNotIn:
		list, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("want a list, got %T", arg)
		}
		if dt == rules.DTypeDate || dt == rules.DTypeDatetime {
			return nil, fmt.Errorf("not supported for %s columns", dt)
		}
		set := make(map[any]struct{}, len(list))
		for _, item := range list {
			set[setKey(item)] = struct{}{}
		}
		want := name == CheckIsIn
		c.cell = func(v any) bool {
			_, hit := set[setKey(v)]
			return hit == want
		}
		return c, nil

	case CheckStartsWith, CheckEndsWith:
		if err := requireString(dt); err != nil {
			return nil, err
		}
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("want a string, got %T", arg)
		}
		has := strings.HasPrefix
		if name == CheckEndsWith {
			has = strings.HasSuffix
		}
		c.cell = func(v any) bool {
			x, ok := v.(string)
			return ok && has(x, s)
		}
		return c, nil

	case CheckMatches:
		if err := requireString(dt); err != nil {
			return nil, err
		}
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("want a regular expression string, got %T", arg)
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, err
		}
		c.cell = func(v any) bool {
			x, ok := v.(string)
			return ok && re.MatchString(x)
		}
		return c, nil

	case CheckLength:
		if err := requireString(dt); err != nil {
			return nil, err
		}
		m, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("want a mapping with min_value and/or max_value, got %T", arg)
		}
		lo, hasLo := m["min_value"]
		hi, hasHi := m["max_value"]
		if !hasLo && !hasHi {
			return nil, fmt.Errorf("at least one of min_value or max_value is required")
		}
		minN, okLo := toFloat(lo)
		maxN, okHi := toFloat(hi)
		if (hasLo && !okLo) || (hasHi && !okHi) {
			return nil, fmt.Errorf("min_value and max_value must be numbers")
		}
		c.cell = func(v any) bool {
			x, ok := v.(string)
			if !ok {
				return false
			}
			n := float64(len([]rune(x)))
			return (!hasLo || n >= minN) && (!hasHi || n <= maxN)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown check %q", name)
}

func requireNumeric(dt rules.DType) error {
	if !dt.IsNumeric() {
		return fmt.Errorf("requires a numeric column, have %s", dt)
	}
	return nil
}

func requireString(dt rules.DType) error {
	if dt != rules.DTypeString {
		return fmt.Errorf("requires a string column, have %s", dt)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// setKey folds numeric values so 1, int64(1) and 1.0 compare equal.
func setKey(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}
