package frame

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Column is an immutable, named, typed vector of cells. Cells are stored as
// string, float64, int64, bool or time.Time depending on the DType; nil is
// null.
type Column struct {
	name   string
	dtype  DType
	values []any
}

// NewColumn validates and copies values into a new Column. Go numeric types
// are widened to the column's storage type (int -> int64, float32 -> float64).
func NewColumn(name string, dtype DType, values []any) (*Column, error) {
	if name == "" {
		return nil, errors.New("frame: column name must not be empty")
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("frame: column %q: invalid dtype %d", name, dtype)
	}
	out := make([]any, len(values))
	for i, v := range values {
		nv, err := normalizeCell(dtype, v)
		if err != nil {
			return nil, fmt.Errorf("frame: column %q row %d: %w", name, i, err)
		}
		out[i] = nv
	}
	return &Column{name: name, dtype: dtype, values: out}, nil
}

// MustColumn is NewColumn that panics on error. Intended for tests and
// literals.
func MustColumn(name string, dtype DType, values ...any) *Column {
	c, err := NewColumn(name, dtype, values)
	if err != nil {
		panic(err)
	}
	return c
}

// newColumn wraps already-normalized values without copying.
func newColumn(name string, dtype DType, values []any) *Column {
	return &Column{name: name, dtype: dtype, values: values}
}

func (c *Column) Name() string { return c.name }
func (c *Column) DType() DType { return c.dtype }
func (c *Column) Len() int     { return len(c.values) }

// Value returns the cell at row i (nil for null).
func (c *Column) Value(i int) any { return c.values[i] }

func (c *Column) IsNull(i int) bool { return c.values[i] == nil }

// Values returns a copy of all cells.
func (c *Column) Values() []any {
	out := make([]any, len(c.values))
	copy(out, c.values)
	return out
}

func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.values {
		if v == nil {
			n++
		}
	}
	return n
}

// Floats returns the non-null, non-NaN cells of a numeric column as float64.
func (c *Column) Floats() ([]float64, error) {
	if !c.dtype.IsNumeric() {
		return nil, fmt.Errorf("%w: %s column %q is not numeric", ErrTypeMismatch, c.dtype, c.name)
	}
	out := make([]float64, 0, len(c.values))
	for _, v := range c.values {
		switch x := v.(type) {
		case float64:
			if !math.IsNaN(x) {
				out = append(out, x)
			}
		case int64:
			out = append(out, float64(x))
		}
	}
	return out, nil
}

// Strings returns the non-null cells of a string column.
func (c *Column) Strings() ([]string, error) {
	if c.dtype != String {
		return nil, fmt.Errorf("%w: %s column %q is not string", ErrTypeMismatch, c.dtype, c.name)
	}
	out := make([]string, 0, len(c.values))
	for _, v := range c.values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Distinct counts distinct non-null cells.
func (c *Column) Distinct() int {
	seen := make(map[any]struct{}, len(c.values))
	for _, v := range c.values {
		if v == nil {
			continue
		}
		if t, ok := v.(time.Time); ok {
			v = t.UnixNano()
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}

func (c *Column) rename(name string) *Column {
	if c.name == name {
		return c
	}
	return newColumn(name, c.dtype, c.values)
}

func normalizeCell(dtype DType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch dtype {
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Float32, Float64:
		switch x := v.(type) {
		case float64:
			if math.IsNaN(x) {
				return nil, nil
			}
			if dtype == Float32 {
				return float64(float32(x)), nil
			}
			return x, nil
		case float32:
			if math.IsNaN(float64(x)) {
				return nil, nil
			}
			return float64(x), nil
		case int:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case Int32, Int64:
		var n int64
		switch x := v.(type) {
		case int:
			n = int64(x)
		case int32:
			n = int64(x)
		case int64:
			n = x
		default:
			return nil, fmt.Errorf("%w: %T for %s", ErrTypeMismatch, v, dtype)
		}
		if dtype == Int32 && !fitsInt32(n) {
			return nil, fmt.Errorf("%w: %d overflows int32", ErrTypeMismatch, n)
		}
		return n, nil
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Date:
		if t, ok := v.(time.Time); ok {
			return truncateDay(t), nil
		}
	case Datetime:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %T for %s", ErrTypeMismatch, v, dtype)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
