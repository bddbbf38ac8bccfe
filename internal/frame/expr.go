package frame

import (
	"fmt"
	"math"
	"time"

	"cleanse/internal/stats"
)

// Expr is a deferred column computation. Expressions are values: every
// method returns a new Expr and leaves the receiver untouched.
//
// An expression that produces a single cell (a literal or an aggregate such
// as Median) broadcasts to the frame height when it is assigned as a column.
type Expr struct {
	name  string
	reads []string
	eval  func(ec *evalContext, f *Frame) (*Column, error)
}

// Col references an existing column.
func Col(name string) Expr {
	return Expr{
		name:  name,
		reads: []string{name},
		eval: func(_ *evalContext, f *Frame) (*Column, error) {
			c, ok := f.Column(name)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
			}
			return c, nil
		},
	}
}

// Lit is a constant. Supported Go types: string, bool, float32/64,
// int/int32/int64 and time.Time.
func Lit(v any) Expr {
	var dt DType
	switch v.(type) {
	case string:
		dt = String
	case bool:
		dt = Bool
	case float32, float64:
		dt = Float64
	case int32:
		dt = Int32
	case int, int64:
		dt = Int64
	case time.Time:
		dt = Datetime
	}
	return Expr{
		name: "literal",
		eval: func(_ *evalContext, _ *Frame) (*Column, error) {
			if dt == Invalid {
				return nil, fmt.Errorf("%w: unsupported literal %T", ErrTypeMismatch, v)
			}
			cell, err := normalizeCell(dt, v)
			if err != nil {
				return nil, err
			}
			return newColumn("literal", dt, []any{cell}), nil
		},
	}
}

// Name is the column the expression writes when used in WithColumns.
func (e Expr) Name() string { return e.name }

// Reads lists the columns the expression depends on.
func (e Expr) Reads() []string {
	out := make([]string, len(e.reads))
	copy(out, e.reads)
	return out
}

// Applicable is the column-presence guard: an expression runs only when every
// column it reads exists in f. Plan steps skip inapplicable expressions
// silently.
func (e Expr) Applicable(f *Frame) bool { return f.Has(e.reads...) }

// Alias renames the output column.
func (e Expr) Alias(name string) Expr {
	e.name = name
	return e
}

// Cast converts cells to dt; cells that do not convert become null.
func (e Expr) Cast(dt DType) Expr {
	return e.derive(func(ec *evalContext, f *Frame) (*Column, error) {
		c, err := e.eval(ec, f)
		if err != nil {
			return nil, err
		}
		if !dt.Valid() {
			return nil, fmt.Errorf("%w: cast to %s", ErrTypeMismatch, dt)
		}
		return castColumn(c, dt), nil
	})
}

// FillNull replaces null cells with the cells of with, converted to the
// receiver's type. Float fills into integer columns round half away from
// zero.
func (e Expr) FillNull(with Expr) Expr {
	out := e.derive(func(ec *evalContext, f *Frame) (*Column, error) {
		c, err := e.eval(ec, f)
		if err != nil {
			return nil, err
		}
		w, err := with.eval(ec, f)
		if err != nil {
			return nil, err
		}
		if w.Len() != 1 && w.Len() != c.Len() {
			return nil, fmt.Errorf("%w: fill has %d rows, want 1 or %d", ErrLength, w.Len(), c.Len())
		}
		if c.NullCount() == 0 {
			return c, nil
		}
		vals := make([]any, c.Len())
		for i, v := range c.values {
			if v != nil {
				vals[i] = v
				continue
			}
			j := i
			if w.Len() == 1 {
				j = 0
			}
			vals[i] = fillValue(w.values[j], w.dtype, c.dtype)
		}
		return newColumn(c.name, c.dtype, vals), nil
	})
	out.reads = union(e.reads, with.reads)
	return out
}

// Mean aggregates a numeric column to its mean over non-null cells.
func (e Expr) Mean() Expr {
	return e.aggregate(func(_ *evalContext, c *Column) (any, error) {
		xs, err := c.Floats()
		if err != nil {
			return nil, err
		}
		if m, ok := stats.Mean(xs); ok {
			return m, nil
		}
		return nil, nil
	})
}

// Quantile aggregates a numeric column to its q-th quantile (linear
// interpolation).
func (e Expr) Quantile(q float64) Expr {
	return e.aggregate(func(ec *evalContext, c *Column) (any, error) {
		sorted, err := ec.cache.sorted(c)
		if err != nil {
			return nil, err
		}
		if v, ok := stats.Quantile(sorted, q); ok {
			return v, nil
		}
		return nil, nil
	})
}

// Median is Quantile(0.5).
func (e Expr) Median() Expr { return e.Quantile(0.5) }

// Mode aggregates a string column to its most frequent value; ties resolve to
// the smallest value in sorted order.
func (e Expr) Mode() Expr {
	out := e.derive(func(ec *evalContext, f *Frame) (*Column, error) {
		c, err := e.eval(ec, f)
		if err != nil {
			return nil, err
		}
		ss, err := c.Strings()
		if err != nil {
			return nil, err
		}
		if m, ok := stats.Mode(ss); ok {
			return newColumn(c.name, String, []any{m}), nil
		}
		return newColumn(c.name, String, []any{nil}), nil
	})
	return out
}

// Combine applies fn cell-wise to two numeric expressions, broadcasting
// single-cell inputs. A null on either side, or a NaN result, yields null.
func Combine(a, b Expr, fn func(x, y float64) float64) Expr {
	return Expr{
		name:  a.name,
		reads: union(a.reads, b.reads),
		eval: func(ec *evalContext, f *Frame) (*Column, error) {
			ca, err := a.eval(ec, f)
			if err != nil {
				return nil, err
			}
			cb, err := b.eval(ec, f)
			if err != nil {
				return nil, err
			}
			if !ca.dtype.IsNumeric() || !cb.dtype.IsNumeric() {
				return nil, fmt.Errorf("%w: combine needs numeric inputs, got %s and %s", ErrTypeMismatch, ca.dtype, cb.dtype)
			}
			n := max(ca.Len(), cb.Len())
			if (ca.Len() != n && ca.Len() != 1) || (cb.Len() != n && cb.Len() != 1) {
				return nil, fmt.Errorf("%w: combine %d and %d rows", ErrLength, ca.Len(), cb.Len())
			}
			vals := make([]any, n)
			for i := range vals {
				x, okx := toFloat(at(ca, i))
				y, oky := toFloat(at(cb, i))
				if at(ca, i) == nil || at(cb, i) == nil || !okx || !oky {
					continue
				}
				if r := fn(x, y); !math.IsNaN(r) {
					vals[i] = r
				}
			}
			return newColumn(ca.name, Float64, vals), nil
		},
	}
}

// Clip clamps numeric cells into [lower, upper], both single-cell
// expressions. A null bound leaves that side unbounded. Integer columns are
// clamped to ceil(lower) and floor(upper) so every cell stays within the
// bounds. When no integer lies between the bounds every cell collapses to
// the integer nearest their midpoint.
func (e Expr) Clip(lower, upper Expr) Expr {
	out := e.derive(func(ec *evalContext, f *Frame) (*Column, error) {
		c, err := e.eval(ec, f)
		if err != nil {
			return nil, err
		}
		if !c.dtype.IsNumeric() {
			return nil, fmt.Errorf("%w: clip on %s column %q", ErrTypeMismatch, c.dtype, c.name)
		}
		lo, loOK, err := scalarFloat(ec, f, lower)
		if err != nil {
			return nil, err
		}
		hi, hiOK, err := scalarFloat(ec, f, upper)
		if err != nil {
			return nil, err
		}
		if c.dtype.IsInteger() {
			lo, hi = integerBounds(lo, loOK, hi, hiOK)
		}
		vals := make([]any, c.Len())
		for i, v := range c.values {
			vals[i] = v
			if v == nil {
				continue
			}
			x, _ := toFloat(v)
			switch {
			case loOK && x < lo:
				x = lo
			case hiOK && x > hi:
				x = hi
			default:
				continue
			}
			if c.dtype.IsInteger() {
				vals[i] = int64(x)
			} else {
				vals[i] = x
			}
		}
		return newColumn(c.name, c.dtype, vals), nil
	})
	out.reads = union(e.reads, union(lower.reads, upper.reads))
	return out
}

// integerBounds narrows float bounds to integers without inverting them.
func integerBounds(lo float64, loOK bool, hi float64, hiOK bool) (float64, float64) {
	ilo, ihi := math.Ceil(lo), math.Floor(hi)
	if loOK && hiOK && ilo > ihi {
		mid := math.Round(lo + (hi-lo)/2)
		return mid, mid
	}
	return ilo, ihi
}

// ForwardFill replaces each null with the nearest preceding non-null cell.
func (e Expr) ForwardFill() Expr {
	return e.derive(func(ec *evalContext, f *Frame) (*Column, error) {
		c, err := e.eval(ec, f)
		if err != nil {
			return nil, err
		}
		vals := c.Values()
		var last any
		for i, v := range vals {
			if v == nil {
				vals[i] = last
				continue
			}
			last = v
		}
		return newColumn(c.name, c.dtype, vals), nil
	})
}

// BackwardFill replaces each null with the nearest following non-null cell.
func (e Expr) BackwardFill() Expr {
	return e.derive(func(ec *evalContext, f *Frame) (*Column, error) {
		c, err := e.eval(ec, f)
		if err != nil {
			return nil, err
		}
		vals := c.Values()
		var next any
		for i := len(vals) - 1; i >= 0; i-- {
			if vals[i] == nil {
				vals[i] = next
				continue
			}
			next = vals[i]
		}
		return newColumn(c.name, c.dtype, vals), nil
	})
}

// GroupRare rewrites string values whose share of the column height is
// strictly below minFraction to sentinel. observe, when non-nil, receives the
// sorted rare values after the step completes.
func (e Expr) GroupRare(minFraction float64, sentinel string, observe func(rare []string)) Expr {
	return e.derive(func(ec *evalContext, f *Frame) (*Column, error) {
		c, err := e.eval(ec, f)
		if err != nil {
			return nil, err
		}
		ss, err := c.Strings()
		if err != nil {
			return nil, err
		}
		rare := stats.Rare(stats.Counts(ss), c.Len(), minFraction)
		if observe != nil {
			ec.later(func() { observe(rare) })
		}
		if len(rare) == 0 {
			return c, nil
		}
		set := make(map[string]struct{}, len(rare))
		for _, r := range rare {
			set[r] = struct{}{}
		}
		vals := c.Values()
		for i, v := range vals {
			if s, ok := v.(string); ok {
				if _, hit := set[s]; hit {
					vals[i] = sentinel
				}
			}
		}
		return newColumn(c.name, String, vals), nil
	})
}

// OnApply registers fn to run, with the expression's output name, after the
// step that evaluated it succeeds. Skipped expressions never call fn.
func (e Expr) OnApply(fn func(column string)) Expr {
	name := e.name
	return e.derive(func(ec *evalContext, f *Frame) (*Column, error) {
		c, err := e.eval(ec, f)
		if err == nil {
			ec.later(func() { fn(name) })
		}
		return c, err
	})
}

// Inspect registers fn to receive the evaluated column after the step
// succeeds.
func (e Expr) Inspect(fn func(c *Column)) Expr {
	return e.derive(func(ec *evalContext, f *Frame) (*Column, error) {
		c, err := e.eval(ec, f)
		if err == nil {
			ec.later(func() { fn(c) })
		}
		return c, err
	})
}

func (e Expr) derive(eval func(ec *evalContext, f *Frame) (*Column, error)) Expr {
	return Expr{name: e.name, reads: e.reads, eval: eval}
}

func (e Expr) aggregate(fn func(ec *evalContext, c *Column) (any, error)) Expr {
	return e.derive(func(ec *evalContext, f *Frame) (*Column, error) {
		c, err := e.eval(ec, f)
		if err != nil {
			return nil, err
		}
		v, err := fn(ec, c)
		if err != nil {
			return nil, err
		}
		return newColumn(c.name, Float64, []any{v}), nil
	})
}

func scalarFloat(ec *evalContext, f *Frame, e Expr) (float64, bool, error) {
	c, err := e.eval(ec, f)
	if err != nil {
		return 0, false, err
	}
	if c.Len() != 1 {
		return 0, false, fmt.Errorf("%w: bound has %d rows, want 1", ErrLength, c.Len())
	}
	if c.values[0] == nil {
		return 0, false, nil
	}
	x, ok := toFloat(c.values[0])
	if !ok || math.IsNaN(x) {
		return 0, false, nil
	}
	return x, true, nil
}

func fillValue(v any, from, to DType) any {
	if v == nil {
		return nil
	}
	if x, ok := v.(float64); ok && from.IsFloat() && to.IsInteger() {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		n := int64(math.Round(x))
		if to == Int32 && !fitsInt32(n) {
			return nil
		}
		return n
	}
	return castValue(v, from, to)
}

func at(c *Column, i int) any {
	if c.Len() == 1 {
		return c.values[0]
	}
	return c.values[i]
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
