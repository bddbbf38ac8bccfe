// Package frame is the engine's columnar dataset. A Frame is a materialized,
// immutable set of equal-length typed columns; a Lazy is a logical plan over a
// Frame that runs only when Collect is called.
//
// Operations never mutate their input: every step produces a new Frame that
// shares unchanged columns with its predecessor.
package frame

import (
	"fmt"

	"cleanse/internal/bitmap"
)

// Field describes one column of a Frame's schema.
type Field struct {
	Name  string
	DType DType
}

// Frame is an ordered set of named columns with a common height.
type Frame struct {
	cols   []*Column
	index  map[string]int
	height int
}

// New builds a Frame from columns of equal length and unique names.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("frame: column %d is nil", i)
		}
		if _, dup := f.index[c.name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.name)
		}
		if i == 0 {
			f.height = c.Len()
		} else if c.Len() != f.height {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d", ErrLength, c.name, c.Len(), f.height)
		}
		f.index[c.name] = i
		f.cols = append(f.cols, c)
	}
	return f, nil
}

// MustNew is New that panics on error.
func MustNew(cols ...*Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Frame) Height() int { return f.height }
func (f *Frame) Width() int  { return len(f.cols) }

// Names returns column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.name
	}
	return out
}

// Schema returns the ordered (name, dtype) pairs.
func (f *Frame) Schema() []Field {
	out := make([]Field, len(f.cols))
	for i, c := range f.cols {
		out[i] = Field{Name: c.name, DType: c.dtype}
	}
	return out
}

func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// Columns returns the frame's columns in order.
func (f *Frame) Columns() []*Column {
	out := make([]*Column, len(f.cols))
	copy(out, f.cols)
	return out
}

// Has reports whether every name is a column of f.
func (f *Frame) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := f.index[n]; !ok {
			return false
		}
	}
	return true
}

// Row returns the cells of row i in column order.
func (f *Frame) Row(i int) []any {
	out := make([]any, len(f.cols))
	for j, c := range f.cols {
		out[j] = c.values[i]
	}
	return out
}

// Lazy starts a plan rooted at f.
func (f *Frame) Lazy() *Lazy { return &Lazy{src: f} }

// with returns a frame where c replaces the column of the same name, or is
// appended. c must have f's height.
func (f *Frame) with(c *Column) *Frame {
	out := &Frame{height: f.height, index: make(map[string]int, len(f.cols)+1)}
	out.cols = make([]*Column, len(f.cols), len(f.cols)+1)
	copy(out.cols, f.cols)
	for k, v := range f.index {
		out.index[k] = v
	}
	if i, ok := out.index[c.name]; ok {
		out.cols[i] = c
		return out
	}
	out.index[c.name] = len(out.cols)
	out.cols = append(out.cols, c)
	return out
}

// without drops the named columns, keeping the height.
func (f *Frame) without(drop map[string]struct{}) *Frame {
	out := &Frame{height: f.height, index: make(map[string]int, len(f.cols))}
	for _, c := range f.cols {
		if _, ok := drop[c.name]; ok {
			continue
		}
		out.index[c.name] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	return out
}

// take keeps rows whose bit is set in keep.
func (f *Frame) take(keep *bitmap.Bitmap) *Frame {
	n := keep.Count()
	if n == f.height {
		return f
	}
	out := &Frame{height: n, index: make(map[string]int, len(f.cols))}
	for j, c := range f.cols {
		vals := make([]any, 0, n)
		keep.Each(func(i int) { vals = append(vals, c.values[i]) })
		out.index[c.name] = j
		out.cols = append(out.cols, newColumn(c.name, c.dtype, vals))
	}
	return out
}

// Row is a read-only view of one row, handed to FilterRows predicates.
type Row struct {
	f *Frame
	i int
}

func (r Row) Index() int { return r.i }
func (r Row) Width() int { return len(r.f.cols) }

// Value returns the cell in the named column; ok is false when the column is
// absent.
func (r Row) Value(name string) (v any, ok bool) {
	c, ok := r.f.Column(name)
	if !ok {
		return nil, false
	}
	return c.values[r.i], true
}

// NullCount counts null cells across the row.
func (r Row) NullCount() int {
	n := 0
	for _, c := range r.f.cols {
		if c.values[r.i] == nil {
			n++
		}
	}
	return n
}
