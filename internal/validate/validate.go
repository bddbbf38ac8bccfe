// Package validate enforces the per-column checks declared in a rule
// document's schema against a cleaned frame. Failures are collected lazily:
// every check runs over every row and the report lists counts plus a bounded
// sample of failure cases.
//
// Checks live under schema.<column>.checks:
//
//	amount:
//	  dtype: float64
//	  checks:
//	    in_range: {min_value: 0, max_value: 10000}
//	user_id:
//	  dtype: string
//	  nullable: false
//	  checks:
//	    str_startswith: "u"
//	    unique: true
//
// A column declared nullable: false implies not_null.
package validate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cleanse/internal/frame"
	"cleanse/internal/rules"

	"golang.org/x/sync/errgroup"
)

// DefaultSampleLimit bounds the failure cases kept per check.
const DefaultSampleLimit = 10

// Failure is one failed cell. Value is nil for not_null failures.
type Failure struct {
	Column string `json:"column"`
	Check  string `json:"check"`
	Row    int    `json:"row"`
	Value  any    `json:"value"`
}

// Result summarizes one check.
type Result struct {
	Column   string    `json:"column"`
	Check    string    `json:"check"`
	Failures int       `json:"failures"`
	Samples  []Failure `json:"samples,omitempty"`
}

// Report is the outcome of Validator.Check.
type Report struct {
	Rows    int      `json:"rows"`
	Results []Result `json:"results"`
	// Skipped lists checked columns absent from the frame, e.g. dropped for
	// high missingness.
	Skipped []string `json:"skipped,omitempty"`
}

// Total returns the number of failed cells across all checks.
func (r Report) Total() int {
	n := 0
	for _, res := range r.Results {
		n += res.Failures
	}
	return n
}

// OK reports whether every check passed.
func (r Report) OK() bool { return r.Total() == 0 }

// Failed returns the results with at least one failure.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Failures > 0 {
			out = append(out, res)
		}
	}
	return out
}

// Option configures a Validator.
type Option func(*Validator)

// WithSampleLimit sets the failure cases kept per check; negative keeps none.
func WithSampleLimit(n int) Option { return func(v *Validator) { v.samples = n } }

// WithWorkers bounds how many checks run concurrently; 0 means unbounded.
func WithWorkers(n int) Option { return func(v *Validator) { v.workers = n } }

// Validator runs compiled checks. It is safe for concurrent use.
type Validator struct {
	checks  []compiled
	samples int
	workers int
}

// New compiles the checks declared in schema. All problems are reported
// together, joined with errors.Join.
func New(schema map[string]rules.ColumnSchema, opts ...Option) (*Validator, error) {
	v := &Validator{samples: DefaultSampleLimit}
	for _, o := range opts {
		o(v)
	}

	cols := make([]string, 0, len(schema))
	for c := range schema {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var errs []error
	for _, c := range cols {
		checks, cerrs := compileColumn(c, schema[c])
		v.checks = append(v.checks, checks...)
		errs = append(errs, cerrs...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return v, nil
}

// Len returns the number of compiled checks.
func (v *Validator) Len() int { return len(v.checks) }

// Check runs every check against f. It returns an error only when ctx is
// canceled; failed checks are reported in the Report.
func (v *Validator) Check(ctx context.Context, f *frame.Frame) (Report, error) {
	rep := Report{Rows: f.Height()}
	results := make([]*Result, len(v.checks))
	skipped := make(map[string]struct{})

	g, gctx := errgroup.WithContext(ctx)
	if v.workers > 0 {
		g.SetLimit(v.workers)
	}
	for i, c := range v.checks {
		col, ok := f.Column(c.column)
		if !ok {
			skipped[c.column] = struct{}{}
			continue
		}
		g.Go(func() error {
			res, err := v.run(gctx, c, col)
			if err != nil {
				return err
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("validate: %w", err)
	}

	for _, r := range results {
		if r != nil {
			rep.Results = append(rep.Results, *r)
		}
	}
	for c := range skipped {
		rep.Skipped = append(rep.Skipped, c)
	}
	sort.Strings(rep.Skipped)
	return rep, nil
}

func (v *Validator) run(ctx context.Context, c compiled, col *frame.Column) (Result, error) {
	res := Result{Column: c.column, Check: c.name}
	fail := func(i int, val any) {
		res.Failures++
		if len(res.Samples) < v.samples {
			res.Samples = append(res.Samples, Failure{Column: c.column, Check: c.name, Row: i, Value: val})
		}
	}

	var seen map[any]struct{}
	if c.name == CheckUnique {
		seen = make(map[any]struct{}, col.Len())
	}
	for i := 0; i < col.Len(); i++ {
		if i&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		val := col.Value(i)
		switch {
		case c.name == CheckNotNull:
			if val == nil {
				fail(i, nil)
			}
		case val == nil:
			// Nulls are governed by not_null only.
		case c.name == CheckUnique:
			k := setKey(val)
			if _, dup := seen[k]; dup {
				fail(i, val)
			} else {
				seen[k] = struct{}{}
			}
		default:
			if !c.cell(val) {
				fail(i, val)
			}
		}
	}
	return res, nil
}
