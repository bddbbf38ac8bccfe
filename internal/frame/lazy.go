package frame

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"cleanse/internal/bitmap"

	"golang.org/x/sync/errgroup"
)

// Lazy is an immutable logical plan: a source Frame plus an ordered list of
// steps. Builder methods return a new plan and never modify the receiver, so
// two plans derived from the same parent share no mutable state.
type Lazy struct {
	src   *Frame
	steps []step
}

type step struct {
	label string
	run   func(ctx context.Context, ev *evaluator, f *Frame) (*Frame, error)
}

// Source returns the frame the plan is rooted at.
func (l *Lazy) Source() *Frame { return l.src }

// Explain lists the step labels in execution order.
func (l *Lazy) Explain() []string {
	out := make([]string, len(l.steps))
	for i, s := range l.steps {
		out[i] = s.label
	}
	return out
}

func (l *Lazy) then(s step) *Lazy {
	steps := make([]step, len(l.steps), len(l.steps)+1)
	copy(steps, l.steps)
	return &Lazy{src: l.src, steps: append(steps, s)}
}

// WithColumns evaluates exprs against the step's input frame and writes each
// result under the expression's name, replacing or appending columns.
// Expressions whose input columns are absent are skipped.
func (l *Lazy) WithColumns(label string, exprs ...Expr) *Lazy {
	es := make([]Expr, len(exprs))
	copy(es, exprs)
	return l.then(step{label: label, run: func(ctx context.Context, ev *evaluator, f *Frame) (*Frame, error) {
		return ev.withColumns(ctx, label, f, es)
	}})
}

// DropColumnsWhere removes every column for which pred returns true. pred is
// called once per column, in column order.
func (l *Lazy) DropColumnsWhere(label string, pred func(c *Column, height int) bool) *Lazy {
	return l.then(step{label: label, run: func(_ context.Context, _ *evaluator, f *Frame) (*Frame, error) {
		drop := make(map[string]struct{})
		for _, c := range f.cols {
			if pred(c, f.height) {
				drop[c.name] = struct{}{}
			}
		}
		if len(drop) == 0 {
			return f, nil
		}
		return f.without(drop), nil
	}})
}

// FilterRows keeps the rows for which pred returns true. pred is called once
// per row, in row order.
func (l *Lazy) FilterRows(label string, pred func(r Row) bool) *Lazy {
	return l.then(step{label: label, run: func(ctx context.Context, _ *evaluator, f *Frame) (*Frame, error) {
		keep := bitmap.New(f.height)
		for i := 0; i < f.height; i++ {
			if i&0xfff == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if pred(Row{f: f, i: i}) {
				keep.Set(i)
			}
		}
		return f.take(keep), nil
	}})
}

// Inspect calls fn with the frame as it stands at this point of the plan. The
// frame passes through unchanged.
func (l *Lazy) Inspect(label string, fn func(f *Frame)) *Lazy {
	return l.then(step{label: label, run: func(_ context.Context, _ *evaluator, f *Frame) (*Frame, error) {
		fn(f)
		return f, nil
	}})
}

// AfterStep registers fn to run with the input and output frames of the most
// recently added step once that step succeeds. On an empty plan it returns
// the receiver unchanged.
func (l *Lazy) AfterStep(fn func(in, out *Frame)) *Lazy {
	if len(l.steps) == 0 {
		return l
	}
	steps := make([]step, len(l.steps))
	copy(steps, l.steps)
	last := steps[len(steps)-1]
	steps[len(steps)-1] = step{label: last.label, run: func(ctx context.Context, ev *evaluator, f *Frame) (*Frame, error) {
		out, err := last.run(ctx, ev, f)
		if err != nil {
			return nil, err
		}
		fn(f, out)
		return out, nil
	}}
	return &Lazy{src: l.src, steps: steps}
}

// CollectOption tunes plan execution.
type CollectOption func(*collectConfig)

type collectConfig struct {
	workers  int
	stepHook func(label string, d time.Duration, err error)
}

// WithWorkers bounds how many expressions of one step evaluate concurrently.
// Values below 1 mean GOMAXPROCS.
func WithWorkers(n int) CollectOption {
	return func(c *collectConfig) { c.workers = n }
}

// WithStepHook observes each executed step's duration and error.
func WithStepHook(fn func(label string, d time.Duration, err error)) CollectOption {
	return func(c *collectConfig) { c.stepHook = fn }
}

// Collect executes the plan and returns the resulting frame.
func (l *Lazy) Collect(ctx context.Context, opts ...CollectOption) (*Frame, error) {
	cfg := collectConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}
	ev := &evaluator{workers: cfg.workers, cache: newStatCache()}

	f := l.src
	if f == nil {
		f = MustNew()
	}
	for _, s := range l.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		out, err := s.run(ctx, ev, f)
		if cfg.stepHook != nil {
			cfg.stepHook(s.label, time.Since(start), err)
		}
		if err != nil {
			return nil, err
		}
		f = out
	}
	return f, nil
}

type evaluator struct {
	workers int
	cache   *statCache
}

func (ev *evaluator) withColumns(ctx context.Context, label string, f *Frame, exprs []Expr) (*Frame, error) {
	type result struct {
		col   *Column
		hooks []func()
	}
	results := make([]*result, len(exprs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ev.workers)
	for i, e := range exprs {
		if !e.Applicable(f) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ec := &evalContext{cache: ev.cache}
			c, err := e.eval(ec, f)
			if err != nil {
				return &StepError{Step: label, Column: e.name, Err: err}
			}
			c, err = fit(c, e.name, f.height)
			if err != nil {
				return &StepError{Step: label, Column: e.name, Err: err}
			}
			results[i] = &result{col: c, hooks: ec.hooks}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := f
	for _, r := range results {
		if r != nil {
			out = out.with(r.col)
		}
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		for _, h := range r.hooks {
			h()
		}
	}
	return out, nil
}

// fit names c and broadcasts single-cell results to height.
func fit(c *Column, name string, height int) (*Column, error) {
	switch {
	case c.Len() == height:
		return c.rename(name), nil
	case c.Len() == 1:
		vals := make([]any, height)
		for i := range vals {
			vals[i] = c.values[0]
		}
		return newColumn(name, c.dtype, vals), nil
	default:
		return nil, fmt.Errorf("%w: result has %d rows, frame has %d", ErrLength, c.Len(), height)
	}
}
