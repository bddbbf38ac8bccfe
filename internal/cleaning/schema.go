package cleaning

import (
	"fmt"

	"cleanse/internal/frame"
	"cleanse/internal/rules"

	"go.uber.org/zap"
)

// Coercion is one planned cast.
type Coercion struct {
	Column string
	Target frame.DType
}

// EngineType maps a declared logical dtype to the frame type that stores it.
func EngineType(dt rules.DType) (frame.DType, error) {
	t, ok := frame.ParseDType(string(dt))
	if !ok {
		return frame.Invalid, fmt.Errorf("cleaning: no engine type for dtype %q", dt)
	}
	return t, nil
}

// Plan lists the coercions that apply to a dataset with the given columns:
// columns that exist and are declared coerce=true, in declared order.
// Declared columns missing from the dataset are skipped.
func Plan(present []string, doc *rules.Document) ([]Coercion, error) {
	all, err := coercions(doc)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(present))
	for _, n := range present {
		have[n] = struct{}{}
	}
	out := all[:0:0]
	for _, c := range all {
		if _, ok := have[c.Column]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// coercions lists every coerce=true column with its engine type, in
// declared order.
func coercions(doc *rules.Document) ([]Coercion, error) {
	var out []Coercion
	for _, name := range doc.Columns() {
		cs := doc.Schema[name]
		if !cs.Coerce {
			continue
		}
		t, err := EngineType(cs.DType)
		if err != nil {
			return nil, err
		}
		out = append(out, Coercion{Column: name, Target: t})
	}
	return out, nil
}

// coerce casts the columns of the coercion plan. The presence guard narrows
// the plan to the columns the dataset has, which is what Plan reports; cells
// that fail to convert become null.
func (r *run) coerce(p *frame.Lazy) (*frame.Lazy, error) {
	plan, err := coercions(r.doc)
	if err != nil {
		return nil, err
	}
	exprs := make([]frame.Expr, 0, len(plan))
	for _, c := range plan {
		t := c.Target
		exprs = append(exprs, frame.Col(c.Column).Cast(t).Inspect(func(col *frame.Column) {
			r.rec.AddCoerced(col.Name())
			r.log.Info("dtype_coercion",
				zap.String("column", col.Name()),
				zap.String("target", t.String()),
				zap.Int("nulls_after", col.NullCount()),
			)
		}))
	}
	return p.WithColumns(StageCoerce, exprs...).AfterStep(func(in, _ *frame.Frame) {
		r.rec.SetRowsIn(in.Height())
	}), nil
}

// declared lists columns of the schema whose declared type satisfies keep,
// in declared order.
func declared(doc *rules.Document, keep func(rules.DType) bool) []string {
	var out []string
	for _, name := range doc.Columns() {
		if keep(doc.Schema[name].DType) {
			out = append(out, name)
		}
	}
	return out
}
