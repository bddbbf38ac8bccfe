package cleaning

import (
	"cleanse/internal/frame"
	"cleanse/internal/rules"

	"go.uber.org/zap"
)

// numeric imputes nulls in every numeric-declared column, then clips
// outliers. Each column uses only its own statistics; clipping quantiles are
// taken after imputation.
func (r *run) numeric(p *frame.Lazy) (*frame.Lazy, error) {
	nr := r.doc.Cleaning.Numeric
	cols := declared(r.doc, rules.DType.IsNumeric)

	impute := make([]frame.Expr, 0, len(cols))
	for _, name := range cols {
		var with frame.Expr
		switch nr.Imputation {
		case rules.NumericMedian:
			with = frame.Col(name).Median()
		case rules.NumericMean:
			with = frame.Col(name).Mean()
		case rules.NumericConstant:
			if nr.FillValue == nil {
				return nil, &rules.UnsupportedStrategyError{Stage: StageNumericImpute, Family: "numeric imputation", Strategy: "constant without fill value", Column: name}
			}
			with = frame.Lit(*nr.FillValue)
		default:
			return nil, &rules.UnsupportedStrategyError{Stage: StageNumericImpute, Family: "numeric imputation", Strategy: nr.Imputation.String(), Column: name}
		}
		strategy := nr.Imputation.String()
		impute = append(impute, frame.Col(name).FillNull(with).OnApply(func(column string) {
			r.rec.AddNumericImputation(column, strategy)
			r.log.Info("numeric_imputation", zap.String("column", column), zap.String("strategy", strategy))
		}))
	}
	p = p.WithColumns(StageNumericImpute, impute...)

	var clip []frame.Expr
	switch nr.Outlier.Kind {
	case rules.OutlierNone:
	case rules.OutlierClipIQR:
		for _, name := range cols {
			clip = append(clip, r.clipIQR(name, nr.Outlier))
		}
	default:
		return nil, &rules.UnsupportedStrategyError{Stage: StageNumericClip, Family: "outlier", Strategy: nr.Outlier.String()}
	}
	return p.WithColumns(StageNumericClip, clip...), nil
}

// clipIQR clamps name into [Q1 - f*IQR, Q3 + f*IQR].
func (r *run) clipIQR(name string, o rules.Outlier) frame.Expr {
	f := o.Factor
	q1, q3 := frame.Col(name).Quantile(0.25), frame.Col(name).Quantile(0.75)

	var lo, hi *float64
	capture := func(dst **float64) func(*frame.Column) {
		return func(c *frame.Column) {
			if v, ok := c.Value(0).(float64); ok {
				*dst = &v
			}
		}
	}
	lower := frame.Combine(q1, q3, func(a, b float64) float64 { return a - f*(b-a) }).Inspect(capture(&lo))
	upper := frame.Combine(q1, q3, func(a, b float64) float64 { return b + f*(b-a) }).Inspect(capture(&hi))

	strategy := o.String()
	return frame.Col(name).Clip(lower, upper).OnApply(func(column string) {
		r.rec.AddClipBounds(column, lo, hi)
		fields := []zap.Field{zap.String("column", column), zap.String("strategy", strategy)}
		if lo != nil && hi != nil {
			fields = append(fields, zap.Float64("lower", *lo), zap.Float64("upper", *hi))
		}
		r.log.Info("numeric_outlier_clipping", fields...)
	})
}
