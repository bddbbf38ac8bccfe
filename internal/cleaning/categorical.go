package cleaning

import (
	"cleanse/internal/frame"
	"cleanse/internal/rules"

	"go.uber.org/zap"
)

// categorical imputes nulls in string-declared columns and then groups rare
// values into OtherCategory.
//
// high_cardinality_threshold never changes data. Columns whose distinct
// count exceeds it after imputation are listed in the audit.
func (r *run) categorical(p *frame.Lazy) (*frame.Lazy, error) {
	cr := r.doc.Cleaning.Categorical
	cols := declared(r.doc, rules.DType.IsCategorical)

	impute := make([]frame.Expr, 0, len(cols))
	for _, name := range cols {
		var with frame.Expr
		switch cr.Imputation {
		case rules.CategoricalMode:
			with = frame.Col(name).Mode()
		case rules.CategoricalConstant:
			if cr.FillValue == nil {
				return nil, &rules.UnsupportedStrategyError{Stage: StageCategoricalImpute, Family: "categorical imputation", Strategy: "constant without fill value", Column: name}
			}
			with = frame.Lit(*cr.FillValue)
		default:
			return nil, &rules.UnsupportedStrategyError{Stage: StageCategoricalImpute, Family: "categorical imputation", Strategy: cr.Imputation.String(), Column: name}
		}
		strategy := cr.Imputation.String()
		threshold := cr.HighCardinalityThreshold
		impute = append(impute, frame.Col(name).FillNull(with).
			Inspect(func(c *frame.Column) {
				if d := c.Distinct(); d > threshold {
					r.rec.AddHighCardinality(c.Name(), d)
				}
			}).
			OnApply(func(column string) {
				r.rec.AddCategoricalImputation(column, strategy)
				r.log.Info("categorical_imputation", zap.String("column", column), zap.String("strategy", strategy))
			}))
	}
	p = p.WithColumns(StageCategoricalImpute, impute...)

	var rare []frame.Expr
	if cr.GroupRareAsOther {
		for _, name := range cols {
			rare = append(rare, frame.Col(name).GroupRare(cr.RareMinFraction, OtherCategory, func(values []string) {
				r.rec.AddRareCategories(name, values)
				if len(values) > 0 {
					r.log.Info("categorical_rare_grouping",
						zap.String("column", name),
						zap.Strings("values", values),
						zap.Float64("min_fraction", cr.RareMinFraction),
					)
				}
			}))
		}
	}
	return p.WithColumns(StageCategoricalRare, rare...), nil
}
