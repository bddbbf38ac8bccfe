package cleaning

import (
	"cleanse/internal/frame"
	"cleanse/internal/rules"

	"go.uber.org/zap"
)

// datetime applies the datetime rules in configured order. Rules for
// distinct columns share one step; a rule naming a column already handled in
// the current step starts a new one so it sees the earlier result.
func (r *run) datetime(p *frame.Lazy) (*frame.Lazy, error) {
	var batch []frame.Expr
	inBatch := map[string]struct{}{}
	flush := func() {
		if len(batch) > 0 {
			p = p.WithColumns(StageDatetime, batch...)
		}
		batch, inBatch = nil, map[string]struct{}{}
	}

	for _, rule := range r.doc.Cleaning.Datetime {
		e, err := r.datetimeExpr(rule)
		if err != nil {
			return nil, err
		}
		if _, dup := inBatch[rule.Column]; dup {
			flush()
		}
		batch = append(batch, e)
		inBatch[rule.Column] = struct{}{}
	}
	flush()
	return p, nil
}

func (r *run) datetimeExpr(rule rules.DatetimeRule) (frame.Expr, error) {
	e := frame.Col(rule.Column)
	if rule.Coerce {
		target := frame.Datetime
		if cs, ok := r.doc.Schema[rule.Column]; ok && cs.DType == rules.DTypeDate {
			target = frame.Date
		}
		e = e.Cast(target)
	}
	switch rule.Fill {
	case rules.FillNone:
	case rules.FillForward:
		e = e.ForwardFill()
	case rules.FillBackward:
		e = e.BackwardFill()
	default:
		return frame.Expr{}, &rules.UnsupportedStrategyError{Stage: StageDatetime, Family: "datetime fill", Strategy: rule.Fill.String(), Column: rule.Column}
	}
	fill := rule.Fill.String()
	coerce := rule.Coerce
	return e.OnApply(func(column string) {
		r.rec.AddDatetime(column)
		r.log.Info("datetime_cleaning",
			zap.String("column", column),
			zap.Bool("coerce", coerce),
			zap.String("fill_strategy", fill),
		)
	}), nil
}
