package cleaning

import (
	"cleanse/internal/audit"
	"cleanse/internal/frame"

	"go.uber.org/zap"
)

// dropColumns removes columns whose null fraction is strictly greater than
// the column threshold. A zero-row frame keeps every column.
func (r *run) dropColumns(p *frame.Lazy) *frame.Lazy {
	theta := r.doc.Cleaning.DropColumnsIfMissingGT
	var dropped []string
	return p.DropColumnsWhere(StageMissingColumns, func(c *frame.Column, height int) bool {
		if height == 0 {
			return false
		}
		frac := float64(c.NullCount()) / float64(height)
		if frac <= theta {
			return false
		}
		r.rec.AddDroppedColumn(c.Name(), audit.CauseHighMissing, frac)
		dropped = append(dropped, c.Name())
		return true
	}).AfterStep(func(_, _ *frame.Frame) {
		if len(dropped) > 0 {
			r.log.Info("drop_columns_high_missing",
				zap.Strings("columns", dropped),
				zap.Float64("threshold", theta),
			)
		}
	})
}

// dropRows removes rows whose null fraction over the surviving columns is
// strictly greater than the row threshold. A frame without columns keeps
// every row.
func (r *run) dropRows(p *frame.Lazy) *frame.Lazy {
	theta := r.doc.Cleaning.DropRowsIfMissingGT
	return p.FilterRows(StageMissingRows, func(row frame.Row) bool {
		if row.Width() == 0 {
			return true
		}
		return float64(row.NullCount())/float64(row.Width()) <= theta
	}).AfterStep(func(in, out *frame.Frame) {
		n := in.Height() - out.Height()
		r.rec.AddRowsDropped(n)
		if n > 0 {
			r.log.Info("drop_rows_high_missing",
				zap.Int("rows_dropped", n),
				zap.Int("rows_before", in.Height()),
				zap.Float64("threshold", theta),
			)
		}
	})
}
