// Package cleaning applies a rule document to a dataset: schema coercion,
// missingness filtering, numeric and categorical cleaning, datetime
// normalization and audit columns, always in that order.
//
// Transform builds the whole plan first and then collects it once; stage
// statistics are computed by the frame evaluator when the plan runs.
package cleaning

import (
	"context"
	"fmt"
	"time"

	"cleanse/internal/audit"
	"cleanse/internal/frame"
	"cleanse/internal/metrics"
	"cleanse/internal/rules"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Names of the constant columns attached to every output.
const (
	RunIDColumn       = "_cleaning_run_id"
	RuleVersionColumn = "_cleaning_rule_version"
	TableColumn       = "_cleaning_table"
)

// OtherCategory replaces rare categorical values.
const OtherCategory = "OTHER"

// Stage labels, in execution order.
const (
	StageCoerce            = "coerce"
	StageMissingColumns    = "missing.columns"
	StageMissingRows       = "missing.rows"
	StageNumericImpute     = "numeric.impute"
	StageNumericClip       = "numeric.clip"
	StageCategoricalImpute = "categorical.impute"
	StageCategoricalRare   = "categorical.rare"
	StageDatetime          = "datetime"
	StageAuditColumns      = "audit.columns"
)

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cleaner) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRunID fixes the run id. By default every Transform generates a UUID.
func WithRunID(id string) Option {
	return func(c *Cleaner) { c.runID = id }
}

// WithWorkers bounds per-stage column parallelism. Values below 1 mean
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *Cleaner) { c.workers = n }
}

// WithClock replaces time.Now for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) {
		if now != nil {
			c.now = now
		}
	}
}

// Cleaner runs one validated rule document. It holds no per-run state, so a
// single Cleaner may serve concurrent Transform calls on different inputs.
type Cleaner struct {
	doc     *rules.Document
	log     *zap.Logger
	runID   string
	workers int
	now     func() time.Time
}

// New validates doc and returns a Cleaner for it. Validation failures are
// returned as *rules.ConfigError before any data is touched.
func New(doc *rules.Document, opts ...Option) (*Cleaner, error) {
	var errs []rules.Issue
	for _, iss := range rules.Validate(doc) {
		if iss.Severity == rules.SeverityError {
			errs = append(errs, iss)
		}
	}
	if len(errs) > 0 {
		return nil, &rules.ConfigError{Issues: errs}
	}
	c := &Cleaner{doc: doc, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transform cleans a frame with doc. It is shorthand for New followed by
// Cleaner.Transform.
func Transform(ctx context.Context, in *frame.Frame, doc *rules.Document, opts ...Option) (*frame.Frame, audit.Record, error) {
	c, err := New(doc, opts...)
	if err != nil {
		return nil, audit.Record{}, err
	}
	return c.Transform(ctx, in.Lazy())
}

// run carries the state of one Transform call.
type run struct {
	doc *rules.Document
	rec *audit.Recorder
	log *zap.Logger
}

// Transform builds the cleaning plan on top of in, executes it and returns
// the cleaned frame with its frozen audit record. The input is never
// modified.
func (c *Cleaner) Transform(ctx context.Context, in *frame.Lazy) (*frame.Frame, audit.Record, error) {
	doc := c.doc
	runID := c.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := c.log.With(zap.String("corr_id", runID), zap.String("table", doc.Table))
	rec := audit.NewRecorder(audit.Identity{
		RunID:       runID,
		Table:       doc.Table,
		RuleVersion: doc.RuleVersion,
		ValidFrom:   doc.ValidFrom,
	}, c.now())
	rec.SetPolicy(policyOf(doc.Cleaning))

	log.Info("cleaning_start",
		zap.Int("rule_version", doc.RuleVersion),
		zap.String("valid_from", doc.ValidFrom),
		zap.Int("schema_columns", len(doc.Schema)),
	)

	r := &run{doc: doc, rec: rec, log: log}
	plan, err := r.build(in, runID)
	if err != nil {
		log.Error("cleaning_failed", zap.Error(err))
		return nil, audit.Record{}, err
	}

	out, err := plan.Collect(ctx,
		frame.WithWorkers(c.workers),
		frame.WithStepHook(func(label string, d time.Duration, err error) {
			metrics.RecordStage(doc.Table, label, err, d)
			log.Debug("stage_done", zap.String("stage", label), zap.Duration("duration", d), zap.Error(err))
		}),
	)
	if err != nil {
		log.Error("cleaning_failed", zap.Error(err))
		return nil, audit.Record{}, fmt.Errorf("cleaning %s: %w", doc.Table, err)
	}

	record := rec.Freeze(c.now())
	metrics.RecordRows(doc.Table, metrics.RowsIn, record.RowsIn)
	metrics.RecordRows(doc.Table, metrics.RowsOut, record.RowsOut)
	metrics.RecordRows(doc.Table, metrics.RowsDroppedMissing, record.RowsDroppedMissing)
	metrics.RecordColumnsDropped(doc.Table, len(record.ColumnsDropped))

	log.Info("cleaning_complete",
		zap.Int("rows_in", record.RowsIn),
		zap.Int("rows_out", record.RowsOut),
		zap.Strings("columns_dropped", record.DroppedColumnNames()),
		zap.String("output_fingerprint", record.OutputFingerprint),
	)
	return out, record, nil
}

// build appends every stage to in. Stage builders reject out-of-range
// strategy values here, before any row is read.
func (r *run) build(in *frame.Lazy, runID string) (*frame.Lazy, error) {
	p, err := r.coerce(in)
	if err != nil {
		return nil, err
	}
	p = r.dropColumns(p)
	p = r.dropRows(p)

	if p, err = r.numeric(p); err != nil {
		return nil, err
	}
	if p, err = r.categorical(p); err != nil {
		return nil, err
	}
	if p, err = r.datetime(p); err != nil {
		return nil, err
	}
	return r.auditColumns(p, runID), nil
}

func (r *run) auditColumns(p *frame.Lazy, runID string) *frame.Lazy {
	return p.WithColumns(StageAuditColumns,
		frame.Lit(runID).Alias(RunIDColumn),
		frame.Lit(int64(r.doc.RuleVersion)).Alias(RuleVersionColumn),
		frame.Lit(r.doc.Table).Alias(TableColumn),
	).AfterStep(func(in, out *frame.Frame) {
		r.rec.SetOutputFingerprint(fmt.Sprintf("%016x", in.Fingerprint()))
		r.rec.AddAuditColumns(RunIDColumn, RuleVersionColumn, TableColumn)
		r.rec.SetRowsOut(out.Height())
	})
}

func policyOf(c rules.CleaningConfig) audit.Policy {
	return audit.Policy{
		DropColumnsIfMissingGT:   c.DropColumnsIfMissingGT,
		DropRowsIfMissingGT:      c.DropRowsIfMissingGT,
		NumericStrategy:          c.Numeric.Imputation.String(),
		OutlierStrategy:          c.Numeric.Outlier.String(),
		NumericHighMissing:       c.Numeric.HighMissingThreshold,
		UseKNNIfAbove:            c.Numeric.UseKNNIfAbove,
		CategoricalStrategy:      c.Categorical.Imputation.String(),
		HighMissingStrategy:      c.Categorical.HighMissing.String(),
		NewCategoryName:          c.Categorical.NewCategoryName,
		HighCardinalityThreshold: c.Categorical.HighCardinalityThreshold,
		RareCategoryMinPct:       c.Categorical.RareMinFraction,
		GroupRareAsOther:         c.Categorical.GroupRareAsOther,
	}
}
