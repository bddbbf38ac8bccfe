package cleaning

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"cleanse/internal/audit"
	"cleanse/internal/frame"
	"cleanse/internal/metrics"
	"cleanse/internal/rules"
	"cleanse/internal/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var clock = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func mustRules(t *testing.T, yaml string) *rules.Document {
	t.Helper()
	doc, err := rules.Parse([]byte(yaml))
	require.NoError(t, err)
	return doc
}

func mustTransform(t *testing.T, f *frame.Frame, doc *rules.Document, opts ...Option) (*frame.Frame, audit.Record) {
	t.Helper()
	opts = append([]Option{WithRunID("run-test"), WithClock(clock)}, opts...)
	out, rec, err := Transform(context.Background(), f, doc, opts...)
	require.NoError(t, err)
	return out, rec
}

func values(t *testing.T, f *frame.Frame, name string) []any {
	t.Helper()
	c, ok := f.Column(name)
	require.True(t, ok, "column %q missing", name)
	return c.Values()
}

func scenarioFrame() *frame.Frame {
	return frame.MustNew(
		frame.MustColumn("user_id", frame.String, "u1", "u2", "u3", nil),
		frame.MustColumn("amount", frame.Float64, 100.0, nil, -5.0, 50.0),
		frame.MustColumn("country_code", frame.String, "US", nil, "DE", "US"),
	)
}

func scenarioRules(rowThreshold string) string {
	return `
table: transactions
rule_version: 4
schema:
  user_id:      {dtype: string}
  amount:       {dtype: float64}
  country_code: {dtype: string}
cleaning:
  drop_rows_if_missing_gt: ` + rowThreshold + `
  numeric:
    default_strategy: median
    outlier_strategy: none
  categorical:
    default_strategy: mode
`
}

func TestTransform_ImputationScenario(t *testing.T) {
	/*
		Row u2 has two of three cells null (2/3). At a 0.7 row threshold it
		survives, and its nulls are imputed from the column statistics:
		amount median of {100,-5,50} is 50, country mode is US.
	*/
	out, rec := mustTransform(t, scenarioFrame(), mustRules(t, scenarioRules("0.7")))

	assert.Equal(t, []string{"user_id", "amount", "country_code", RunIDColumn, RuleVersionColumn, TableColumn}, out.Names())
	assert.Equal(t, []any{100.0, 50.0, -5.0, 50.0}, values(t, out, "amount"))
	assert.Equal(t, []any{"US", "US", "DE", "US"}, values(t, out, "country_code"))
	// user_id values tie at one each; the smallest wins.
	assert.Equal(t, []any{"u1", "u2", "u3", "u1"}, values(t, out, "user_id"))

	assert.Equal(t, 4, rec.RowsIn)
	assert.Equal(t, 4, rec.RowsOut)
	assert.Zero(t, rec.RowsDroppedMissing)
	assert.Equal(t, map[string]string{"amount": "median"}, rec.NumericImputation)
	assert.Equal(t, map[string]string{"user_id": "mode", "country_code": "mode"}, rec.CategoricalImputation)
	assert.Equal(t, "none", rec.Policy.OutlierStrategy)
	assert.Empty(t, rec.ClipBounds)
}

func TestTransform_RowThresholdUsesSurvivingColumns(t *testing.T) {
	/*
		At 0.5 the same row (2/3 > 0.5) is dropped, while the row whose only
		null is user_id (1/3) is kept.
	*/
	out, rec := mustTransform(t, scenarioFrame(), mustRules(t, scenarioRules("0.5")))

	assert.Equal(t, 3, out.Height())
	assert.Equal(t, []any{100.0, -5.0, 50.0}, values(t, out, "amount"))
	assert.Equal(t, []any{"US", "DE", "US"}, values(t, out, "country_code"))
	assert.Equal(t, []any{"u1", "u3", "u1"}, values(t, out, "user_id"))
	assert.Equal(t, 1, rec.RowsDroppedMissing)
	assert.Equal(t, 4, rec.RowsIn)
	assert.Equal(t, 3, rec.RowsOut)
}

func nulls(n, total int) []any {
	out := make([]any, total)
	for i := n; i < total; i++ {
		out[i] = int64(i)
	}
	return out
}

func TestTransform_ColumnThresholdBoundary(t *testing.T) {
	f := frame.MustNew(
		frame.MustColumn("eight", frame.Int64, nulls(8, 10)...),
		frame.MustColumn("seven", frame.Int64, nulls(7, 10)...),
		frame.MustColumn("id", frame.Int64, nulls(0, 10)...),
	)
	doc := mustRules(t, `
table: t
schema: {}
cleaning:
  drop_columns_if_missing_gt: 0.7
  drop_rows_if_missing_gt: 1
`)
	out, rec := mustTransform(t, f, doc)

	assert.False(t, out.Has("eight"), "0.8 > 0.7 is dropped")
	assert.True(t, out.Has("seven"), "0.7 is kept")
	require.Len(t, rec.ColumnsDropped, 1)
	assert.Equal(t, audit.DroppedColumn{Column: "eight", Cause: audit.CauseHighMissing, MissingFraction: 0.8}, rec.ColumnsDropped[0])
	assert.Equal(t, 10, out.Height())
}

func TestTransform_EmptyDataset(t *testing.T) {
	f := frame.MustNew(
		frame.MustColumn("amount", frame.Float64),
		frame.MustColumn("country_code", frame.String),
	)
	out, rec := mustTransform(t, f, mustRules(t, scenarioRules("0.5")))

	assert.Equal(t, 0, out.Height())
	assert.Equal(t, 0, rec.RowsIn)
	assert.Equal(t, 0, rec.RowsOut)
	assert.Empty(t, rec.ColumnsDropped)
	assert.True(t, out.Has(RunIDColumn))
}

func TestTransform_Idempotent(t *testing.T) {
	f := scenarioFrame()
	doc := mustRules(t, scenarioRules("0.7"))

	out1, rec1, err := Transform(context.Background(), f, doc, WithClock(clock))
	require.NoError(t, err)
	out2, rec2, err := Transform(context.Background(), f, doc, WithClock(clock))
	require.NoError(t, err)

	assert.NotEqual(t, rec1.RunID, rec2.RunID)
	rec2.RunID = rec1.RunID
	assert.Equal(t, rec1, rec2)

	for _, name := range f.Names() {
		assert.Equal(t, values(t, out1, name), values(t, out2, name), name)
	}
}

func TestTransform_DoesNotMutateInput(t *testing.T) {
	f := scenarioFrame()
	before := f.Fingerprint()
	mustTransform(t, f, mustRules(t, scenarioRules("0.7")))
	assert.Equal(t, before, f.Fingerprint())
	assert.Equal(t, 3, f.Width())
}

func TestTransform_ClipInvariant(t *testing.T) {
	f := frame.MustNew(
		frame.MustColumn("x", frame.Float64, 1.0, 2.0, 3.0, 4.0, 100.0, nil),
		frame.MustColumn("y", frame.Int64, -50, 1, 2, 3, 4, 5),
	)
	doc := mustRules(t, `
table: t
schema:
  x: {dtype: float64}
  y: {dtype: int64}
cleaning:
  numeric: {default_strategy: median, outlier_strategy: clip_iqr_1_5}
`)
	out, rec := mustTransform(t, f, doc)

	// x imputes its null with median 3; post-imputation bounds are [0, 6].
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 6.0, 3.0}, values(t, out, "x"))
	// y bounds are [-2.5, 7.5]; integers clamp to -2.
	assert.Equal(t, []any{int64(-2), int64(1), int64(2), int64(3), int64(4), int64(5)}, values(t, out, "y"))

	imputed := []float64{1, 2, 3, 4, 100, 3}
	lo, hi, ok := stats.IQRBounds(stats.Sorted(imputed), 1.5)
	require.True(t, ok)
	for _, v := range values(t, out, "x") {
		x := v.(float64)
		assert.True(t, lo <= x && x <= hi, "%v outside [%v, %v]", x, lo, hi)
	}

	b := rec.ClipBounds["x"]
	require.NotNil(t, b.Lower)
	require.NotNil(t, b.Upper)
	assert.InDelta(t, 0.0, *b.Lower, 1e-9)
	assert.InDelta(t, 6.0, *b.Upper, 1e-9)
	assert.Equal(t, "clip_iqr(1.5)", rec.Policy.OutlierStrategy)
}

func TestTransform_IntegerClipKeepsOrder(t *testing.T) {
	f := frame.MustNew(frame.MustColumn("n", frame.Int64, 1, 2))
	doc := mustRules(t, `
table: t
schema:
  n: {dtype: int64}
cleaning:
  numeric: {default_strategy: median, outlier_strategy: clip_iqr_0_1}
`)
	out, rec := mustTransform(t, f, doc)

	// Bounds [1.2, 1.8] hold no integer; both cells collapse to 2.
	assert.Equal(t, []any{int64(2), int64(2)}, values(t, out, "n"))
	b := rec.ClipBounds["n"]
	require.NotNil(t, b.Lower)
	require.NotNil(t, b.Upper)
	assert.InDelta(t, 1.2, *b.Lower, 1e-9)
	assert.InDelta(t, 1.8, *b.Upper, 1e-9)
}

func TestTransform_NaNTextIsMissing(t *testing.T) {
	f := frame.MustNew(
		frame.MustColumn("id", frame.String, "a", "b", "c", "d", "e", "f"),
		frame.MustColumn("x", frame.String, "1", "2", "3", "NaN", "100", nil),
	)
	doc := mustRules(t, `
table: t
schema:
  id: {dtype: string}
  x:  {dtype: float64, coerce: true}
cleaning:
  drop_rows_if_missing_gt: 0.9
  numeric: {default_strategy: median, outlier_strategy: clip_iqr}
`)
	out, _ := mustTransform(t, f, doc)

	// Median of {1, 2, 3, 100} is 2.5; after imputation the bounds are [1, 4].
	got := values(t, out, "x")
	assert.Equal(t, []any{1.0, 2.0, 3.0, 2.5, 4.0, 2.5}, got)
	for _, v := range got {
		x := v.(float64)
		assert.False(t, math.IsNaN(x))
		assert.True(t, 1 <= x && x <= 4, "%v outside [1, 4]", x)
	}
}

func TestTransform_RareGroupingInvariant(t *testing.T) {
	var cells []any
	for v, n := range map[string]int{"a": 12, "b": 5, "c": 2, "d": 1} {
		for i := 0; i < n; i++ {
			cells = append(cells, v)
		}
	}
	f := frame.MustNew(frame.MustColumn("cat", frame.String, cells...))
	doc := mustRules(t, `
table: t
schema:
  cat: {dtype: string}
cleaning:
  categorical: {rare_category_min_pct: 0.15}
`)
	out, rec := mustTransform(t, f, doc)

	counts := map[string]int{}
	for _, v := range values(t, out, "cat") {
		counts[v.(string)]++
	}
	for v, n := range counts {
		frac := float64(n) / float64(out.Height())
		assert.True(t, frac >= 0.15 || v == OtherCategory, "%s has fraction %v", v, frac)
	}
	assert.Equal(t, map[string]int{"a": 12, "b": 5, OtherCategory: 3}, counts)
	assert.Equal(t, []string{"c", "d"}, rec.RareCategories["cat"])
}

func TestTransform_RareGroupingDisabled(t *testing.T) {
	f := frame.MustNew(frame.MustColumn("cat", frame.String, "a", "a", "a", "z"))
	doc := mustRules(t, `
table: t
schema:
  cat: {dtype: string}
cleaning:
  categorical: {rare_category_min_pct: 0.5, rare_strategy_group_as_other: false}
`)
	out, rec := mustTransform(t, f, doc)
	assert.Equal(t, []any{"a", "a", "a", "z"}, values(t, out, "cat"))
	assert.Empty(t, rec.RareCategories)
}

func TestTransform_ModeTieBreak(t *testing.T) {
	f := frame.MustNew(
		frame.MustColumn("k", frame.Int64, 1, 2, 3, 4, 5),
		frame.MustColumn("cat", frame.String, "b", "a", "b", "a", nil),
	)
	doc := mustRules(t, `
table: t
schema:
  cat: {dtype: string}
cleaning: {}
`)
	out, _ := mustTransform(t, f, doc)
	assert.Equal(t, []any{"b", "a", "b", "a", "a"}, values(t, out, "cat"))
}

func TestTransform_ConstantStrategies(t *testing.T) {
	f := frame.MustNew(
		frame.MustColumn("qty", frame.Int64, 4, nil, 6),
		frame.MustColumn("cat", frame.String, "x", "y", nil),
	)
	doc := mustRules(t, `
table: t
schema:
  qty: {dtype: int64}
  cat: {dtype: string}
cleaning:
  numeric: {default_strategy: constant, default_fill_value: 2.5, outlier_strategy: none}
  categorical: {default_strategy: constant, default_fill_value: UNKNOWN, rare_strategy_group_as_other: false}
`)
	out, rec := mustTransform(t, f, doc)
	assert.Equal(t, []any{int64(4), int64(3), int64(6)}, values(t, out, "qty"), "2.5 rounds half away from zero")
	assert.Equal(t, []any{"x", "y", "UNKNOWN"}, values(t, out, "cat"))
	assert.Equal(t, "constant", rec.NumericImputation["qty"])
}

func TestTransform_CoercionAndAbsentColumns(t *testing.T) {
	f := frame.MustNew(
		frame.MustColumn("amount", frame.String, "1.5", "abc", "3", " 4 "),
		frame.MustColumn("id", frame.Int64, 1, 2, 3, 4),
	)
	doc := mustRules(t, `
table: t
schema:
  amount: {dtype: float64, coerce: true}
  ghost:  {dtype: int64, coerce: true}
  label:  {dtype: string}
cleaning:
  numeric: {default_strategy: median, outlier_strategy: none}
  datetime:
    - column: missing_ts
      fill_strategy: ffill
`)
	out, rec := mustTransform(t, f, doc)

	c, _ := out.Column("amount")
	assert.Equal(t, frame.Float64, c.DType())
	assert.Equal(t, []any{1.5, 3.0, 3.0, 4.0}, c.Values(), "unparseable cell becomes null, then median")
	assert.Equal(t, []string{"amount"}, rec.ColumnsCoerced)
	assert.False(t, out.Has("ghost"))
	assert.Empty(t, rec.DatetimeColumns)

	plan, err := Plan(f.Names(), doc)
	require.NoError(t, err)
	assert.Equal(t, []Coercion{{Column: "amount", Target: frame.Float64}}, plan)

	// The executed coercions are exactly the reported plan.
	planned := make([]string, len(plan))
	for i, c := range plan {
		planned[i] = c.Column
	}
	assert.Equal(t, planned, rec.ColumnsCoerced)

	all, err := Plan([]string{"amount", "ghost", "id"}, doc)
	require.NoError(t, err)
	assert.Equal(t, []Coercion{{Column: "amount", Target: frame.Float64}, {Column: "ghost", Target: frame.Int64}}, all)
}

func TestTransform_DatetimeNormalization(t *testing.T) {
	f := frame.MustNew(
		frame.MustColumn("id", frame.Int64, 1, 2, 3, 4),
		frame.MustColumn("created_at", frame.String, "2025-01-02", "not a date", nil, "2025-01-05"),
		frame.MustColumn("shipped_on", frame.String, nil, "2025-02-01", nil, "2025-02-03"),
	)
	doc := mustRules(t, `
table: t
schema:
  created_at: {dtype: datetime}
  shipped_on: {dtype: date}
cleaning:
  drop_rows_if_missing_gt: 1
  datetime:
    - column: created_at
      fill_strategy: forward
    - column: shipped_on
      fill_strategy: bfill
`)
	out, rec := mustTransform(t, f, doc)

	day := func(d int, m time.Month) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }

	created, _ := out.Column("created_at")
	assert.Equal(t, frame.Datetime, created.DType())
	for i, want := range []time.Time{day(2, 1), day(2, 1), day(2, 1), day(5, 1)} {
		assert.True(t, created.Value(i).(time.Time).Equal(want), "created_at[%d] = %v", i, created.Value(i))
	}

	shipped, _ := out.Column("shipped_on")
	assert.Equal(t, frame.Date, shipped.DType())
	for i, want := range []time.Time{day(1, 2), day(1, 2), day(3, 2), day(3, 2)} {
		assert.True(t, shipped.Value(i).(time.Time).Equal(want), "shipped_on[%d] = %v", i, shipped.Value(i))
	}
	assert.Equal(t, []string{"created_at", "shipped_on"}, rec.DatetimeColumns)
}

func TestTransform_AuditColumns(t *testing.T) {
	out, rec := mustTransform(t, scenarioFrame(), mustRules(t, scenarioRules("0.7")))

	for _, v := range values(t, out, RunIDColumn) {
		assert.Equal(t, "run-test", v)
	}
	for _, v := range values(t, out, RuleVersionColumn) {
		assert.Equal(t, int64(4), v)
	}
	for _, v := range values(t, out, TableColumn) {
		assert.Equal(t, "transactions", v)
	}
	assert.Equal(t, []string{RunIDColumn, RuleVersionColumn, TableColumn}, rec.AuditColumns)
	assert.Len(t, rec.OutputFingerprint, 16)
	assert.Equal(t, clock(), rec.StartedAt)
	assert.Equal(t, clock(), rec.FinishedAt)
}

func TestTransform_HighCardinalityIsReportOnly(t *testing.T) {
	f := frame.MustNew(frame.MustColumn("cat", frame.String, "a", "b", "c", "d"))
	doc := mustRules(t, `
table: t
schema:
  cat: {dtype: string}
cleaning:
  categorical: {high_cardinality_threshold: 3, rare_category_min_pct: 0}
`)
	out, rec := mustTransform(t, f, doc)
	assert.Equal(t, []any{"a", "b", "c", "d"}, values(t, out, "cat"))
	assert.Equal(t, map[string]int{"cat": 4}, rec.HighCardinality)
}

func TestTransform_TypeMismatchIsStepError(t *testing.T) {
	f := frame.MustNew(frame.MustColumn("amount", frame.String, "1", "2"))
	doc := mustRules(t, `
table: t
schema:
  amount: {dtype: float64}
cleaning: {}
`)
	_, _, err := Transform(context.Background(), f, doc)
	var se *frame.StepError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, StageNumericImpute, se.Step)
	assert.Equal(t, "amount", se.Column)
	assert.ErrorIs(t, err, frame.ErrTypeMismatch)
}

func TestNew_RejectsInvalidDocument(t *testing.T) {
	doc := &rules.Document{Table: "t", RuleVersion: 1, Cleaning: rules.DefaultCleaning()}
	doc.Cleaning.Numeric.Imputation = rules.NumericConstant

	_, err := New(doc)
	var ce *rules.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cleaning.numeric.default_fill_value", ce.Issues[0].Path)
}

func TestTransform_UnsupportedStrategyAtStageStart(t *testing.T) {
	doc := mustRules(t, scenarioRules("0.7"))
	c, err := New(doc)
	require.NoError(t, err)

	doc.Cleaning.Numeric.Imputation = rules.NumericImputation(42)
	_, _, err = c.Transform(context.Background(), scenarioFrame().Lazy())
	var use *rules.UnsupportedStrategyError
	require.ErrorAs(t, err, &use)
	assert.Equal(t, StageNumericImpute, use.Stage)
	assert.Equal(t, "amount", use.Column)
}

func TestTransform_Logging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mustTransform(t, scenarioFrame(), mustRules(t, scenarioRules("0.5")), WithLogger(zap.New(core)))

	var events []string
	for _, e := range logs.All() {
		events = append(events, e.Message)
		assert.Equal(t, "run-test", e.ContextMap()["corr_id"])
	}
	assert.Equal(t, "cleaning_start", events[0])
	assert.Equal(t, "cleaning_complete", events[len(events)-1])
	assert.Contains(t, events, "drop_rows_high_missing")
	assert.Contains(t, events, "numeric_imputation")
	assert.Contains(t, events, "categorical_imputation")
}

type stageBackend struct {
	mu     sync.Mutex
	stages []string
	rows   map[string]float64
}

func (b *stageBackend) IncCounter(name string, delta float64, l metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch name {
	case metrics.StageTotal:
		b.stages = append(b.stages, l["stage"])
	case metrics.RowsTotal:
		b.rows[l["kind"]] += delta
	}
}
func (b *stageBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (b *stageBackend) Flush() error                                     { return nil }

func TestTransform_Metrics(t *testing.T) {
	fb := &stageBackend{rows: map[string]float64{}}
	metrics.SetBackend(fb)
	t.Cleanup(func() { metrics.SetBackend(nopMetrics{}) })

	mustTransform(t, scenarioFrame(), mustRules(t, scenarioRules("0.5")))

	want := []string{StageCoerce, StageMissingColumns, StageMissingRows, StageNumericImpute, StageNumericClip,
		StageCategoricalImpute, StageCategoricalRare, StageAuditColumns}
	assert.Equal(t, want, fb.stages)
	assert.Equal(t, map[string]float64{metrics.RowsIn: 4, metrics.RowsOut: 3, metrics.RowsDroppedMissing: 1}, fb.rows)
}

type nopMetrics struct{}

func (nopMetrics) IncCounter(string, float64, metrics.Labels)       {}
func (nopMetrics) ObserveHistogram(string, float64, metrics.Labels) {}
func (nopMetrics) Flush() error                                     { return nil }

func TestTransform_ConcurrentCallsShareNothing(t *testing.T) {
	doc := mustRules(t, scenarioRules("0.7"))
	c, err := New(doc, WithClock(clock), WithWorkers(2))
	require.NoError(t, err)

	var wg sync.WaitGroup
	prints := make([]string, 8)
	for i := range prints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, rec, err := c.Transform(context.Background(), scenarioFrame().Lazy())
			if err == nil {
				prints[i] = rec.OutputFingerprint
			}
		}()
	}
	wg.Wait()
	sort.Strings(prints)
	assert.NotEmpty(t, prints[0])
	assert.Equal(t, prints[0], prints[len(prints)-1])
}
