// Package audit accumulates the decisions taken by one cleaning run into a
// single structured Record.
//
// A Recorder is created empty when a run starts, receives additive updates
// from each stage and is frozen exactly once. The frozen Record is a deep
// copy; updates after Freeze are ignored.
package audit

import (
	"sort"
	"sync"
	"time"
)

// Causes for column drops.
const (
	CauseHighMissing = "high_missing"
)

// Identity names a run.
type Identity struct {
	RunID       string
	Table       string
	RuleVersion int
	ValidFrom   string
}

// Policy echoes the thresholds and strategies in force for the run,
// including the reserved fields that drive no transformation.
type Policy struct {
	DropColumnsIfMissingGT   float64 `json:"drop_columns_if_missing_gt"`
	DropRowsIfMissingGT      float64 `json:"drop_rows_if_missing_gt"`
	NumericStrategy          string  `json:"numeric_strategy"`
	OutlierStrategy          string  `json:"outlier_strategy"`
	NumericHighMissing       float64 `json:"numeric_high_missing_threshold"`
	UseKNNIfAbove            float64 `json:"use_knn_if_above"`
	CategoricalStrategy      string  `json:"categorical_strategy"`
	HighMissingStrategy      string  `json:"high_missing_strategy"`
	NewCategoryName          string  `json:"new_category_name"`
	HighCardinalityThreshold int     `json:"high_cardinality_threshold"`
	RareCategoryMinPct       float64 `json:"rare_category_min_pct"`
	GroupRareAsOther         bool    `json:"rare_strategy_group_as_other"`
}

// DroppedColumn is a column removed by the missingness filter.
type DroppedColumn struct {
	Column          string  `json:"column"`
	Cause           string  `json:"cause"`
	MissingFraction float64 `json:"missing_fraction"`
}

// Bounds are the clip bounds computed for a numeric column. A nil side was
// unbounded (the column had no non-null values).
type Bounds struct {
	Lower *float64 `json:"lower"`
	Upper *float64 `json:"upper"`
}

// Record is the frozen audit of one run.
type Record struct {
	RunID       string    `json:"run_id"`
	Table       string    `json:"table"`
	RuleVersion int       `json:"rule_version"`
	ValidFrom   string    `json:"valid_from,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Policy Policy `json:"policy"`

	RowsIn             int `json:"rows_in"`
	RowsOut            int `json:"rows_out"`
	RowsDroppedMissing int `json:"rows_dropped_missing"`

	ColumnsCoerced        []string            `json:"columns_coerced"`
	ColumnsDropped        []DroppedColumn     `json:"columns_dropped"`
	NumericImputation     map[string]string   `json:"numeric_imputation"`
	ClipBounds            map[string]Bounds   `json:"clip_bounds"`
	CategoricalImputation map[string]string   `json:"categorical_imputation"`
	RareCategories        map[string][]string `json:"rare_categories"`
	HighCardinality       map[string]int      `json:"high_cardinality_columns"`
	DatetimeColumns       []string            `json:"datetime_columns"`
	AuditColumns          []string            `json:"audit_columns"`

	// OutputFingerprint is the xxh3 hash of the cleaned data before audit
	// columns are attached, as a 16-digit hex string.
	OutputFingerprint string `json:"output_fingerprint"`
}

// Recorder is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	frozen bool
	rec    Record
}

// NewRecorder starts an empty record for id.
func NewRecorder(id Identity, started time.Time) *Recorder {
	return &Recorder{rec: Record{
		RunID:                 id.RunID,
		Table:                 id.Table,
		RuleVersion:           id.RuleVersion,
		ValidFrom:             id.ValidFrom,
		StartedAt:             started,
		ColumnsCoerced:        []string{},
		ColumnsDropped:        []DroppedColumn{},
		NumericImputation:     map[string]string{},
		ClipBounds:            map[string]Bounds{},
		CategoricalImputation: map[string]string{},
		RareCategories:        map[string][]string{},
		HighCardinality:       map[string]int{},
		DatetimeColumns:       []string{},
		AuditColumns:          []string{},
	}}
}

func (r *Recorder) update(fn func(rec *Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	fn(&r.rec)
}

func (r *Recorder) SetPolicy(p Policy) { r.update(func(rec *Record) { rec.Policy = p }) }

func (r *Recorder) SetRowsIn(n int)  { r.update(func(rec *Record) { rec.RowsIn = n }) }
func (r *Recorder) SetRowsOut(n int) { r.update(func(rec *Record) { rec.RowsOut = n }) }

func (r *Recorder) AddRowsDropped(n int) {
	r.update(func(rec *Record) { rec.RowsDroppedMissing += n })
}

func (r *Recorder) AddCoerced(column string) {
	r.update(func(rec *Record) { rec.ColumnsCoerced = append(rec.ColumnsCoerced, column) })
}

func (r *Recorder) AddDroppedColumn(column, cause string, missingFraction float64) {
	r.update(func(rec *Record) {
		rec.ColumnsDropped = append(rec.ColumnsDropped, DroppedColumn{Column: column, Cause: cause, MissingFraction: missingFraction})
	})
}

func (r *Recorder) AddNumericImputation(column, strategy string) {
	r.update(func(rec *Record) { rec.NumericImputation[column] = strategy })
}

// AddClipBounds records the bounds used for column. Nil means unbounded.
func (r *Recorder) AddClipBounds(column string, lower, upper *float64) {
	r.update(func(rec *Record) { rec.ClipBounds[column] = Bounds{Lower: clonef(lower), Upper: clonef(upper)} })
}

func (r *Recorder) AddCategoricalImputation(column, strategy string) {
	r.update(func(rec *Record) { rec.CategoricalImputation[column] = strategy })
}

// AddRareCategories records the values of column rewritten to the sentinel.
// Empty lists are not recorded.
func (r *Recorder) AddRareCategories(column string, values []string) {
	if len(values) == 0 {
		return
	}
	r.update(func(rec *Record) { rec.RareCategories[column] = append([]string(nil), values...) })
}

// AddHighCardinality records a column whose distinct count exceeds the
// configured threshold.
func (r *Recorder) AddHighCardinality(column string, distinct int) {
	r.update(func(rec *Record) { rec.HighCardinality[column] = distinct })
}

func (r *Recorder) AddDatetime(column string) {
	r.update(func(rec *Record) { rec.DatetimeColumns = append(rec.DatetimeColumns, column) })
}

func (r *Recorder) AddAuditColumns(names ...string) {
	r.update(func(rec *Record) { rec.AuditColumns = append(rec.AuditColumns, names...) })
}

func (r *Recorder) SetOutputFingerprint(hex string) {
	r.update(func(rec *Record) { rec.OutputFingerprint = hex })
}

// Freeze seals the recorder and returns the final record. Calling Freeze
// again returns the same content with the first finish time.
func (r *Recorder) Freeze(finished time.Time) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.frozen {
		r.rec.FinishedAt = finished
		r.frozen = true
	}
	return r.rec.clone()
}

// Frozen reports whether Freeze has been called.
func (r *Recorder) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

func (rec Record) clone() Record {
	out := rec
	out.ColumnsCoerced = append([]string{}, rec.ColumnsCoerced...)
	out.ColumnsDropped = append([]DroppedColumn{}, rec.ColumnsDropped...)
	out.DatetimeColumns = append([]string{}, rec.DatetimeColumns...)
	out.AuditColumns = append([]string{}, rec.AuditColumns...)
	out.NumericImputation = cloneMap(rec.NumericImputation)
	out.CategoricalImputation = cloneMap(rec.CategoricalImputation)
	out.HighCardinality = cloneMap(rec.HighCardinality)
	out.ClipBounds = make(map[string]Bounds, len(rec.ClipBounds))
	for k, b := range rec.ClipBounds {
		out.ClipBounds[k] = Bounds{Lower: clonef(b.Lower), Upper: clonef(b.Upper)}
	}
	out.RareCategories = make(map[string][]string, len(rec.RareCategories))
	for k, v := range rec.RareCategories {
		out.RareCategories[k] = append([]string(nil), v...)
	}
	return out
}

// DroppedColumnNames lists dropped columns in drop order.
func (rec Record) DroppedColumnNames() []string {
	out := make([]string, len(rec.ColumnsDropped))
	for i, d := range rec.ColumnsDropped {
		out[i] = d.Column
	}
	return out
}

// RareColumns lists the columns with rewritten rare categories, sorted.
func (rec Record) RareColumns() []string {
	out := make([]string, 0, len(rec.RareCategories))
	for k := range rec.RareCategories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clonef(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
