// Package rules is the typed, validated model of a cleaning policy: table
// identity, per-column schema, thresholds and strategy choices.
//
// Strategies are closed enumerations. Text spellings are accepted only by
// Parse/Load; everything downstream switches over the enum values.
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DType is a declared logical column type.
type DType string

const (
	DTypeString   DType = "string"
	DTypeFloat32  DType = "float32"
	DTypeFloat64  DType = "float64"
	DTypeInt32    DType = "int32"
	DTypeInt64    DType = "int64"
	DTypeBool     DType = "bool"
	DTypeDate     DType = "date"
	DTypeDatetime DType = "datetime"
)

var dtypes = map[DType]struct{}{
	DTypeString: {}, DTypeFloat32: {}, DTypeFloat64: {}, DTypeInt32: {},
	DTypeInt64: {}, DTypeBool: {}, DTypeDate: {}, DTypeDatetime: {},
}

func (d DType) Valid() bool { _, ok := dtypes[d]; return ok }

// IsNumeric reports float and integer types.
func (d DType) IsNumeric() bool {
	return strings.HasPrefix(string(d), "float") || strings.HasPrefix(string(d), "int")
}

// IsCategorical reports string-typed columns.
func (d DType) IsCategorical() bool { return d == DTypeString }

// Document is a validated rule document.
type Document struct {
	Table       string
	RuleVersion int
	ValidFrom   string

	// Schema maps column names to their declared schema. Order holds the
	// declared column order; see Columns.
	Schema map[string]ColumnSchema
	Order  []string

	Cleaning CleaningConfig

	// Warnings holds non-blocking findings from loading.
	Warnings []Issue
}

// Columns returns schema column names in declared order. When Order does not
// cover the schema exactly, names are returned sorted.
func (d *Document) Columns() []string {
	if len(d.Order) == len(d.Schema) {
		ok := true
		for _, n := range d.Order {
			if _, in := d.Schema[n]; !in {
				ok = false
				break
			}
		}
		if ok {
			out := make([]string, len(d.Order))
			copy(out, d.Order)
			return out
		}
	}
	out := make([]string, 0, len(d.Schema))
	for n := range d.Schema {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ColumnSchema is the declared contract of one column. Checks are opaque to
// the engine and enforced by an external validator.
type ColumnSchema struct {
	DType    DType
	Nullable bool
	Coerce   bool
	Checks   map[string]any
}

// CleaningConfig aggregates thresholds and strategy choices.
type CleaningConfig struct {
	DropColumnsIfMissingGT float64
	DropRowsIfMissingGT    float64
	Numeric                NumericRules
	Categorical            CategoricalRules
	Datetime               []DatetimeRule
}

// DefaultCleaning returns the defaults applied to absent fields.
func DefaultCleaning() CleaningConfig {
	return CleaningConfig{
		DropColumnsIfMissingGT: 0.7,
		DropRowsIfMissingGT:    0.5,
		Numeric: NumericRules{
			Imputation:           NumericMedian,
			HighMissingThreshold: 0.3,
			UseKNNIfAbove:        0.15,
			Outlier:              Outlier{Kind: OutlierClipIQR, Factor: DefaultIQRFactor},
		},
		Categorical: CategoricalRules{
			Imputation:               CategoricalMode,
			HighMissing:              HighMissingNewCategory,
			NewCategoryName:          "MISSING",
			HighCardinalityThreshold: 100,
			RareMinFraction:          0.01,
			GroupRareAsOther:         true,
		},
	}
}

// NumericImputation selects how null numeric cells are filled.
type NumericImputation uint8

const (
	NumericMedian NumericImputation = iota + 1
	NumericMean
	NumericConstant
)

func (s NumericImputation) String() string {
	switch s {
	case NumericMedian:
		return "median"
	case NumericMean:
		return "mean"
	case NumericConstant:
		return "constant"
	}
	return fmt.Sprintf("NumericImputation(%d)", uint8(s))
}

func (s NumericImputation) Valid() bool { return s >= NumericMedian && s <= NumericConstant }

// ParseNumericImputation accepts median, mean and constant.
func ParseNumericImputation(s string) (NumericImputation, error) {
	switch norm(s) {
	case "median":
		return NumericMedian, nil
	case "mean":
		return NumericMean, nil
	case "constant":
		return NumericConstant, nil
	}
	return 0, &UnsupportedStrategyError{Family: "numeric imputation", Strategy: s}
}

// OutlierKind selects numeric outlier handling.
type OutlierKind uint8

const (
	OutlierNone OutlierKind = iota
	OutlierClipIQR
)

// DefaultIQRFactor is the clip-iqr factor used when none is given.
const DefaultIQRFactor = 1.5

// Outlier is an outlier strategy with its parameter.
type Outlier struct {
	Kind   OutlierKind
	Factor float64
}

func (o Outlier) String() string {
	switch o.Kind {
	case OutlierNone:
		return "none"
	case OutlierClipIQR:
		return "clip_iqr(" + strconv.FormatFloat(o.Factor, 'f', -1, 64) + ")"
	}
	return fmt.Sprintf("Outlier(%d)", uint8(o.Kind))
}

func (o Outlier) Valid() bool { return o.Kind <= OutlierClipIQR }

// ParseOutlier accepts "none", "clip_iqr" (factor 1.5), "clip_iqr_<int>" and
// "clip_iqr_<int>_<frac>", where the last two digits groups join with a
// decimal point: clip_iqr_1_5 is factor 1.5, clip_iqr_3 is 3.
func ParseOutlier(s string) (Outlier, error) {
	v := norm(s)
	switch {
	case v == "none" || v == "":
		return Outlier{Kind: OutlierNone}, nil
	case v == "clip_iqr":
		return Outlier{Kind: OutlierClipIQR, Factor: DefaultIQRFactor}, nil
	case strings.HasPrefix(v, "clip_iqr_"):
		parts := strings.Split(strings.TrimPrefix(v, "clip_iqr_"), "_")
		if len(parts) <= 2 {
			for _, p := range parts {
				if p == "" || strings.Trim(p, "0123456789") != "" {
					return Outlier{}, &UnsupportedStrategyError{Family: "outlier", Strategy: s}
				}
			}
			f, err := strconv.ParseFloat(strings.Join(parts, "."), 64)
			if err == nil {
				return Outlier{Kind: OutlierClipIQR, Factor: f}, nil
			}
		}
	}
	return Outlier{}, &UnsupportedStrategyError{Family: "outlier", Strategy: s}
}

// NumericRules configures the numeric cleaner. HighMissingThreshold and
// UseKNNIfAbove are validated and reported but drive no transformation.
type NumericRules struct {
	Imputation           NumericImputation
	FillValue            *float64
	HighMissingThreshold float64
	UseKNNIfAbove        float64
	Outlier              Outlier
}

// CategoricalImputation selects how null categorical cells are filled.
type CategoricalImputation uint8

const (
	CategoricalMode CategoricalImputation = iota + 1
	CategoricalConstant
)

func (s CategoricalImputation) String() string {
	switch s {
	case CategoricalMode:
		return "mode"
	case CategoricalConstant:
		return "constant"
	}
	return fmt.Sprintf("CategoricalImputation(%d)", uint8(s))
}

func (s CategoricalImputation) Valid() bool { return s >= CategoricalMode && s <= CategoricalConstant }

// ParseCategoricalImputation accepts mode and constant.
func ParseCategoricalImputation(s string) (CategoricalImputation, error) {
	switch norm(s) {
	case "mode":
		return CategoricalMode, nil
	case "constant":
		return CategoricalConstant, nil
	}
	return 0, &UnsupportedStrategyError{Family: "categorical imputation", Strategy: s}
}

// HighMissingStrategy is the declared treatment of heavily missing
// categorical columns. It is validated and reported only.
type HighMissingStrategy uint8

const (
	HighMissingNewCategory HighMissingStrategy = iota + 1
	HighMissingDrop
)

func (s HighMissingStrategy) String() string {
	switch s {
	case HighMissingNewCategory:
		return "new_category"
	case HighMissingDrop:
		return "drop"
	}
	return fmt.Sprintf("HighMissingStrategy(%d)", uint8(s))
}

func (s HighMissingStrategy) Valid() bool {
	return s == HighMissingNewCategory || s == HighMissingDrop
}

func ParseHighMissingStrategy(s string) (HighMissingStrategy, error) {
	switch norm(s) {
	case "new_category":
		return HighMissingNewCategory, nil
	case "drop":
		return HighMissingDrop, nil
	}
	return 0, &UnsupportedStrategyError{Family: "categorical high-missing", Strategy: s}
}

// CategoricalRules configures the categorical cleaner.
//
// HighCardinalityThreshold is recorded for reporting and does not trigger a
// transformation; rare-value grouping is driven by RareMinFraction alone.
type CategoricalRules struct {
	Imputation               CategoricalImputation
	FillValue                *string
	HighMissing              HighMissingStrategy
	NewCategoryName          string
	HighCardinalityThreshold int
	RareMinFraction          float64
	GroupRareAsOther         bool
}

// FillStrategy is the positional fill direction for datetime columns.
type FillStrategy uint8

const (
	FillNone FillStrategy = iota
	FillForward
	FillBackward
)

func (s FillStrategy) String() string {
	switch s {
	case FillNone:
		return "none"
	case FillForward:
		return "ffill"
	case FillBackward:
		return "bfill"
	}
	return fmt.Sprintf("FillStrategy(%d)", uint8(s))
}

func (s FillStrategy) Valid() bool { return s <= FillBackward }

// ParseFillStrategy accepts none, ffill/forward and bfill/backward.
func ParseFillStrategy(s string) (FillStrategy, error) {
	switch norm(s) {
	case "", "none":
		return FillNone, nil
	case "ffill", "forward":
		return FillForward, nil
	case "bfill", "backward":
		return FillBackward, nil
	}
	return 0, &UnsupportedStrategyError{Family: "datetime fill", Strategy: s}
}

// DatetimeRule normalizes one datetime column.
type DatetimeRule struct {
	Column string
	Coerce bool
	Fill   FillStrategy
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
