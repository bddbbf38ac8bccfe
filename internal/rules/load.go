package rules

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"sort"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Wire shapes. Pointers distinguish "absent" (default applies) from zero.

type rawDocument struct {
	Table       string                     `mapstructure:"table"`
	RuleVersion *int                       `mapstructure:"rule_version"`
	ValidFrom   any                        `mapstructure:"valid_from"`
	Schema      map[string]rawColumnSchema `mapstructure:"schema"`
	Cleaning    *rawCleaning               `mapstructure:"cleaning"`
}

type rawColumnSchema struct {
	DType    string         `mapstructure:"dtype"`
	Nullable *bool          `mapstructure:"nullable"`
	Coerce   bool           `mapstructure:"coerce"`
	Checks   map[string]any `mapstructure:"checks"`
}

type rawCleaning struct {
	DropColumnsIfMissingGT *float64          `mapstructure:"drop_columns_if_missing_gt"`
	DropRowsIfMissingGT    *float64          `mapstructure:"drop_rows_if_missing_gt"`
	Numeric                *rawNumeric       `mapstructure:"numeric"`
	Categorical            *rawCategorical   `mapstructure:"categorical"`
	Datetime               []rawDatetimeRule `mapstructure:"datetime"`
}

type rawNumeric struct {
	DefaultStrategy      *string  `mapstructure:"default_strategy"`
	DefaultFillValue     *float64 `mapstructure:"default_fill_value"`
	HighMissingThreshold *float64 `mapstructure:"high_missing_threshold"`
	UseKNNIfAbove        *float64 `mapstructure:"use_knn_if_above"`
	OutlierStrategy      *string  `mapstructure:"outlier_strategy"`
}

type rawCategorical struct {
	DefaultStrategy          *string  `mapstructure:"default_strategy"`
	DefaultFillValue         *string  `mapstructure:"default_fill_value"`
	HighMissingStrategy      *string  `mapstructure:"high_missing_strategy"`
	NewCategoryName          *string  `mapstructure:"new_category_name"`
	HighCardinalityThreshold *int     `mapstructure:"high_cardinality_threshold"`
	RareCategoryMinPct       *float64 `mapstructure:"rare_category_min_pct"`
	RareStrategyGroupAsOther *bool    `mapstructure:"rare_strategy_group_as_other"`
}

type rawDatetimeRule struct {
	Column       string  `mapstructure:"column"`
	Coerce       *bool   `mapstructure:"coerce"`
	FillStrategy *string `mapstructure:"fill_strategy"`
}

var topLevelKeys = map[string]struct{}{
	"table": {}, "rule_version": {}, "valid_from": {}, "schema": {}, "cleaning": {},
}

// LoadFile reads and parses a YAML or JSON rule document from path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML (or JSON) rule document. Declared schema column order
// is preserved in Document.Order.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ConfigError{Issues: []Issue{{
			Severity: SeverityError, Path: "document", Message: "malformed document: " + err.Error(), Err: err,
		}}}
	}
	var raw map[string]any
	if err := root.Decode(&raw); err != nil {
		return nil, &ConfigError{Issues: []Issue{{
			Severity: SeverityError, Path: "document", Message: "document must be a mapping", Err: err,
		}}}
	}
	doc, err := Load(raw)
	if err != nil {
		return nil, err
	}
	if order := schemaOrder(&root); len(order) == len(doc.Schema) {
		doc.Order = order
	}
	return doc, nil
}

func schemaOrder(root *yaml.Node) []string {
	n := root
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value != "schema" || n.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		m := n.Content[i+1]
		out := make([]string, 0, len(m.Content)/2)
		for j := 0; j+1 < len(m.Content); j += 2 {
			out = append(out, m.Content[j].Value)
		}
		return out
	}
	return nil
}

// Load builds a Document from an already-decoded mapping. Unknown keys are
// rejected at every level; absent fields take the documented defaults. The
// error, when non-nil, is a *ConfigError listing every problem found.
//
// Schema order is not recoverable from a Go map, so Order is sorted by name.
func Load(raw map[string]any) (*Document, error) {
	if raw == nil {
		return nil, &ConfigError{Issues: []Issue{{
			Severity: SeverityError, Path: "document", Message: "document is empty",
		}}}
	}

	var issues []Issue
	var unknown []string
	for k := range raw {
		if _, ok := topLevelKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		issues = append(issues, Issue{Severity: SeverityError, Path: k, Message: "unknown field"})
	}
	if len(issues) > 0 {
		return nil, &ConfigError{Issues: issues}
	}

	var rd rawDocument
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		DecodeHook:       integralFloatHook,
		Result:           &rd,
	})
	if err != nil {
		return nil, fmt.Errorf("rules: decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, &ConfigError{Issues: []Issue{{
			Severity: SeverityError, Path: "document", Message: err.Error(), Err: err,
		}}}
	}

	for _, k := range []string{"table", "schema", "cleaning"} {
		if _, ok := raw[k]; !ok {
			issues = append(issues, Issue{Severity: SeverityError, Path: k, Message: "required field is missing"})
		}
	}

	doc, buildIssues := build(&rd)
	issues = append(issues, buildIssues...)

	seen := make(map[string]bool, len(issues))
	for _, iss := range issues {
		seen[iss.Path] = true
	}
	for _, iss := range Validate(doc) {
		if !seen[iss.Path] {
			issues = append(issues, iss)
		}
	}
	if err := newConfigError(issues); err != nil {
		return nil, err
	}
	for _, iss := range issues {
		if iss.Severity == SeverityWarning {
			doc.Warnings = append(doc.Warnings, iss)
		}
	}
	return doc, nil
}

func build(rd *rawDocument) (*Document, []Issue) {
	var issues []Issue
	strategy := func(path string, err error) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: err.Error(), Err: err})
	}

	doc := &Document{
		Table:       rd.Table,
		RuleVersion: 1,
		Schema:      make(map[string]ColumnSchema, len(rd.Schema)),
		Cleaning:    DefaultCleaning(),
	}
	if rd.RuleVersion != nil {
		doc.RuleVersion = *rd.RuleVersion
	}
	switch v := rd.ValidFrom.(type) {
	case nil:
	case string:
		doc.ValidFrom = v
	case time.Time:
		doc.ValidFrom = v.Format(time.DateOnly)
	default:
		issues = append(issues, Issue{Severity: SeverityError, Path: "valid_from", Message: "must be a date string", Value: v})
	}

	for name, cs := range rd.Schema {
		nullable := true
		if cs.Nullable != nil {
			nullable = *cs.Nullable
		}
		doc.Schema[name] = ColumnSchema{DType: DType(norm(cs.DType)), Nullable: nullable, Coerce: cs.Coerce, Checks: cs.Checks}
		doc.Order = append(doc.Order, name)
	}
	sort.Strings(doc.Order)

	rc := rd.Cleaning
	if rc == nil {
		return doc, issues
	}
	c := &doc.Cleaning
	if rc.DropColumnsIfMissingGT != nil {
		c.DropColumnsIfMissingGT = *rc.DropColumnsIfMissingGT
	}
	if rc.DropRowsIfMissingGT != nil {
		c.DropRowsIfMissingGT = *rc.DropRowsIfMissingGT
	}

	if n := rc.Numeric; n != nil {
		if n.DefaultStrategy != nil {
			s, err := ParseNumericImputation(*n.DefaultStrategy)
			if err != nil {
				strategy("cleaning.numeric.default_strategy", err)
			}
			c.Numeric.Imputation = s
		}
		c.Numeric.FillValue = n.DefaultFillValue
		if n.HighMissingThreshold != nil {
			c.Numeric.HighMissingThreshold = *n.HighMissingThreshold
		}
		if n.UseKNNIfAbove != nil {
			c.Numeric.UseKNNIfAbove = *n.UseKNNIfAbove
		}
		if n.OutlierStrategy != nil {
			o, err := ParseOutlier(*n.OutlierStrategy)
			if err != nil {
				strategy("cleaning.numeric.outlier_strategy", err)
			}
			c.Numeric.Outlier = o
		}
	}

	if k := rc.Categorical; k != nil {
		if k.DefaultStrategy != nil {
			s, err := ParseCategoricalImputation(*k.DefaultStrategy)
			if err != nil {
				strategy("cleaning.categorical.default_strategy", err)
			}
			c.Categorical.Imputation = s
		}
		c.Categorical.FillValue = k.DefaultFillValue
		if k.HighMissingStrategy != nil {
			s, err := ParseHighMissingStrategy(*k.HighMissingStrategy)
			if err != nil {
				strategy("cleaning.categorical.high_missing_strategy", err)
			}
			c.Categorical.HighMissing = s
		}
		if k.NewCategoryName != nil {
			c.Categorical.NewCategoryName = *k.NewCategoryName
		}
		if k.HighCardinalityThreshold != nil {
			c.Categorical.HighCardinalityThreshold = *k.HighCardinalityThreshold
		}
		if k.RareCategoryMinPct != nil {
			c.Categorical.RareMinFraction = *k.RareCategoryMinPct
		}
		if k.RareStrategyGroupAsOther != nil {
			c.Categorical.GroupRareAsOther = *k.RareStrategyGroupAsOther
		}
	}

	for i, r := range rc.Datetime {
		rule := DatetimeRule{Column: r.Column, Coerce: true}
		if r.Coerce != nil {
			rule.Coerce = *r.Coerce
		}
		if r.FillStrategy != nil {
			f, err := ParseFillStrategy(*r.FillStrategy)
			if err != nil {
				strategy(fmt.Sprintf("cleaning.datetime[%d].fill_strategy", i), err)
			}
			rule.Fill = f
		}
		c.Datetime = append(c.Datetime, rule)
	}
	return doc, issues
}

// integralFloatHook rejects floats with a fractional part bound for integer
// fields; mapstructure would otherwise truncate them.
func integralFloatHook(from, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	if from.Kind() != reflect.Float32 && from.Kind() != reflect.Float64 {
		return data, nil
	}
	f := reflect.ValueOf(data).Float()
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", data)
	}
	return data, nil
}
