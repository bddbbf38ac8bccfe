package rules

import (
	"fmt"
	"math"
	"sort"
)

// Validate lints a Document and returns every issue found. Error-severity
// issues make the document unusable; warnings are informational.
//
// Load runs Validate itself. Call it directly for documents built in code.
func Validate(doc *Document) []Issue {
	if doc == nil {
		return []Issue{{Severity: SeverityError, Path: "document", Message: "document is nil"}}
	}
	var issues []Issue
	add := func(sev IssueSeverity, path, msg string, v any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: msg, Value: v})
	}
	strategy := func(path string, err *UnsupportedStrategyError) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: err.Error(), Err: err})
	}
	fraction := func(path string, v float64) {
		if math.IsNaN(v) || v < 0 || v > 1 {
			add(SeverityError, path, "must be between 0 and 1", v)
		}
	}

	if doc.Table == "" {
		add(SeverityError, "table", "table is required", nil)
	}
	if doc.RuleVersion < 1 {
		add(SeverityError, "rule_version", "must be a positive integer", doc.RuleVersion)
	}

	names := make([]string, 0, len(doc.Schema))
	for n := range doc.Schema {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if n == "" {
			add(SeverityError, "schema", "column name must not be empty", nil)
			continue
		}
		if dt := doc.Schema[n].DType; !dt.Valid() {
			add(SeverityError, "schema."+n+".dtype", "unknown dtype", string(dt))
		}
	}

	c := doc.Cleaning
	fraction("cleaning.drop_columns_if_missing_gt", c.DropColumnsIfMissingGT)
	fraction("cleaning.drop_rows_if_missing_gt", c.DropRowsIfMissingGT)

	num := c.Numeric
	if !num.Imputation.Valid() {
		strategy("cleaning.numeric.default_strategy",
			&UnsupportedStrategyError{Family: "numeric imputation", Strategy: num.Imputation.String()})
	}
	if num.Imputation == NumericConstant {
		if num.FillValue == nil {
			add(SeverityError, "cleaning.numeric.default_fill_value", "required when default_strategy is constant", nil)
		} else if math.IsNaN(*num.FillValue) || math.IsInf(*num.FillValue, 0) {
			add(SeverityError, "cleaning.numeric.default_fill_value", "must be finite", *num.FillValue)
		}
	}
	fraction("cleaning.numeric.high_missing_threshold", num.HighMissingThreshold)
	fraction("cleaning.numeric.use_knn_if_above", num.UseKNNIfAbove)
	switch {
	case !num.Outlier.Valid():
		strategy("cleaning.numeric.outlier_strategy",
			&UnsupportedStrategyError{Family: "outlier", Strategy: num.Outlier.String()})
	case num.Outlier.Kind == OutlierClipIQR:
		if f := num.Outlier.Factor; math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			add(SeverityError, "cleaning.numeric.outlier_strategy", "iqr factor must be a non-negative number", f)
		}
	}

	cat := c.Categorical
	if !cat.Imputation.Valid() {
		strategy("cleaning.categorical.default_strategy",
			&UnsupportedStrategyError{Family: "categorical imputation", Strategy: cat.Imputation.String()})
	}
	if cat.Imputation == CategoricalConstant && cat.FillValue == nil {
		add(SeverityError, "cleaning.categorical.default_fill_value", "required when default_strategy is constant", nil)
	}
	if !cat.HighMissing.Valid() {
		strategy("cleaning.categorical.high_missing_strategy",
			&UnsupportedStrategyError{Family: "categorical high-missing", Strategy: cat.HighMissing.String()})
	}
	if cat.HighMissing == HighMissingNewCategory && cat.NewCategoryName == "" {
		add(SeverityError, "cleaning.categorical.new_category_name", "required when high_missing_strategy is new_category", nil)
	}
	if cat.HighCardinalityThreshold < 1 {
		add(SeverityError, "cleaning.categorical.high_cardinality_threshold", "must be a positive integer", cat.HighCardinalityThreshold)
	}
	fraction("cleaning.categorical.rare_category_min_pct", cat.RareMinFraction)

	seen := make(map[string]int, len(c.Datetime))
	for i, r := range c.Datetime {
		p := fmt.Sprintf("cleaning.datetime[%d]", i)
		if r.Column == "" {
			add(SeverityError, p+".column", "column is required", nil)
			continue
		}
		if !r.Fill.Valid() {
			strategy(p+".fill_strategy", &UnsupportedStrategyError{Family: "datetime fill", Strategy: r.Fill.String(), Column: r.Column})
		}
		if prev, dup := seen[r.Column]; dup {
			add(SeverityWarning, p+".column", fmt.Sprintf("duplicates cleaning.datetime[%d]; both rules apply in order", prev), r.Column)
		}
		seen[r.Column] = i
		cs, ok := doc.Schema[r.Column]
		switch {
		case !ok:
			add(SeverityWarning, p+".column", "column is not declared in schema; rule applies only if the column is present", r.Column)
		case cs.DType != DTypeDate && cs.DType != DTypeDatetime:
			add(SeverityWarning, p+".column", "column is declared as "+string(cs.DType)+", not a temporal type", r.Column)
		}
	}
	return issues
}
