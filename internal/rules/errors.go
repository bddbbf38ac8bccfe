package rules

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a rule-document issue.
type IssueSeverity string

const (
	// SeverityError blocks loading; the document is rejected as a whole.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced on the Document but does not block loading.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the document (e.g. "cleaning.numeric.default_fill_value",
// "schema.amount.dtype"). Value holds the offending value when there is one.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
	Value    any
	Err      error
}

func (i Issue) Error() string {
	if i.Value != nil {
		return fmt.Sprintf("%s at %s: %s (got %v)", i.Severity, i.Path, i.Message, i.Value)
	}
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

func (i Issue) Unwrap() error { return i.Err }

// HasErrors reports whether any issue is error-severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ConfigError rejects a rule document. It carries every error-severity issue
// found, so one load reports all problems at once.
type ConfigError struct {
	Issues []Issue
}

func (e *ConfigError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, iss := range e.Issues {
		msgs[i] = iss.Error()
	}
	return fmt.Sprintf("rules: invalid document (%d issue(s)): %s", len(e.Issues), strings.Join(msgs, "; "))
}

// Unwrap exposes the issues so errors.As can reach their causes.
func (e *ConfigError) Unwrap() []error {
	out := make([]error, len(e.Issues))
	for i, iss := range e.Issues {
		out[i] = iss
	}
	return out
}

func newConfigError(issues []Issue) error {
	var errs []Issue
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &ConfigError{Issues: errs}
}

// UnsupportedStrategyError reports a strategy outside the supported set for
// its family (numeric imputation, outlier, categorical imputation, ...).
type UnsupportedStrategyError struct {
	Stage    string
	Family   string
	Strategy string
	Column   string
}

func (e *UnsupportedStrategyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unsupported %s strategy %q", e.Family, e.Strategy)
	if e.Stage != "" {
		fmt.Fprintf(&b, " in stage %s", e.Stage)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " (column %s)", e.Column)
	}
	return b.String()
}
