package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Job.
//
// Path is a dotted path into the config (e.g. "source.kind",
// "output.db.table"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether issues contains an error-severity issue.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob performs static validation / linting of a Job.
//
// It does not mutate the job and does not open files or connections. The rule
// document itself is validated by the rules package when it is loaded.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics grouping and identifying runs",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateParser(j.Source, j.Parser)...)
	if strings.TrimSpace(j.Rules.Path) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "rules.path",
			Message:  "rules.path must not be empty",
		})
	}
	issues = append(issues, validateOutput(j.Output)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	issues = append(issues, validateMetrics(j.Metrics)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
	}

	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.path",
				Message:  "file source requires a non-empty path",
			})
		}
	case "http":
		if !strings.HasPrefix(s.HTTP.URL, "http://") && !strings.HasPrefix(s.HTTP.URL, "https://") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.url",
				Message:  fmt.Sprintf("http source requires an http(s) url, got %q", s.HTTP.URL),
			})
		}
		if s.HTTP.MaxRetries < 0 || s.HTTP.TimeoutSeconds < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http",
				Message:  "max_retries and timeout_seconds must not be negative",
			})
		}
	case "postgres":
		if strings.TrimSpace(s.Postgres.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.postgres.dsn",
				Message:  "postgres source has no dsn; CLEANSE_PG_DSN must be set",
			})
		}
		if strings.TrimSpace(s.Postgres.Query) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.postgres.query",
				Message:  "postgres source requires a query",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; supported: file, http, postgres", s.Kind),
		})
	}

	return issues
}

func validateParser(s Source, p Parser) []Issue {
	var issues []Issue

	if s.Kind == "postgres" {
		if p.Kind != "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "parser.kind",
				Message:  fmt.Sprintf("parser is ignored for %s sources", s.Kind),
			})
		}
		return issues
	}

	switch p.Kind {
	case "", "csv":
		if c := p.Options.String("comma", ","); len([]rune(c)) != 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "parser.options.comma",
				Message:  fmt.Sprintf("comma must be a single character, got %q", c),
			})
		}
	case "ndjson":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unknown parser kind %q; supported: csv, ndjson", p.Kind),
		})
	}

	return issues
}

func validateOutput(o Output) []Issue {
	var issues []Issue

	if strings.TrimSpace(o.File.Path) == "" && !o.DB.Enabled() {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "output",
			Message:  "no data sink configured; cleaned data will be discarded",
		})
	}
	if o.DB.Enabled() && strings.TrimSpace(o.DB.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.db.table",
			Message:  "output.db.table must not be empty",
		})
	}
	if !o.DB.Enabled() {
		return issues
	}
	switch o.DB.DriverName() {
	case "postgres":
		if strings.TrimSpace(o.DB.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "output.db.dsn",
				Message:  "output.db has no dsn; CLEANSE_PG_DSN must be set",
			})
		}
	case "sqlite", "mssql":
		if strings.TrimSpace(o.DB.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "output.db.dsn",
				Message:  fmt.Sprintf("output.db.dsn is required for driver %q", o.DB.Driver),
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.db.driver",
			Message:  fmt.Sprintf("unsupported driver %q (supported: postgres, sqlite, mssql)", o.DB.Driver),
		})
	}

	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	switch r.Checks {
	case "", ChecksOff, ChecksReport, ChecksStrict:
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.checks",
			Message:  fmt.Sprintf("unknown checks mode %q; supported: off, report, strict", r.Checks),
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend has no url; PUSHGATEWAY_URL must be set",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DogStatsdAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.dogstatsd_addr",
				Message:  "datadog backend has no address; DOGSTATSD_ADDR must be set",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; supported: pushgateway, datadog, none", m.Backend),
		})
	}

	return issues
}
