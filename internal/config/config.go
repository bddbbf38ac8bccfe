// Package config defines the JSON job file consumed by cmd/cleanse: where the
// data comes from, how it is parsed, which rule document applies, where
// cleaned data and the audit go, and how metrics are shipped.
//
// Example (trimmed):
//
//	{
//	  "job":     "transactions-nightly",
//	  "source":  { "kind": "file", "file": { "path": "data/transactions.csv" } },
//	  "parser":  { "kind": "csv", "options": { "comma": ",", "trim_space": true } },
//	  "rules":   { "path": "configs/rules/transaction_features.yaml" },
//	  "output":  { "file": { "path": "out/clean.csv" }, "audit": { "path": "out/audit.json" } },
//	  "metrics": { "backend": "pushgateway", "pushgateway_url": "http://localhost:9091" }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Job is the top-level object decoded from a job file (configs/jobs/*.json).
type Job struct {
	// Job names the run for metrics grouping and logs.
	Job string `json:"job"`

	Source  Source        `json:"source"`
	Parser  Parser        `json:"parser"`
	Rules   Rules         `json:"rules"`
	Output  Output        `json:"output"`
	Runtime RuntimeConfig `json:"runtime"`
	Metrics Metrics       `json:"metrics"`
}

// RuntimeConfig controls engine concurrency and run identity.
type RuntimeConfig struct {
	// Workers bounds per-stage column parallelism; 0 means GOMAXPROCS.
	Workers int `json:"workers"`
	// RunID fixes the run id instead of generating one.
	RunID string `json:"run_id"`
	// Checks selects how schema check failures are handled: "report"
	// (default) logs them, "strict" fails the run before any sink is
	// written, "off" skips validation.
	Checks string `json:"checks"`
}

// Schema check modes.
const (
	ChecksOff    = "off"
	ChecksReport = "report"
	ChecksStrict = "strict"
)

// ChecksMode returns Checks, defaulting to ChecksReport.
func (r RuntimeConfig) ChecksMode() string {
	if r.Checks == "" {
		return ChecksReport
	}
	return r.Checks
}

// Source identifies the data source.
type Source struct {
	// Kind selects the source implementation: "file", "http" or "postgres".
	Kind string `json:"kind"`

	File     SourceFile     `json:"file"`
	HTTP     SourceHTTP     `json:"http"`
	Postgres SourcePostgres `json:"postgres"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is the local filesystem path to the input file.
	Path string `json:"path"`
}

// SourceHTTP downloads the input file. The body is parsed like a file source.
type SourceHTTP struct {
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers"`
	MaxRetries int               `json:"max_retries"`
	// TimeoutSeconds bounds each request; 0 means 30s.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// SourcePostgres reads the input dataset with a query.
type SourcePostgres struct {
	DSN   string `json:"dsn"`
	Query string `json:"query"`
}

// Parser selects how to parse file or HTTP input into a frame.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind"`

	// Options is a free-form map interpreted by the parser implementation.
	// For CSV: comma (string), trim_space (bool), normalize_unicode (bool),
	// null_values ([]string).
	Options Options `json:"options"`
}

// Rules points at the rule document.
type Rules struct {
	Path string `json:"path"`
}

// Output lists the sinks for the cleaned frame and the audit record. At least
// one data sink is expected.
type Output struct {
	File  OutputFile `json:"file"`
	DB    DBConfig   `json:"db"`
	Audit AuditFile  `json:"audit"`
}

// OutputFile writes the cleaned frame as CSV.
type OutputFile struct {
	Path string `json:"path"`
}

// AuditFile writes the audit record as JSON. "-" means stdout.
type AuditFile struct {
	Path string `json:"path"`
}

// DBConfig configures the database sink.
type DBConfig struct {
	// Driver is "postgres" (default), "sqlite" or "mssql".
	Driver string `json:"driver"`

	// DSN is the driver connection string, e.g. postgresql://..., a SQLite
	// file path, or sqlserver://...
	DSN string `json:"dsn"`

	// Table is the destination table, optionally schema-qualified.
	Table string `json:"table"`

	// AutoCreateTable creates the table from the frame schema when missing.
	AutoCreateTable bool `json:"auto_create_table"`

	// Truncate empties the table before COPY.
	Truncate bool `json:"truncate"`
}

// Enabled reports whether a DB sink is configured.
func (d DBConfig) Enabled() bool { return d.DSN != "" || d.Table != "" }

// DriverName returns Driver, defaulting to "postgres".
func (d DBConfig) DriverName() string {
	if d.Driver == "" {
		return "postgres"
	}
	return d.Driver
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "pushgateway", "datadog" or "none" (default).
	Backend        string `json:"backend"`
	PushgatewayURL string `json:"pushgateway_url"`
	DogStatsdAddr  string `json:"dogstatsd_addr"`
	Namespace      string `json:"namespace"`
}

// LoadJob decodes a job file.
func LoadJob(path string) (Job, error) {
	var j Job
	b, err := os.ReadFile(path)
	if err != nil {
		return j, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &j); err != nil {
		return j, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return j, nil
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
//
// Options is used for parser-specific configuration where the shape varies by
// implementation.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
// If the value is neither float64 nor int, def is returned.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. This is useful for single-character parser settings such as
// a CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of strings
// (or an array of interface values containing strings). Returns nil when the
// key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null "options"
// object in JSON decodes to a non-nil, empty Options map. This simplifies call
// sites by removing the need to nil-check Options values.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
