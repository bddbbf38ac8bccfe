package sqlite

import (
	"fmt"
	"strings"

	"cleanse/internal/frame"
	"cleanse/internal/storage"
)

// Dialect renders SQLite DDL for storage.WriteFrame.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

// SQLType maps an engine column type to a SQLite type affinity. Booleans are
// stored as 0/1 and temporal values as ISO-8601 text.
func SQLType(dt frame.DType) string {
	switch dt {
	case frame.Int32, frame.Int64, frame.Bool:
		return "INTEGER"
	case frame.Float32, frame.Float64:
		return "REAL"
	default:
		return "TEXT"
	}
}

// CreateTableSQL implements storage.Dialect. Every column is nullable.
func (Dialect) CreateTableSQL(table string, fields []frame.Field) (string, error) {
	fqn := strings.TrimSpace(table)
	if fqn == "" {
		return "", fmt.Errorf("sqlite ddl: table name must not be empty")
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("sqlite ddl: at least one column is required")
	}
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return "", fmt.Errorf("sqlite ddl: column with empty name in table %s", fqn)
		}
		cols = append(cols, quoteIdent(f.Name)+" "+SQLType(f.DType))
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// TruncateSQL implements storage.Dialect. SQLite has no TRUNCATE.
func (Dialect) TruncateSQL(table string) string { return "DELETE FROM " + quoteFQN(table) }

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func quoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, quoteIdent(p))
	}
	return strings.Join(out, ".")
}
