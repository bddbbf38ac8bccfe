package postgres

import (
	"fmt"
	"strings"

	"cleanse/internal/frame"
	"cleanse/internal/storage"
)

// ColumnDef is one column of a CREATE TABLE statement.
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// TableDef holds the table name in dotted form ("schema.table") and its
// ordered columns. Quoting happens at render time.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// SQLType maps an engine column type to its Postgres type.
func SQLType(dt frame.DType) string {
	switch dt {
	case frame.Float32:
		return "REAL"
	case frame.Float64:
		return "DOUBLE PRECISION"
	case frame.Int32:
		return "INTEGER"
	case frame.Int64:
		return "BIGINT"
	case frame.Bool:
		return "BOOLEAN"
	case frame.Date:
		return "DATE"
	case frame.Datetime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// Dialect renders Postgres DDL for storage.WriteFrame.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

// CreateTableSQL implements storage.Dialect.
func (Dialect) CreateTableSQL(table string, fields []frame.Field) (string, error) {
	return BuildCreateTableSQL(TableFromSchema(table, fields))
}

// TruncateSQL implements storage.Dialect.
func (Dialect) TruncateSQL(table string) string { return "TRUNCATE TABLE " + quoteFQN(table) }

// TableFromSchema derives a table definition from a frame schema. Every
// column is nullable; the cleaned frame may still carry nulls.
func TableFromSchema(fqn string, fields []frame.Field) TableDef {
	cols := make([]ColumnDef, len(fields))
	for i, f := range fields {
		cols[i] = ColumnDef{Name: f.Name, SQLType: SQLType(f.DType), Nullable: true}
	}
	return TableDef{FQN: fqn, Columns: cols}
}

// BuildCreateTableSQL builds a deterministic CREATE TABLE IF NOT EXISTS
// statement. Identifiers are double-quoted with embedded quotes escaped.
func BuildCreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("postgres ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("postgres ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("postgres ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("postgres ddl: column %s missing SQLType", name)
		}
		col := quoteIdent(name) + " " + typ
		if !c.Nullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// quoteIdent quotes a single identifier segment, e.g.:
//
//	quoteIdent(`amount`)     => `"amount"`
//	quoteIdent(`weird"name`) => `"weird""name"`
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// quoteFQN quotes a possibly schema-qualified name like "public.users" to
// `"public"."users"`. Empty segments are ignored.
func quoteFQN(f string) string {
	parts := strings.Split(f, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, quoteIdent(p))
	}
	return strings.Join(out, ".")
}
