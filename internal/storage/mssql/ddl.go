package mssql

import (
	"fmt"
	"strings"

	"cleanse/internal/frame"
	"cleanse/internal/storage"
)

// Dialect renders T-SQL DDL for storage.WriteFrame.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

// SQLType maps an engine column type to a SQL Server type.
func SQLType(dt frame.DType) string {
	switch dt {
	case frame.Float32:
		return "REAL"
	case frame.Float64:
		return "FLOAT"
	case frame.Int32:
		return "INT"
	case frame.Int64:
		return "BIGINT"
	case frame.Bool:
		return "BIT"
	case frame.Date:
		return "DATE"
	case frame.Datetime:
		return "DATETIMEOFFSET"
	default:
		return "NVARCHAR(MAX)"
	}
}

// CreateTableSQL implements storage.Dialect. T-SQL has no CREATE TABLE IF NOT
// EXISTS, so the statement is guarded by OBJECT_ID:
//
//	IF OBJECT_ID(N'[dbo].[t]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [dbo].[t] (
//	    [col] TYPE
//	  );
//	END;
func (Dialect) CreateTableSQL(table string, fields []frame.Field) (string, error) {
	fqn := strings.TrimSpace(table)
	if fqn == "" {
		return "", fmt.Errorf("mssql ddl: table name must not be empty")
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("mssql ddl: at least one column is required")
	}
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return "", fmt.Errorf("mssql ddl: column with empty name in table %s", fqn)
		}
		cols = append(cols, msIdent(f.Name)+" "+SQLType(f.DType))
	}
	quoted := msFQN(fqn)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		strings.ReplaceAll(quoted, "'", "''"),
		quoted,
		strings.Join(cols, ",\n    "),
	), nil
}

// TruncateSQL implements storage.Dialect.
func (Dialect) TruncateSQL(table string) string { return "TRUNCATE TABLE " + msFQN(table) }

// msIdent quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.events" to
// "[dbo].[events]". Empty segments are dropped.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, msIdent(p))
	}
	return strings.Join(out, ".")
}
