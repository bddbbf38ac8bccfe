package storage

import (
	"context"
	"fmt"

	"cleanse/internal/frame"

	"go.uber.org/zap"
)

// WriteOptions controls table preparation before a load.
type WriteOptions struct {
	AutoCreateTable bool
	Truncate        bool
	BatchSize       int
}

// Dialect renders the backend-specific DDL that runs before rows are copied.
type Dialect interface {
	// CreateTableSQL returns an idempotent CREATE TABLE for the schema.
	CreateTableSQL(table string, fields []frame.Field) (string, error)
	// TruncateSQL returns a statement that empties table.
	TruncateSQL(table string) string
}

// PrepareStatements returns the DDL to run before the load, in order.
func PrepareStatements(d Dialect, table string, fields []frame.Field, opts WriteOptions) ([]string, error) {
	var out []string
	if opts.AutoCreateTable && len(fields) > 0 {
		sql, err := d.CreateTableSQL(table, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, sql)
	}
	if opts.Truncate {
		out = append(out, d.TruncateSQL(table))
	}
	return out, nil
}

// WriteFrame prepares table per opts and copies every row of f through repo
// in batches. A frame without columns is skipped with a warning.
func WriteFrame(ctx context.Context, repo Repository, d Dialect, table string, f *frame.Frame, opts WriteOptions, log *zap.Logger) (int64, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if f.Width() == 0 {
		log.Warn("db_write_skipped", zap.String("reason", "frame has no columns"))
		return 0, nil
	}
	stmts, err := PrepareStatements(d, table, f.Schema(), opts)
	if err != nil {
		return 0, fmt.Errorf("prepare %s: %w", table, err)
	}
	for _, stmt := range stmts {
		if err := repo.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("prepare %s: %w", table, err)
		}
	}
	n, err := LoadFrame(ctx, f, opts.BatchSize, repo.CopyFrom, log)
	if err != nil {
		return n, err
	}
	log.Info("db_write", zap.Int64("rows", n), zap.Int("columns", f.Width()))
	return n, nil
}
