package storage

import "context"

// Repository is a bulk sink bound to one destination table.
type Repository interface {
	// CopyFrom inserts rows aligned to columns and reports the rows written.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs a statement that returns no rows (DDL, TRUNCATE).
	Exec(ctx context.Context, sql string) error
	Close()
}
