// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the pure-Go modernc driver. SQLite has no bulk-load API
// like COPY, so each batch is a prepared INSERT inside one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cleanse/internal/frame"
	"cleanse/internal/storage"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Config holds sink configuration.
type Config struct {
	// DSN is a file path or URI, e.g. "out/clean.db" or
	// "file:clean.db?_pragma=busy_timeout(5000)".
	DSN string

	// Table is the target table. "main.t" style names are quoted per segment.
	Table string
}

// Repository is a SQLite-backed storage.Repository bound to one table.
type Repository struct {
	db  *sql.DB
	cfg Config
	log *zap.Logger
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository opens and pings the database. Call Close when done.
func NewRepository(ctx context.Context, cfg Config, log *zap.Logger) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlite: DSN must not be empty")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, errors.New("sqlite: table must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{db: db, cfg: cfg, log: log.With(zap.String("table", cfg.Table))}, nil
}

// DB exposes the underlying handle.
func (r *Repository) DB() *sql.DB { return r.db }

// Close closes the database.
func (r *Repository) Close() { _ = r.db.Close() }

// CopyFrom inserts rows in a single transaction with a prepared statement.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, errors.New("sqlite: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(r.cfg.Table, columns))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for i, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// Exec runs a statement that returns no rows.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// WriteFrame prepares the table per opts and inserts every row of f.
func (r *Repository) WriteFrame(ctx context.Context, f *frame.Frame, opts storage.WriteOptions) (int64, error) {
	return storage.WriteFrame(ctx, r, Dialect{}, r.cfg.Table, f, opts, r.log)
}

func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteFQN(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}
