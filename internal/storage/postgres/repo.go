// Package postgres reads source frames from and writes cleaned frames to
// Postgres using pgx v5. Writes go through COPY in batches.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cleanse/internal/frame"
	"cleanse/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config holds sink configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // target table, optionally schema-qualified, e.g. "public.tx_clean"
}

// Repository is a Postgres-backed storage.Repository bound to one table.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
	log  *zap.Logger
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository opens a pool for cfg.DSN. Call Close when done.
func NewRepository(ctx context.Context, cfg Config, log *zap.Logger) (*Repository, error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, errors.New("postgres: table must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{pool: pool, cfg: cfg, log: log.With(zap.String("table", cfg.Table))}, nil
}

// Pool exposes the underlying pool, e.g. for ReadFrame against the same
// database.
func (r *Repository) Pool() *pgxpool.Pool { return r.pool }

// Close releases the pool.
func (r *Repository) Close() { r.pool.Close() }

// CopyFrom COPYs rows into the configured table.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	n, err := r.pool.CopyFrom(ctx, splitFQN(r.cfg.Table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return n, fmt.Errorf("copy into %s: %s (%s): %w", r.cfg.Table, pgErr.Detail, pgErr.SQLState(), err)
		}
		return n, fmt.Errorf("copy into %s: %w", r.cfg.Table, err)
	}
	return n, nil
}

// Exec runs sql on the pool.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

// WriteFrame prepares the table per opts and COPYs every row of f.
func (r *Repository) WriteFrame(ctx context.Context, f *frame.Frame, opts storage.WriteOptions) (int64, error) {
	return storage.WriteFrame(ctx, r, Dialect{}, r.cfg.Table, f, opts, r.log)
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
