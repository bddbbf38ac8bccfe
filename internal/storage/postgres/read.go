package postgres

import (
	"context"
	"fmt"
	"time"

	"cleanse/internal/frame"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ReadFrame runs query and materializes the result as a frame. Column types
// follow the result's type OIDs; types without an engine equivalent are read
// as text.
func ReadFrame(ctx context.Context, q Querier, query string, args ...any) (*frame.Frame, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query: %w", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	types := make([]frame.DType, len(fds))
	cols := make([][]any, len(fds))
	for i, fd := range fds {
		types[i] = DTypeForOID(fd.DataTypeOID)
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres scan: %w", err)
		}
		for i, v := range vals {
			cv, err := convertValue(v, types[i])
			if err != nil {
				return nil, fmt.Errorf("postgres column %q: %w", fds[i].Name, err)
			}
			cols[i] = append(cols[i], cv)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres rows: %w", err)
	}

	out := make([]*frame.Column, len(fds))
	for i, fd := range fds {
		c, err := frame.NewColumn(fd.Name, types[i], cols[i])
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return frame.New(out...)
}

// DTypeForOID maps a Postgres type OID to an engine column type.
func DTypeForOID(oid uint32) frame.DType {
	switch oid {
	case pgtype.Int2OID, pgtype.Int4OID:
		return frame.Int32
	case pgtype.Int8OID:
		return frame.Int64
	case pgtype.Float4OID:
		return frame.Float32
	case pgtype.Float8OID, pgtype.NumericOID:
		return frame.Float64
	case pgtype.BoolOID:
		return frame.Bool
	case pgtype.DateOID:
		return frame.Date
	case pgtype.TimestampOID, pgtype.TimestamptzOID:
		return frame.Datetime
	default:
		return frame.String
	}
}

// convertValue turns a pgx-decoded value into the cell representation frame
// expects for dt.
func convertValue(v any, dt frame.DType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case int16:
		return int64(x), nil
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil {
			return nil, err
		}
		if !f.Valid {
			return nil, nil
		}
		return f.Float64, nil
	case time.Time:
		return x, nil
	}

	if dt != frame.String {
		return v, nil
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case [16]byte:
		return uuid.UUID(x).String(), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return fmt.Sprint(x), nil
	}
}
