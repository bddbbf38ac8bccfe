package postgres

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"cleanse/internal/frame"
	"cleanse/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

// TestQuoteIdent verifies identifier quoting and escaping.
func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"name", `"name"`},
		{"", `""`},
		{"user name", `"user name"`},
		{`weird"name`, `"weird""name"`},
	}
	for _, tt := range tests {
		if got := quoteIdent(tt.in); got != tt.want {
			t.Fatalf("quoteIdent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestQuoteFQN verifies quoting and splitting of schema-qualified names.
func TestQuoteFQN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"users", `"users"`},
		{"public.users", `"public"."users"`},
		{".public..users.", `"public"."users"`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := quoteFQN(tt.in); got != tt.want {
			t.Fatalf("quoteFQN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if id := splitFQN("public.tx"); len(id) != 2 || id[0] != "public" || id[1] != "tx" {
		t.Fatalf("splitFQN = %v", id)
	}
}

func TestBuildCreateTableSQL_FromSchema(t *testing.T) {
	t.Parallel()

	fields := []frame.Field{
		{Name: "user_id", DType: frame.Int64},
		{Name: "amount", DType: frame.Float64},
		{Name: "score", DType: frame.Float32},
		{Name: "qty", DType: frame.Int32},
		{Name: "is_new", DType: frame.Bool},
		{Name: "signup_date", DType: frame.Date},
		{Name: "ts", DType: frame.Datetime},
		{Name: "country", DType: frame.String},
	}
	got, err := BuildCreateTableSQL(TableFromSchema("public.tx_clean", fields))
	if err != nil {
		t.Fatalf("BuildCreateTableSQL: %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "public"."tx_clean" (
  "user_id" BIGINT,
  "amount" DOUBLE PRECISION,
  "score" REAL,
  "qty" INTEGER,
  "is_new" BOOLEAN,
  "signup_date" DATE,
  "ts" TIMESTAMPTZ,
  "country" TEXT
);`
	if got != want {
		t.Fatalf("SQL mismatch:\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildCreateTableSQL_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		def  TableDef
	}{
		{"empty_fqn", TableDef{FQN: "  ", Columns: []ColumnDef{{Name: "id", SQLType: "BIGINT"}}}},
		{"no_columns", TableDef{FQN: "public.t"}},
		{"empty_name", TableDef{FQN: "public.t", Columns: []ColumnDef{{Name: " ", SQLType: "TEXT"}}}},
		{"empty_type", TableDef{FQN: "public.t", Columns: []ColumnDef{{Name: "id"}}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildCreateTableSQL(tt.def); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}

	sql, err := BuildCreateTableSQL(TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id", SQLType: "BIGINT"}}})
	if err != nil || !strings.Contains(sql, `"id" BIGINT NOT NULL`) {
		t.Fatalf("non-nullable column rendered as %q (err %v)", sql, err)
	}
}

func TestDialect(t *testing.T) {
	t.Parallel()

	fields := []frame.Field{{Name: "a", DType: frame.String}}

	got, err := storage.PrepareStatements(Dialect{}, "public.t", fields, storage.WriteOptions{AutoCreateTable: true, Truncate: true})
	if err != nil {
		t.Fatalf("PrepareStatements: %v", err)
	}
	if len(got) != 2 || !strings.HasPrefix(got[0], "CREATE TABLE IF NOT EXISTS") || got[1] != `TRUNCATE TABLE "public"."t"` {
		t.Fatalf("statements = %q", got)
	}
}

// fakeRepo records statements and copied rows.
type fakeRepo struct {
	execs  []string
	rows   [][]any
	cols   []string
	execFn func(string) error
}

func (f *fakeRepo) CopyFrom(_ context.Context, columns []string, rows [][]any) (int64, error) {
	f.cols = columns
	for _, r := range rows {
		f.rows = append(f.rows, append([]any(nil), r...))
	}
	return int64(len(rows)), nil
}

func (f *fakeRepo) Exec(_ context.Context, sql string) error {
	f.execs = append(f.execs, sql)
	if f.execFn != nil {
		return f.execFn(sql)
	}
	return nil
}

func (f *fakeRepo) Close() {}

func TestWriteFrame(t *testing.T) {
	t.Parallel()

	f := frame.MustNew(
		frame.MustColumn("id", frame.Int64, 1, 2, 3),
		frame.MustColumn("name", frame.String, "a", nil, "c"),
	)
	repo := &fakeRepo{}
	n, err := storage.WriteFrame(context.Background(), repo, Dialect{}, "public.t", f, storage.WriteOptions{AutoCreateTable: true, BatchSize: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if n != 3 || len(repo.rows) != 3 {
		t.Fatalf("rows written = %d (%d recorded), want 3", n, len(repo.rows))
	}
	if len(repo.execs) != 1 || !strings.Contains(repo.execs[0], `"name" TEXT`) {
		t.Fatalf("execs = %q", repo.execs)
	}
	if repo.cols[0] != "id" || repo.rows[1][1] != nil {
		t.Fatalf("cols=%v rows=%v", repo.cols, repo.rows)
	}

	boom := errors.New("permission denied")
	bad := &fakeRepo{execFn: func(string) error { return boom }}
	if _, err := storage.WriteFrame(context.Background(), bad, Dialect{}, "t", f, storage.WriteOptions{Truncate: true}, zap.NewNop()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(bad.rows) != 0 {
		t.Fatal("rows copied after failed prepare")
	}

	empty := &fakeRepo{}
	if n, err := storage.WriteFrame(context.Background(), empty, Dialect{}, "t", frame.MustNew(), storage.WriteOptions{AutoCreateTable: true}, zap.NewNop()); err != nil || n != 0 || len(empty.execs) != 0 {
		t.Fatalf("zero-width write = (%d, %v), execs %v", n, err, empty.execs)
	}
}

func TestDTypeForOID(t *testing.T) {
	t.Parallel()

	tests := map[uint32]frame.DType{
		pgtype.Int2OID:        frame.Int32,
		pgtype.Int4OID:        frame.Int32,
		pgtype.Int8OID:        frame.Int64,
		pgtype.Float4OID:      frame.Float32,
		pgtype.Float8OID:      frame.Float64,
		pgtype.NumericOID:     frame.Float64,
		pgtype.BoolOID:        frame.Bool,
		pgtype.DateOID:        frame.Date,
		pgtype.TimestamptzOID: frame.Datetime,
		pgtype.TextOID:        frame.String,
		pgtype.UUIDOID:        frame.String,
		pgtype.JSONBOID:       frame.String,
	}
	for oid, want := range tests {
		if got := DTypeForOID(oid); got != want {
			t.Fatalf("DTypeForOID(%d) = %s, want %s", oid, got, want)
		}
	}
}

// fakeRows is an in-memory pgx.Rows.
type fakeRows struct {
	fields []pgconn.FieldDescription
	data   [][]any
	i      int
	err    error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakeRows) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Scan(...any) error      { return errors.New("not implemented") }
func (r *fakeRows) Values() ([]any, error) { return r.data[r.i-1], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeQuerier struct {
	rows *fakeRows
	err  error
}

func (q fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

func TestReadFrame(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id := [16]byte{0x12, 0x34}
	rows := &fakeRows{
		fields: []pgconn.FieldDescription{
			{Name: "qty", DataTypeOID: pgtype.Int2OID},
			{Name: "amount", DataTypeOID: pgtype.NumericOID},
			{Name: "ts", DataTypeOID: pgtype.TimestamptzOID},
			{Name: "ref", DataTypeOID: pgtype.UUIDOID},
			{Name: "note", DataTypeOID: pgtype.TextOID},
		},
		data: [][]any{
			{int16(3), pgtype.Numeric{Int: big.NewInt(1250), Exp: -2, Valid: true}, ts, id, "x"},
			{nil, nil, nil, nil, nil},
		},
	}

	f, err := ReadFrame(context.Background(), fakeQuerier{rows: rows}, "select 1")
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Height() != 2 || f.Width() != 5 {
		t.Fatalf("shape = %dx%d, want 2x5", f.Height(), f.Width())
	}
	row := f.Row(0)
	if row[0] != int64(3) || row[1] != 12.5 || !row[2].(time.Time).Equal(ts) || row[4] != "x" {
		t.Fatalf("row 0 = %#v", row)
	}
	if !strings.HasPrefix(row[3].(string), "12340000-") {
		t.Fatalf("uuid = %v", row[3])
	}
	if c, _ := f.Column("qty"); c.DType() != frame.Int32 || c.NullCount() != 1 {
		t.Fatalf("qty column = %s nulls=%d", c.DType(), c.NullCount())
	}

	if _, err := ReadFrame(context.Background(), fakeQuerier{err: errors.New("down")}, "select 1"); err == nil {
		t.Fatal("expected query error")
	}
	failing := &fakeRows{fields: rows.fields[:1], err: errors.New("conn reset")}
	if _, err := ReadFrame(context.Background(), fakeQuerier{rows: failing}, "select 1"); err == nil || !strings.Contains(err.Error(), "conn reset") {
		t.Fatalf("rows error = %v", err)
	}
}
