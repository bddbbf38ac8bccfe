package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"cleanse/internal/frame"
	"cleanse/internal/storage"

	"go.uber.org/zap/zaptest"
)

func TestSQLType(t *testing.T) {
	t.Parallel()

	cases := map[frame.DType]string{
		frame.String:   "TEXT",
		frame.Int32:    "INTEGER",
		frame.Int64:    "INTEGER",
		frame.Bool:     "INTEGER",
		frame.Float32:  "REAL",
		frame.Float64:  "REAL",
		frame.Date:     "TEXT",
		frame.Datetime: "TEXT",
	}
	for dt, want := range cases {
		if got := SQLType(dt); got != want {
			t.Errorf("SQLType(%v) = %q, want %q", dt, got, want)
		}
	}
}

func TestDialect(t *testing.T) {
	t.Parallel()

	got, err := Dialect{}.CreateTableSQL("main.clean", []frame.Field{
		{Name: "user_id", DType: frame.String},
		{Name: `we"ird`, DType: frame.Float64},
	})
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS \"main\".\"clean\" (\n  \"user_id\" TEXT,\n  \"we\"\"ird\" REAL\n);"
	if got != want {
		t.Fatalf("sql =\n%s\nwant\n%s", got, want)
	}

	if _, err := (Dialect{}).CreateTableSQL(" ", []frame.Field{{Name: "a"}}); err == nil {
		t.Fatal("expected error for empty table")
	}
	if _, err := (Dialect{}).CreateTableSQL("t", nil); err == nil {
		t.Fatal("expected error for no columns")
	}
	if got := (Dialect{}).TruncateSQL("clean"); got != `DELETE FROM "clean"` {
		t.Fatalf("TruncateSQL = %q", got)
	}
}

func TestNewRepository_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewRepository(context.Background(), Config{Table: "t"}, nil); err == nil {
		t.Fatal("expected error for empty DSN")
	}
	if _, err := NewRepository(context.Background(), Config{DSN: "x.db"}, nil); err == nil {
		t.Fatal("expected error for empty table")
	}
}

func TestWriteFrame_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "clean.db")

	repo, err := NewRepository(ctx, Config{DSN: dsn, Table: "clean"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer repo.Close()

	f := frame.MustNew(
		frame.MustColumn("user_id", frame.String, "u1", "u2", "u3"),
		frame.MustColumn("amount", frame.Float64, 10.5, nil, 30.0),
		frame.MustColumn("active", frame.Bool, true, false, true),
	)
	opts := storage.WriteOptions{AutoCreateTable: true, Truncate: true, BatchSize: 2}

	n, err := repo.WriteFrame(ctx, f, opts)
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if n != 3 {
		t.Fatalf("rows written = %d, want 3", n)
	}

	// A second write truncates first, so the table still holds one copy.
	if _, err := repo.WriteFrame(ctx, f, opts); err != nil {
		t.Fatalf("second WriteFrame: %v", err)
	}

	var count int
	if err := repo.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM "clean"`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	var amount sql.NullFloat64
	var active int
	if err := repo.DB().QueryRowContext(ctx, `SELECT amount, active FROM "clean" WHERE user_id = 'u2'`).Scan(&amount, &active); err != nil {
		t.Fatalf("select: %v", err)
	}
	if amount.Valid || active != 0 {
		t.Fatalf("u2 = (%v, %d), want (NULL, 0)", amount, active)
	}
}

func TestCopyFrom_RowWidthMismatch(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRepository(ctx, Config{DSN: filepath.Join(t.TempDir(), "w.db"), Table: "t"}, nil)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer repo.Close()

	if err := repo.Exec(ctx, `CREATE TABLE "t" ("a" TEXT, "b" TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = repo.CopyFrom(ctx, []string{"a", "b"}, [][]any{{"x", "y"}, {"only"}})
	if err == nil || !strings.Contains(err.Error(), "has 1 values") {
		t.Fatalf("err = %v, want width mismatch", err)
	}

	var count int
	if err := repo.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM "t"`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d after rollback, want 0", count)
	}
}
