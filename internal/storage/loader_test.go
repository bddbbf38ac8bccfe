package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cleanse/internal/frame"

	"go.uber.org/zap/zaptest"
)

// TestLoadBatches_Basic verifies rows are grouped into batches and copyFn is
// called with the expected counts. It also checks the total equals the sum of
// all successful copyFn returns.
func TestLoadBatches_Basic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	columns := []string{"c1", "c2"}

	in := make(chan []any, 8)
	for i := 0; i < 7; i++ {
		in <- []any{i, "x"}
	}
	close(in)

	var calls int32
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		atomic.AddInt32(&calls, 1)
		return int64(len(rows)), nil
	}

	total, err := LoadBatches(ctx, columns, in, 3, copyFn, nil)
	if err != nil {
		t.Fatalf("LoadBatches error: %v", err)
	}
	if total != 7 {
		t.Fatalf("total rows %d, want 7", total)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("copyFn calls %d, want 3 (3+3+1)", got)
	}
}

// TestLoadBatches_ErrorPropagation ensures the first copy error is propagated
// and processing stops after that batch.
func TestLoadBatches_ErrorPropagation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	columns := []string{"c"}

	in := make(chan []any, 5)
	for i := 0; i < 5; i++ {
		in <- []any{i}
	}
	close(in)

	wantErr := errors.New("copy failed")
	var batches int
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		batches++
		if batches == 2 {
			return int64(len(rows)), wantErr
		}
		return int64(len(rows)), nil
	}

	total, err := LoadBatches(ctx, columns, in, 2, copyFn, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("want error %v, got %v", wantErr, err)
	}
	// Total must include rows from successful batches (at least the first 2).
	if total < 4 {
		t.Fatalf("total rows %d, want >= 4", total)
	}
}

// TestLoadBatches_ContextCancel checks the loader exits on context cancellation.
func TestLoadBatches_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	columns := []string{"c"}
	in := make(chan []any, 1)
	in <- []any{1}

	// copyFn sleeps to simulate slow I/O; cancel triggers early exit.
	copyFn := func(ctx context.Context, _ []string, rows [][]any) (int64, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(2 * time.Second):
			return int64(len(rows)), nil
		}
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := LoadBatches(ctx, columns, in, 2, copyFn, nil)
		errCh <- err
	}()

	cancel() // cancel promptly
	close(in)

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected cancellation error, got nil")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("LoadBatches did not return after context cancel")
	}
}

func testFrame(t *testing.T, n int) *frame.Frame {
	t.Helper()
	ids := make([]any, n)
	names := make([]any, n)
	for i := range ids {
		ids[i] = int64(i)
		if i%2 == 0 {
			names[i] = "even"
		}
	}
	f, err := frame.New(
		frame.MustColumn("id", frame.Int64, ids...),
		frame.MustColumn("name", frame.String, names...),
	)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

// TestLoadFrame_BatchesAllRows checks that every row reaches copyFn in column
// order and that batch sizes follow batchSize.
func TestLoadFrame_BatchesAllRows(t *testing.T) {
	t.Parallel()

	f := testFrame(t, 10)

	var mu sync.Mutex
	var sizes []int
	var got [][]any
	copyFn := func(_ context.Context, cols []string, rows [][]any) (int64, error) {
		if len(cols) != 2 || cols[0] != "id" || cols[1] != "name" {
			return 0, fmt.Errorf("columns = %v", cols)
		}
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(rows))
		for _, r := range rows {
			got = append(got, append([]any(nil), r...))
		}
		return int64(len(rows)), nil
	}

	total, err := LoadFrame(context.Background(), f, 4, copyFn, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("LoadFrame: %v", err)
	}
	if total != 10 {
		t.Fatalf("total = %d, want 10", total)
	}
	if fmt.Sprint(sizes) != "[4 4 2]" {
		t.Fatalf("batch sizes = %v, want [4 4 2]", sizes)
	}
	if got[3][0] != int64(3) || got[3][1] != nil || got[4][1] != "even" {
		t.Fatalf("rows out of order: %v", got[3:5])
	}
}

func TestLoadFrame_EmptyFrame(t *testing.T) {
	t.Parallel()

	var calls int32
	copyFn := func(context.Context, []string, [][]any) (int64, error) {
		atomic.AddInt32(&calls, 1)
		return 0, nil
	}
	total, err := LoadFrame(context.Background(), testFrame(t, 0), 0, copyFn, nil)
	if err != nil || total != 0 {
		t.Fatalf("LoadFrame = (%d, %v), want (0, nil)", total, err)
	}
	if calls != 0 {
		t.Fatalf("copyFn called %d times for empty frame", calls)
	}
}

// TestLoadFrame_CopyErrorStopsProducer ensures a failing sink does not leave
// the producer goroutine blocked.
func TestLoadFrame_CopyErrorStopsProducer(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("copy failed")
	copyFn := func(context.Context, []string, [][]any) (int64, error) { return 0, wantErr }

	done := make(chan error, 1)
	go func() {
		_, err := LoadFrame(context.Background(), testFrame(t, 50_000), 10, copyFn, nil)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Fatalf("err = %v, want %v", err, wantErr)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("LoadFrame did not return after copy error")
	}
}
