// Package output writes a cleaned frame as CSV and an audit record as JSON,
// to a file path or to stdout for "-".
package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cleanse/internal/audit"
	"cleanse/internal/frame"

	jsoniter "github.com/json-iterator/go"
)

// Stdout is the path that selects standard output.
const Stdout = "-"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteCSV writes f with a header row. Nulls become empty cells; dates are
// written as 2006-01-02 and datetimes as RFC 3339 with nanoseconds.
func WriteCSV(w io.Writer, f *frame.Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Names()); err != nil {
		return err
	}
	fields := f.Schema()
	rec := make([]string, len(fields))
	for i := 0; i < f.Height(); i++ {
		for j, v := range f.Row(i) {
			rec[j] = FormatCell(v, fields[j].DType)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCell renders one cell as text.
func FormatCell(v any, dt frame.DType) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		bits := 64
		if dt == frame.Float32 {
			bits = 32
		}
		return strconv.FormatFloat(x, 'f', -1, bits)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if dt == frame.Date {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// WriteCSVFile writes f to path, or to stdout for "-".
func WriteCSVFile(path string, f *frame.Frame) error {
	return writeTo(path, func(w io.Writer) error { return WriteCSV(w, f) })
}

// WriteAudit writes rec as indented JSON followed by a newline.
func WriteAudit(w io.Writer, rec audit.Record) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode audit: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// WriteAuditFile writes rec to path, or to stdout for "-".
func WriteAuditFile(path string, rec audit.Record) error {
	return writeTo(path, func(w io.Writer) error { return WriteAudit(w, rec) })
}

// ReadAudit decodes a record written by WriteAudit.
func ReadAudit(r io.Reader) (audit.Record, error) {
	var rec audit.Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return rec, fmt.Errorf("decode audit: %w", err)
	}
	return rec, nil
}

// writeTo writes through a temporary file in the target directory and renames
// it into place, so readers never observe a partial file.
func writeTo(path string, fn func(io.Writer) error) error {
	if path == Stdout {
		bw := bufio.NewWriter(os.Stdout)
		if err := fn(bw); err != nil {
			return err
		}
		return bw.Flush()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := fn(bw); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
