// Package csv reads delimited text into a frame. Every column comes out as
// string; typing is left to the cleaning engine's coercion stage.
//
// The reader never fails on a bad data row: rows that do not parse or have the
// wrong width are reported through onErr and skipped. Only an unreadable
// header or a canceled context aborts the read.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"cleanse/internal/config"
	"cleanse/internal/frame"
)

// Options configures Read. The zero value reads comma-separated input with
// untouched cells and only the empty string as null.
type Options struct {
	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing ASCII spaces from each cell and header.
	TrimSpace bool

	// NormalizeUnicode composes text to NFC and maps no-break spaces to a
	// plain space before parsing.
	NormalizeUnicode bool

	// NullValues lists additional cell texts read as null ("NA", "NULL").
	// The empty cell is always null.
	NullValues []string

	// NormalizeHeaders lowercases header names and replaces spaces with
	// underscores.
	NormalizeHeaders bool

	// LazyQuotes relaxes quote handling (csv.Reader.LazyQuotes).
	LazyQuotes bool

	// StripNUL removes NUL bytes from the stream before parsing.
	StripNUL bool
}

// OptionsFrom maps parser.options from a job file onto Options.
func OptionsFrom(o config.Options) Options {
	return Options{
		Comma:            o.Rune("comma", ','),
		TrimSpace:        o.Bool("trim_space", true),
		NormalizeUnicode: o.Bool("normalize_unicode", false),
		NullValues:       o.StringSlice("null_values"),
		NormalizeHeaders: o.Bool("normalize_headers", false),
		LazyQuotes:       o.Bool("lazy_quotes", false),
		StripNUL:         o.Bool("strip_nul", false),
	}
}

// ErrNoHeader is returned when the input has no header row.
var ErrNoHeader = errors.New("csv: missing header row")

// Read consumes r and returns a frame with one string column per header cell.
// onErr, when non-nil, receives recoverable row errors with their 1-based line
// number; those rows are dropped.
func Read(ctx context.Context, r io.Reader, opt Options, onErr func(line int, err error)) (*frame.Frame, error) {
	if opt.StripNUL {
		r = newStreamingRewriter(r, []byte{0}, nil)
	}
	if opt.NormalizeUnicode {
		r = normalizeReader(r)
	}

	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // width is enforced below

	nulls := make(map[string]struct{}, len(opt.NullValues))
	for _, v := range opt.NullValues {
		nulls[v] = struct{}{}
	}

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	headers := normalizeHeaders(hdr, opt)

	cols := make([][]any, len(headers))
	line := 1
	for {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, fmt.Errorf("read csv: %w", err)
			}
			if onErr != nil {
				onErr(line, fmt.Errorf("parse: %w", err))
			}
			continue
		}
		if len(rec) != len(headers) {
			if onErr != nil {
				onErr(line, fmt.Errorf("incorrect number of fields: expected %d, got %d", len(headers), len(rec)))
			}
			continue
		}

		for i, v := range rec {
			if opt.TrimSpace && hasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			cols[i] = append(cols[i], cell(v, nulls))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*frame.Column, len(headers))
	for i, name := range headers {
		c, err := frame.NewColumn(name, frame.String, cols[i])
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return frame.New(out...)
}

// cell maps empty and configured null texts to nil.
func cell(v string, nulls map[string]struct{}) any {
	if v == "" {
		return nil
	}
	if _, ok := nulls[v]; ok {
		return nil
	}
	return v
}

// normalizeHeaders copies the header record (csv.Reader reuses it), strips the
// BOM, and synthesizes "col_N" for blank cells.
func normalizeHeaders(h []string, opt Options) []string {
	res := StripHeaderBOM(append([]string(nil), h...))
	for i, c := range res {
		if opt.TrimSpace {
			c = strings.TrimSpace(c)
		}
		if opt.NormalizeHeaders {
			c = strings.ReplaceAll(strings.ToLower(c), " ", "_")
		}
		if c == "" {
			c = fmt.Sprintf("col_%d", i)
		}
		res[i] = c
	}
	return res
}
