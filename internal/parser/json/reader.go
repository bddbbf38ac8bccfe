// Package json reads newline-delimited JSON objects into a frame.
//
// Like the CSV reader, every column comes out as string: numbers keep their
// literal text, booleans become "true"/"false" and nested objects or arrays
// are kept as compact JSON. Coercion to the declared dtypes happens in the
// cleaning engine.
//
// Columns appear in first-seen order. Keys that first show up in the same
// record are added in sorted order. A record missing a key gets null there.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"cleanse/internal/config"
	"cleanse/internal/frame"
)

// Options configures Read.
type Options struct {
	// AllowArrays expands a top-level array of objects into records.
	AllowArrays bool

	// NullValues lists string values read as null. JSON null is always null.
	NullValues []string

	// NormalizeHeaders lowercases keys and replaces spaces with underscores.
	NormalizeHeaders bool
}

// OptionsFrom maps parser.options from a job file onto Options.
func OptionsFrom(o config.Options) Options {
	return Options{
		AllowArrays:      o.Bool("allow_arrays", false),
		NullValues:       o.StringSlice("null_values"),
		NormalizeHeaders: o.Bool("normalize_headers", false),
	}
}

// ErrNoRecords is returned when the input holds no JSON object.
var ErrNoRecords = errors.New("json: no records")

// Read decodes every top-level value in r. Values that are not objects are
// reported through onErr with their 1-based position in the stream and
// skipped. Malformed JSON aborts the read since the decoder cannot resync.
func Read(ctx context.Context, r io.Reader, opt Options, onErr func(pos int, err error)) (*frame.Frame, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	b := &builder{
		index: make(map[string]int),
		nulls: make(map[string]struct{}, len(opt.NullValues)),
		opt:   opt,
	}
	for _, v := range opt.NullValues {
		b.nulls[v] = struct{}{}
	}

	report := func(pos int, err error) {
		if onErr != nil {
			onErr(pos, err)
		}
	}

	pos := 0
	for {
		if pos%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var raw any
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		pos++
		if err != nil {
			return nil, fmt.Errorf("json: decode value %d: %w", pos, err)
		}

		switch v := raw.(type) {
		case map[string]any:
			if err := b.add(v); err != nil {
				return nil, err
			}
		case []any:
			if !opt.AllowArrays {
				report(pos, fmt.Errorf("top-level array skipped (allow_arrays is false)"))
				continue
			}
			for i, elem := range v {
				obj, ok := elem.(map[string]any)
				if !ok {
					report(pos, fmt.Errorf("array element %d is %T, not an object", i, elem))
					continue
				}
				if err := b.add(obj); err != nil {
					return nil, err
				}
			}
		default:
			report(pos, fmt.Errorf("top-level %T skipped, want an object", raw))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.rows == 0 {
		return nil, ErrNoRecords
	}
	return b.frame()
}

type builder struct {
	names []string
	index map[string]int
	cols  [][]any
	rows  int
	nulls map[string]struct{}
	opt   Options
}

func (b *builder) add(obj map[string]any) error {
	var fresh []string
	for k := range obj {
		if _, ok := b.index[b.key(k)]; !ok {
			fresh = append(fresh, b.key(k))
		}
	}
	sort.Strings(fresh)
	for _, k := range fresh {
		if _, ok := b.index[k]; ok {
			continue
		}
		b.index[k] = len(b.names)
		b.names = append(b.names, k)
		b.cols = append(b.cols, make([]any, b.rows, b.rows+1))
	}

	row := make([]any, len(b.names))
	for k, v := range obj {
		c, err := b.cell(v)
		if err != nil {
			return fmt.Errorf("json: record %d field %q: %w", b.rows+1, k, err)
		}
		row[b.index[b.key(k)]] = c
	}
	for i, v := range row {
		b.cols[i] = append(b.cols[i], v)
	}
	b.rows++
	return nil
}

func (b *builder) key(k string) string {
	if !b.opt.NormalizeHeaders {
		return k
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), " ", "_")
}

func (b *builder) cell(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if x == "" {
			return nil, nil
		}
		if _, ok := b.nulls[x]; ok {
			return nil, nil
		}
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case json.Number:
		return x.String(), nil
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	}
}

func (b *builder) frame() (*frame.Frame, error) {
	out := make([]*frame.Column, len(b.names))
	for i, name := range b.names {
		c, err := frame.NewColumn(name, frame.String, b.cols[i])
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return frame.New(out...)
}
