// Package file implements a local filesystem-backed data source.
package file

import (
	"context"
	"fmt"
	"io"
	"os"

	"cleanse/internal/datasource"
)

// Stdin is the path that selects standard input instead of a file.
const Stdin = "-"

var _ datasource.Source = (*Local)(nil)

// Local opens a path on local disk, or standard input for "-".
type Local struct {
	path  string
	stdin io.Reader
}

// NewLocal returns a Local data source bound to path. It is safe for
// concurrent use as long as the path is valid for concurrent reads.
func NewLocal(path string) *Local { return &Local{path: path, stdin: os.Stdin} }

// Path returns the configured path.
func (l *Local) Path() string { return l.path }

// Open opens the configured path for reading.
//
// A context that is already done returns its error without touching the
// filesystem. Filesystem errors are wrapped with the path and still satisfy
// errors.Is checks such as os.ErrNotExist. Closing the reader returned for
// Stdin does not close standard input.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if l.path == Stdin {
		return io.NopCloser(l.stdin), nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
