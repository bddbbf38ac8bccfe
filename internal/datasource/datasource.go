// Package datasource abstracts where raw input bytes come from. Implementations
// live in subpackages: file (local disk) and httpds (HTTP with retries).
package datasource

import (
	"context"
	"io"
)

// Source opens an input stream. The caller closes the returned reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
