package csv

import (
	"bufio"
	"bytes"
	"io"
)

// streamingRewriter is an io.Reader that performs a streaming, rolling
// find/replace: it replaces all occurrences of pat with repl without buffering
// the entire stream. To match sequences that span chunk boundaries it retains
// the last len(pat)-1 bytes (carry) of each block and prepends them to the
// next one.
type streamingRewriter struct {
	br    *bufio.Reader
	pat   []byte
	repl  []byte
	chunk []byte
	carry []byte       // last len(pat)-1 bytes retained between reads
	buf   bytes.Buffer // pending output to satisfy Read
	eof   bool
}

// newStreamingRewriter wraps r with a rewriter that replaces pat with repl.
func newStreamingRewriter(r io.Reader, pat, repl []byte) *streamingRewriter {
	capacity := 0
	if n := len(pat) - 1; n > 0 {
		capacity = n
	}
	return &streamingRewriter{
		br:    bufio.NewReaderSize(r, 64*1024),
		pat:   pat,
		repl:  repl,
		chunk: make([]byte, 64*1024),
		carry: make([]byte, 0, capacity),
	}
}

// Read fills p from the internal buffer; when empty, it reads the next chunk,
// rewrites it and withholds the trailing carry. On EOF the carry is flushed.
func (sr *streamingRewriter) Read(p []byte) (int, error) {
	for {
		if sr.buf.Len() > 0 {
			return sr.buf.Read(p)
		}
		if sr.eof {
			return 0, io.EOF
		}

		n, rerr := sr.br.Read(sr.chunk)
		if n > 0 {
			block := sr.chunk[:n]
			if len(sr.carry) > 0 {
				joined := make([]byte, 0, len(sr.carry)+len(block))
				joined = append(joined, sr.carry...)
				block = append(joined, block...)
			}
			if len(sr.pat) > 0 && !bytes.Equal(sr.pat, sr.repl) {
				block = bytes.ReplaceAll(block, sr.pat, sr.repl)
			}

			k := len(sr.pat) - 1
			if k < 0 {
				k = 0
			}
			if len(block) > k {
				sr.buf.Write(block[:len(block)-k])
				sr.carry = append(sr.carry[:0], block[len(block)-k:]...)
			} else {
				sr.carry = append(sr.carry[:0], block...)
			}
		}

		if rerr == io.EOF {
			if len(sr.carry) > 0 {
				sr.buf.Write(sr.carry)
				sr.carry = sr.carry[:0]
			}
			sr.eof = true
		} else if rerr != nil {
			return 0, rerr
		}
	}
}
