package csv

import (
	"io"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// unicodeCleaner composes text to NFC and maps no-break and narrow no-break
// spaces to a plain space, so "Café" typed two ways groups as one category.
func unicodeCleaner() transform.Transformer {
	return transform.Chain(
		norm.NFC,
		runes.Map(func(r rune) rune {
			switch r {
			case '\u00A0', '\u2007', '\u202F':
				return ' '
			}
			return r
		}),
	)
}

func normalizeReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicodeCleaner())
}

// NormalizeString applies the same normalization as the reader to a single
// value.
func NormalizeString(s string) string {
	out, _, err := transform.String(unicodeCleaner(), s)
	if err != nil {
		return s
	}
	return out
}
