package csv

import "strings"

const utf8BOM = "\uFEFF"

// StripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func StripHeaderBOM(headers []string) []string {
	if len(headers) == 0 {
		return headers
	}
	headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	return headers
}

// hasEdgeSpace reports whether s starts or ends with ASCII whitespace. It lets
// the hot path skip strings.TrimSpace for the common clean cell.
func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isASCIISpace(s[0]) || isASCIISpace(s[len(s)-1])
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}
