// Package stats holds the pure statistics used by the cleaning stages.
// Callers pass only non-null values.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean of xs. ok is false when xs is empty.
func Mean(xs []float64) (mean float64, ok bool) {
	if len(xs) == 0 {
		return 0, false
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true
}

// Sorted returns a sorted copy of xs.
func Sorted(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// Quantile returns the q-th quantile (0 <= q <= 1) of an already sorted slice
// using linear interpolation between the two closest ranks, rank = q*(n-1).
// ok is false when sorted is empty or q is outside [0,1].
func Quantile(sorted []float64, q float64) (v float64, ok bool) {
	n := len(sorted)
	if n == 0 || q < 0 || q > 1 || math.IsNaN(q) {
		return 0, false
	}
	if n == 1 {
		return sorted[0], true
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo], true
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), true
}

// Median is Quantile(sorted, 0.5).
func Median(sorted []float64) (float64, bool) {
	return Quantile(sorted, 0.5)
}

// IQRBounds returns [q1 - factor*iqr, q3 + factor*iqr] for a sorted slice.
func IQRBounds(sorted []float64, factor float64) (lower, upper float64, ok bool) {
	q1, ok1 := Quantile(sorted, 0.25)
	q3, ok3 := Quantile(sorted, 0.75)
	if !ok1 || !ok3 {
		return 0, 0, false
	}
	iqr := q3 - q1
	return q1 - factor*iqr, q3 + factor*iqr, true
}

// Counts tallies occurrences of each value.
func Counts(values []string) map[string]int {
	out := make(map[string]int, len(values))
	for _, v := range values {
		out[v]++
	}
	return out
}

// Mode returns the most frequent value. Ties resolve to the smallest value in
// byte-wise sorted order, so the result never depends on input order.
func Mode(values []string) (mode string, ok bool) {
	if len(values) == 0 {
		return "", false
	}
	best := -1
	for v, n := range Counts(values) {
		if n > best || (n == best && v < mode) {
			mode, best = v, n
		}
	}
	return mode, true
}

// Rare returns, in sorted order, the values whose count divided by total is
// strictly below minFraction. A non-positive total yields nil.
func Rare(counts map[string]int, total int, minFraction float64) []string {
	if total <= 0 {
		return nil
	}
	var out []string
	for v, n := range counts {
		if float64(n)/float64(total) < minFraction {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
