package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	m, ok := Mean([]float64{100, -5, 50})
	require.True(t, ok)
	assert.InDelta(t, 48.333333, m, 1e-5)

	_, ok = Mean(nil)
	assert.False(t, ok)
}

func TestQuantile_LinearInterpolation(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		q    float64
		want float64
	}{
		{"median_odd", []float64{-5, 50, 100}, 0.5, 50},
		{"median_even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"q1_four", []float64{1, 2, 3, 4}, 0.25, 1.75},
		{"q3_four", []float64{1, 2, 3, 4}, 0.75, 3.25},
		{"min", []float64{3, 7, 9}, 0, 3},
		{"max", []float64{3, 7, 9}, 1, 9},
		{"single", []float64{42}, 0.25, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Quantile(tt.in, tt.q)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestQuantile_Invalid(t *testing.T) {
	_, ok := Quantile(nil, 0.5)
	assert.False(t, ok)
	_, ok = Quantile([]float64{1}, 1.5)
	assert.False(t, ok)
	_, ok = Quantile([]float64{1}, math.NaN())
	assert.False(t, ok)
}

func TestSorted_DoesNotMutate(t *testing.T) {
	in := []float64{3, 1, 2}
	out := Sorted(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
	assert.Equal(t, []float64{1, 2, 3}, out)
}

func TestIQRBounds(t *testing.T) {
	lo, hi, ok := IQRBounds([]float64{1, 2, 3, 4}, 1.5)
	require.True(t, ok)
	// q1=1.75 q3=3.25 iqr=1.5
	assert.InDelta(t, -0.5, lo, 1e-9)
	assert.InDelta(t, 5.5, hi, 1e-9)
}

// The tie-break picks the smallest value in sorted order regardless of the
// order values were seen in.
func TestMode_TieBreakSmallestSorted(t *testing.T) {
	got, ok := Mode([]string{"US", "DE", "DE", "US", "FR"})
	require.True(t, ok)
	assert.Equal(t, "DE", got)

	got, _ = Mode([]string{"b", "a"})
	assert.Equal(t, "a", got)

	got, _ = Mode([]string{"US", "DE", "US"})
	assert.Equal(t, "US", got)

	_, ok = Mode(nil)
	assert.False(t, ok)
}

func TestRare(t *testing.T) {
	counts := map[string]int{"a": 90, "b": 5, "c": 5}
	assert.Equal(t, []string{"b", "c"}, Rare(counts, 100, 0.06))
	assert.Empty(t, Rare(counts, 100, 0.05), "exactly at threshold is not rare")
	assert.Nil(t, Rare(counts, 0, 0.5))
}
