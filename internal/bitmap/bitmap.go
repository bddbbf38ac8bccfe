// Package bitmap provides a fixed-size bitset over row positions. The frame
// engine uses it as the selection mask when filtering rows.
package bitmap

import "math/bits"

// Bitmap is a bitset of n positions [0, n), backed by 64-bit words.
type Bitmap struct {
	data []uint64
	n    int
}

// New allocates a bitmap for positions [0, n). If n <= 0 the bitmap is empty.
func New(n int) *Bitmap {
	if n <= 0 {
		return &Bitmap{}
	}
	return &Bitmap{data: make([]uint64, (n+63)/64), n: n}
}

// Full returns a bitmap of n positions with every bit set.
func Full(n int) *Bitmap {
	b := New(n)
	for i := range b.data {
		b.data[i] = ^uint64(0)
	}
	if r := n % 64; r != 0 && len(b.data) > 0 {
		b.data[len(b.data)-1] = (1 << uint(r)) - 1
	}
	return b
}

// Len returns the number of positions the bitmap covers.
func (b *Bitmap) Len() int { return b.n }

// Set sets bit i. Out-of-range positions are ignored.
func (b *Bitmap) Set(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.data[i>>6] |= 1 << uint(i&63)
}

// Clear clears bit i. Out-of-range positions are ignored.
func (b *Bitmap) Clear(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.data[i>>6] &^= 1 << uint(i&63)
}

// Has reports whether bit i is set. Out-of-range positions report false.
func (b *Bitmap) Has(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.data[i>>6]&(1<<uint(i&63)) != 0
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b.data {
		n += bits.OnesCount64(w)
	}
	return n
}

// Each calls fn for every set position in ascending order.
func (b *Bitmap) Each(fn func(i int)) {
	for wi, w := range b.data {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			fn(wi<<6 + tz)
			w &= w - 1
		}
	}
}
