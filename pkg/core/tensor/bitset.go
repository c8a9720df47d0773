package tensor

// BitSet is a fixed-size set of node indices, one bit per node.
type BitSet struct {
	buckets []uint64
	size    int
}

// NewBitSet creates an empty set able to hold indices in [0, size).
func NewBitSet(size int) *BitSet {
	numBuckets := (size >> 6) + 1 // >> 6 == / 64
	return &BitSet{
		buckets: make([]uint64, numBuckets),
		size:    size,
	}
}

// Len returns the number of addressable indices.
func (bs *BitSet) Len() int { return bs.size }

// Set marks n as present. Out-of-range indices are ignored.
func (bs *BitSet) Set(n int, v bool) {
	if n < 0 || n >= bs.size {
		return
	}
	// n & 63 == n % 64
	if v {
		bs.buckets[n>>6] |= 1 << (uint(n) & 63)
	} else {
		bs.buckets[n>>6] &^= 1 << (uint(n) & 63)
	}
}

// Has reports whether n is present.
func (bs *BitSet) Has(n int) bool {
	if n < 0 || n >= bs.size {
		return false
	}
	return (bs.buckets[n>>6] & (1 << (uint(n) & 63))) != 0
}

// Count returns the number of present indices.
func (bs *BitSet) Count() int {
	c := 0
	for i := 0; i < bs.size; i++ {
		if bs.Has(i) {
			c++
		}
	}
	return c
}

// Bytes packs the set into ceil(size/8) bytes, LSB first.
func (bs *BitSet) Bytes() []byte {
	out := make([]byte, (bs.size+7)/8)
	for i := 0; i < bs.size; i++ {
		if bs.Has(i) {
			out[i>>3] |= 1 << (uint(i) & 7)
		}
	}
	return out
}

// BitSetFromBytes is the inverse of Bytes.
func BitSetFromBytes(b []byte, size int) *BitSet {
	bs := NewBitSet(size)
	for i := 0; i < size && i>>3 < len(b); i++ {
		if b[i>>3]&(1<<(uint(i)&7)) != 0 {
			bs.Set(i, true)
		}
	}
	return bs
}
