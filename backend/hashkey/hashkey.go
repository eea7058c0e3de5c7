// Package hashkey turns caller keys into fixed-width binary addresses.
//
// A Sequence is the D-bit hash address of a key, stored low-bit-first in a
// uint64 so that addressing by low-order bits (the directory's indexing
// scheme, see package directory) is a plain bitmask. D is bounded at 64
// because a uint64 backs every Sequence; that covers every global depth a
// real directory reaches long before memory for 2^D entries would.
package hashkey

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// MaxDepth is the largest global depth this package can address.
const MaxDepth = 64

// HashFunc produces an unsigned digest for a key's byte representation.
// Implementations must be side-effect-free and total: every input maps to
// some digest, there is no failure mode internal to hashing.
type HashFunc func(key []byte) uint64

// DefaultHash hashes with xxhash64, the same digest this corpus's
// brickdb-style chained hash index and its preindex/compactindexsized
// packages use for on-disk key addressing.
func DefaultHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// Sequence is a key's D-bit hash address, low-order-bit-first.
type Sequence uint64

// Addr computes the D-bit hash sequence for key using fn (or DefaultHash if
// fn is nil). depth must be in [1, MaxDepth].
func Addr(fn HashFunc, key []byte, depth int) (Sequence, error) {
	if depth <= 0 || depth > MaxDepth {
		return 0, fmt.Errorf("hashkey: depth %d out of range (1..%d)", depth, MaxDepth)
	}
	if fn == nil {
		fn = DefaultHash
	}
	return Sequence(fn(key)).Mask(depth), nil
}

// Mask returns s with only its low depth bits retained.
func (s Sequence) Mask(depth int) Sequence {
	if depth >= 64 {
		return s
	}
	return s & ((Sequence(1) << uint(depth)) - 1)
}

// Bit returns the value (0 or 1) of bit position pos, counted from the low
// (least significant) end starting at 0. Splitting a bucket at local depth
// ℓ partitions records by Bit(ℓ): the newly significant bit.
func (s Sequence) Bit(pos int) int {
	return int((s >> uint(pos)) & 1)
}

// LowBitsEqual reports whether a and b agree on their low depth bits —
// the directory's lookup predicate (§4.1: low_bits_equal).
func LowBitsEqual(a, b Sequence, depth int) bool {
	if depth == 0 {
		return true
	}
	return a.Mask(depth) == b.Mask(depth)
}

// String renders the sequence as depth ASCII '0'/'1' characters,
// most-significant-bit first — the ASCII encoding variant named in §6,
// kept for debugging and for the directory file's ASCII-sequence variant.
func (s Sequence) String(depth int) string {
	buf := make([]byte, depth)
	for i := 0; i < depth; i++ {
		bitPos := depth - 1 - i
		if s.Bit(bitPos) == 1 {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}
