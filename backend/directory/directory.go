// Package directory implements the directory of an extendible hash
// index: an in-memory, dense table mapping a hash sequence's low bits to
// a bucket offset, maintained across splits and directory doublings.
package directory

import (
	"fmt"

	"exthash/backend/hashkey"
)

// Entry is one directory slot: the local depth of the bucket it points at
// and that bucket's head offset. The slot's own hash sequence is never
// stored explicitly — in this dense encoding the sequence IS the slot
// index, zero-extended to D bits.
type Entry struct {
	LocalDepth int
	BucketRef  int64
}

// Directory is the dense 2^global_depth_current slot array.
type Directory struct {
	maxDepth     int     // D
	currentDepth int     // global_depth_current
	entries      []Entry // len == 2^currentDepth
}

// New creates a single-entry directory (global_depth_current == 0)
// pointing every address at rootBucket, the bucket allocated at
// create-index time.
func New(maxDepth int, rootBucket int64) (*Directory, error) {
	if maxDepth <= 0 || maxDepth > hashkey.MaxDepth {
		return nil, fmt.Errorf("%w: D=%d out of range (1..%d)", ErrInvalidConfiguration, maxDepth, hashkey.MaxDepth)
	}
	return &Directory{
		maxDepth:     maxDepth,
		currentDepth: 0,
		entries:      []Entry{{LocalDepth: 0, BucketRef: rootBucket}},
	}, nil
}

// MaxDepth returns D, the construction-time ceiling on address width.
func (d *Directory) MaxDepth() int { return d.maxDepth }

// CurrentDepth returns global_depth_current.
func (d *Directory) CurrentDepth() int { return d.currentDepth }

// Len returns the number of directory entries (2^global_depth_current).
func (d *Directory) Len() int { return len(d.entries) }

// slot masks seq down to the directory's current width; the result is both
// the entry index and the zero-extended sequence value of that entry.
func (d *Directory) slot(seq hashkey.Sequence) int {
	return int(seq.Mask(d.currentDepth))
}

// Lookup returns the bucket_ref addressed by seq.
func (d *Directory) Lookup(seq hashkey.Sequence) int64 {
	return d.entries[d.slot(seq)].BucketRef
}

// EntryFor returns the full entry addressed by seq, along with its slot
// index (which doubles as that entry's D-bit sequence value).
func (d *Directory) EntryFor(seq hashkey.Sequence) (slot int, entry Entry) {
	slot = d.slot(seq)
	return slot, d.entries[slot]
}

// EntryAt returns the entry at raw slot index i.
func (d *Directory) EntryAt(i int) Entry { return d.entries[i] }

// Sequence returns the D-bit zero-extended hash sequence that slot i's
// entry represents.
func (d *Directory) Sequence(i int) hashkey.Sequence { return hashkey.Sequence(i) }

// Double extends the directory by one bit: every existing entry e is
// reproduced into two, the original (new high bit 0) and a twin (new
// high bit 1), both initially sharing e's bucket_ref and local_depth.
// Doubling is only ever called from inside Split.
func (d *Directory) Double() error {
	if d.currentDepth >= d.maxDepth {
		return fmt.Errorf("%w: directory already at maximum depth %d", ErrCapacityExhausted, d.maxDepth)
	}
	old := d.entries
	next := make([]Entry, len(old)*2)
	copy(next, old)
	copy(next[len(old):], old)
	d.entries = next
	d.currentDepth++
	return nil
}

// Split rewrites every entry currently pointing at oldRef: bit
// `localDepth` (0-indexed from the LSB) of the entry's own sequence
// decides whether it stays on oldRef or moves to newRef; both sides'
// local depth becomes localDepth+1. The caller (the Index Facade) must
// have already called Double if localDepth == CurrentDepth() before
// splitting, and is responsible for actually moving record bytes between
// the two buckets.
func (d *Directory) Split(oldRef int64, localDepth int, newRef int64) error {
	if localDepth >= d.currentDepth {
		return fmt.Errorf("directory: split at local depth %d requires current depth > %d, have %d", localDepth, localDepth, d.currentDepth)
	}
	for i := range d.entries {
		e := &d.entries[i]
		if e.BucketRef != oldRef {
			continue
		}
		e.LocalDepth = localDepth + 1
		if hashkey.Sequence(i).Bit(localDepth) == 1 {
			e.BucketRef = newRef
		}
	}
	return nil
}

// Merge is the inverse of Split, implementing optional merge-on-delete:
// every entry pointing at buddyRef is repointed to survivorRef and both
// sides' local depth is decremented to survivorDepth. buddyRef becomes
// unreferenced and is the caller's responsibility to free.
func (d *Directory) Merge(survivorRef, buddyRef int64, survivorDepth int) error {
	if survivorDepth < 0 {
		return fmt.Errorf("directory: merge would produce negative local depth")
	}
	for i := range d.entries {
		e := &d.entries[i]
		if e.BucketRef == buddyRef {
			e.BucketRef = survivorRef
		}
		if e.BucketRef == survivorRef {
			e.LocalDepth = survivorDepth
		}
	}
	return nil
}

// CanHalve reports whether every pair of twin entries (i, i+2^(currentDepth-1))
// now agrees on both bucket_ref and local_depth, meaning the directory's top
// bit carries no information and can be dropped.
func (d *Directory) CanHalve() bool {
	if d.currentDepth == 0 {
		return false
	}
	half := len(d.entries) / 2
	for i := 0; i < half; i++ {
		if d.entries[i] != d.entries[i+half] {
			return false
		}
	}
	return true
}

// Halve drops the directory's top bit. Callers must check CanHalve first.
func (d *Directory) Halve() {
	half := len(d.entries) / 2
	d.entries = d.entries[:half]
	d.currentDepth--
}

// RepointAll rewrites every entry currently pointing at oldRef to point at
// newRef instead, leaving local depth untouched. Used when an overflow
// chain's head block changes (prepend) or when a chain's head is freed
// because compaction emptied it.
func (d *Directory) RepointAll(oldRef, newRef int64) {
	for i := range d.entries {
		if d.entries[i].BucketRef == oldRef {
			d.entries[i].BucketRef = newRef
		}
	}
}

// FindSlot returns the index of the first entry pointing at ref, for
// callers (the Index Facade's merge step) that need any representative
// slot to read ref's local depth and buddy address. ok is false if no
// entry currently points at ref.
func (d *Directory) FindSlot(ref int64) (slot int, ok bool) {
	for i := range d.entries {
		if d.entries[i].BucketRef == ref {
			return i, true
		}
	}
	return 0, false
}

// Snapshot returns a defensive copy of the entry list, in slot order, for
// persistence or inspection.
func (d *Directory) Snapshot() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}
