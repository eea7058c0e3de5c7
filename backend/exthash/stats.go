package exthash

import "fmt"

// Stats is a read-only snapshot of index shape: global depth, bucket
// count, load factor, and chain-length histogram. It has no effect on
// the persisted format.
type Stats struct {
	GlobalDepth      int
	DirectoryEntries int
	DistinctBuckets  int
	LiveRecords      int64
	Capacity         int64
	LoadFactor       float64
	ChainLengths     map[int]int // chain length -> number of directory-addressed chains with that length
}

// Stats walks every distinct bucket reachable from the directory exactly
// once and summarizes occupancy.
func (ix *Index) Stats() (Stats, error) {
	st := Stats{
		GlobalDepth:      ix.dir.CurrentDepth(),
		DirectoryEntries: ix.dir.Len(),
		Capacity:         ix.layout.Capacity,
		ChainLengths:     make(map[int]int),
	}

	seen := make(map[int64]bool)
	for i := 0; i < ix.dir.Len(); i++ {
		ref := ix.dir.EntryAt(i).BucketRef
		if seen[ref] {
			continue
		}
		seen[ref] = true
		st.DistinctBuckets++

		chain, err := ix.store.WalkChain(ref)
		if err != nil {
			return Stats{}, &IoError{Path: ix.hashPath, Err: err}
		}
		st.ChainLengths[len(chain)]++
		for _, b := range chain {
			st.LiveRecords += int64(len(b.Records))
		}
	}

	if st.DistinctBuckets > 0 {
		st.LoadFactor = float64(st.LiveRecords) / float64(int64(st.DistinctBuckets)*st.Capacity)
	}
	return st, nil
}

// String renders a one-line human summary in a bracketed-tag debug style
// ([INDEX]).
func (s Stats) String() string {
	return fmt.Sprintf("[INDEX] global_depth=%d entries=%d buckets=%d records=%d load_factor=%.2f",
		s.GlobalDepth, s.DirectoryEntries, s.DistinctBuckets, s.LiveRecords, s.LoadFactor)
}
