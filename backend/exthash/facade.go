// Package exthash is the index facade of the extendible hash index: the
// user-visible surface orchestrating the directory and the bucket store,
// enforcing primary-key uniqueness, and managing overflow chains.
package exthash

import (
	"fmt"
	"log/slog"
	"os"

	"exthash/backend/bucketstore"
	"exthash/backend/directory"
	"exthash/backend/hashkey"
)

// RecordSource models the primary record file collaborator: a
// sequential, caller-owned iterator over (record_ref, record) pairs used
// by Build. The recfile package implements it; the Facade depends only
// on this interface.
type RecordSource interface {
	// Next returns the next entry in file order. ok is false once the
	// source is exhausted. Removed records are still yielded (removed
	// true) so callers of Build can skip them.
	Next() (recordRef int64, record []byte, removed bool, ok bool, err error)
}

// Index is the constructor-returned handle to an open extendible hash
// index.
type Index struct {
	cfg      Config
	layout   bucketstore.Layout
	store    *bucketstore.Store
	dir      *directory.Directory
	dirPath  string
	hashPath string
	logger   *slog.Logger
}

func validateConfig(cfg Config) error {
	if cfg.GlobalDepth <= 0 {
		return fmt.Errorf("%w: D must be positive, got %d", ErrInvalidConfiguration, cfg.GlobalDepth)
	}
	if cfg.Project == nil || cfg.Equal == nil {
		return fmt.Errorf("%w: Project and Equal callables are required", ErrInvalidConfiguration)
	}
	return nil
}

// CreateIndex lays down a fresh hash file (one empty root bucket) and a
// fresh directory file (one entry, local_depth 0) at hashPath/dirPath.
func CreateIndex(hashPath, dirPath string, cfg Config) (*Index, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	layout, err := bucketstore.NewLayout(cfg.BlockSize, cfg.RecordSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	store, err := bucketstore.Open(hashPath, layout)
	if err != nil {
		return nil, &IoError{Path: hashPath, Err: err}
	}

	root, err := store.Allocate()
	if err != nil {
		store.Close()
		return nil, &IoError{Path: hashPath, Err: err}
	}
	if err := store.Write(root, bucketstore.Bucket{Next: bucketstore.EndOfChain}); err != nil {
		store.Close()
		return nil, &IoError{Path: hashPath, Err: err}
	}

	dir, err := directory.New(cfg.GlobalDepth, root)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ix := &Index{cfg: cfg, layout: layout, store: store, dir: dir, dirPath: dirPath, hashPath: hashPath, logger: logger}
	if err := ix.flushDirectory(); err != nil {
		store.Close()
		return nil, err
	}
	if !store.Locked() {
		logger.Warn("single-writer lock unavailable on this platform; concurrent writers are not guarded", "hash_file", hashPath)
	}
	logger.Info("created index", "hash_file", hashPath, "dir_file", dirPath, "global_depth", cfg.GlobalDepth, "block_size", cfg.BlockSize)
	return ix, nil
}

// OpenIndex reopens an existing index written by CreateIndex/Close. It
// raises CorruptIndexError if the directory file fails to parse, its
// declared geometry disagrees with cfg, or one of its entries references a
// block beyond the end of the hash file. A missing hash file is an IoError.
func OpenIndex(hashPath, dirPath string, cfg Config) (*Index, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	layout, err := bucketstore.NewLayout(cfg.BlockSize, cfg.RecordSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	dir, err := directory.Load(dirPath)
	if err != nil {
		return nil, &CorruptIndexError{Reason: "directory file", Err: err}
	}
	if dir.MaxDepth() != cfg.GlobalDepth {
		return nil, &CorruptIndexError{Reason: fmt.Sprintf("directory D=%d disagrees with configured D=%d", dir.MaxDepth(), cfg.GlobalDepth)}
	}

	info, err := os.Stat(hashPath)
	if err != nil {
		return nil, &IoError{Path: hashPath, Err: err}
	}
	for i := 0; i < dir.Len(); i++ {
		if ref := dir.EntryAt(i).BucketRef; ref < 0 || ref+layout.BlockSize > info.Size() {
			return nil, &CorruptIndexError{Reason: fmt.Sprintf("directory entry %d references offset %d beyond hash file size %d", i, ref, info.Size())}
		}
	}

	store, err := bucketstore.Open(hashPath, layout)
	if err != nil {
		return nil, &IoError{Path: hashPath, Err: err}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ix := &Index{cfg: cfg, layout: layout, store: store, dir: dir, dirPath: dirPath, hashPath: hashPath, logger: logger}
	if !store.Locked() {
		logger.Warn("single-writer lock unavailable on this platform; concurrent writers are not guarded", "hash_file", hashPath)
	}
	logger.Info("opened index", "hash_file", hashPath, "dir_file", dirPath, "global_depth", dir.CurrentDepth())
	return ix, nil
}

// Ready reports whether both files exist, are non-empty, and parse as a
// consistent directory + bucket store. It never raises; any failure is
// reported as false.
func Ready(hashPath, dirPath string, cfg Config) bool {
	ix, err := OpenIndex(hashPath, dirPath, cfg)
	if err != nil {
		return false
	}
	defer ix.store.Close()
	return true
}

// Close flushes the directory file in full and releases the hash file's
// single-writer lock.
func (ix *Index) Close() error {
	if err := ix.flushDirectory(); err != nil {
		return err
	}
	if err := ix.store.Close(); err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}
	return nil
}

func (ix *Index) flushDirectory() error {
	if err := ix.dir.Save(ix.dirPath); err != nil {
		return &IoError{Path: ix.dirPath, Err: err}
	}
	return nil
}

func (ix *Index) addr(key []byte) (hashkey.Sequence, error) {
	return hashkey.Addr(ix.cfg.Hash, key, ix.dir.MaxDepth())
}

// Search walks the directory to the head bucket, then the overflow
// chain, returning every record whose projected key compares equal to
// key under the caller-supplied equality. No side effects.
func (ix *Index) Search(key []byte) ([][]byte, error) {
	seq, err := ix.addr(key)
	if err != nil {
		return nil, err
	}
	_, entry := ix.dir.EntryFor(seq)

	chain, err := ix.store.WalkChain(entry.BucketRef)
	if err != nil {
		return nil, &IoError{Path: ix.hashPath, Err: err}
	}

	var matches [][]byte
	for _, b := range chain {
		for _, rec := range b.Records {
			if ix.cfg.Equal(ix.cfg.Project(rec), key) {
				matches = append(matches, rec)
			}
		}
	}
	return matches, nil
}

// exists is Search's boolean-only sibling, used by Insert's primary-key
// duplicate check without allocating a result slice.
func (ix *Index) exists(key []byte) (bool, error) {
	seq, err := ix.addr(key)
	if err != nil {
		return false, err
	}
	_, entry := ix.dir.EntryFor(seq)
	chain, err := ix.store.WalkChain(entry.BucketRef)
	if err != nil {
		return false, &IoError{Path: ix.hashPath, Err: err}
	}
	for _, b := range chain {
		for _, rec := range b.Records {
			if ix.cfg.Equal(ix.cfg.Project(rec), key) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Insert: in primary-key mode, fails with DuplicateKey if the key is
// already present in the reachable chain. On overflow: split (possibly
// with doubling) if possible, else prepend a new head bucket to the
// chain.
func (ix *Index) Insert(record []byte, recordRef int64) error {
	if int64(len(record)) != ix.layout.RecordSize {
		return fmt.Errorf("exthash: record length %d does not match configured record size %d", len(record), ix.layout.RecordSize)
	}
	key := ix.cfg.Project(record)
	seq, err := ix.addr(key)
	if err != nil {
		return err
	}

	if ix.cfg.PrimaryKey {
		dup, err := ix.exists(key)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("%w: key already present", ErrDuplicateKey)
		}
	}

	return ix.place(seq, record)
}

// place walks the split protocol: try to fit record at the bucket seq
// addresses; if full, split when the bucket can still grow a deeper
// local depth, otherwise extend the overflow chain. Recursion is bounded
// by D - local_depth.
func (ix *Index) place(seq hashkey.Sequence, record []byte) error {
	for attempt := 0; attempt <= ix.dir.MaxDepth(); attempt++ {
		_, entry := ix.dir.EntryFor(seq)

		bucket, err := ix.store.Read(entry.BucketRef)
		if err != nil {
			return &IoError{Path: ix.hashPath, Err: err}
		}

		if int64(len(bucket.Records)) < ix.layout.Capacity {
			bucket.Records = append(bucket.Records, record)
			if err := ix.store.Write(entry.BucketRef, bucket); err != nil {
				return &IoError{Path: ix.hashPath, Err: err}
			}
			return nil
		}

		if entry.LocalDepth < ix.dir.MaxDepth() {
			if err := ix.split(entry.BucketRef, entry.LocalDepth); err != nil {
				return err
			}
			continue
		}

		return ix.overflow(entry.BucketRef, record)
	}
	return fmt.Errorf("%w: split recursion exceeded D=%d", ErrCapacityExhausted, ix.dir.MaxDepth())
}

// split doubles the directory first if needed, allocates a sibling
// bucket, redistributes records by bit localDepth, and updates the
// directory to match.
func (ix *Index) split(oldRef int64, localDepth int) error {
	if localDepth == ix.dir.CurrentDepth() {
		if err := ix.dir.Double(); err != nil {
			return err
		}
		ix.logger.Debug("directory doubled", "new_global_depth", ix.dir.CurrentDepth())
	}

	oldBucket, err := ix.store.Read(oldRef)
	if err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}

	newRef, err := ix.store.Allocate()
	if err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}

	var keep, move [][]byte
	for _, rec := range oldBucket.Records {
		recSeq, err := ix.addr(ix.cfg.Project(rec))
		if err != nil {
			return err
		}
		if recSeq.Bit(localDepth) == 1 {
			move = append(move, rec)
		} else {
			keep = append(keep, rec)
		}
	}

	if err := ix.store.Write(oldRef, bucketstore.Bucket{Records: keep, Next: bucketstore.EndOfChain}); err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}
	if err := ix.store.Write(newRef, bucketstore.Bucket{Records: move, Next: bucketstore.EndOfChain}); err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}
	if err := ix.dir.Split(oldRef, localDepth, newRef); err != nil {
		return err
	}
	ix.logger.Debug("bucket split", "old_ref", oldRef, "new_ref", newRef, "local_depth", localDepth+1)
	return nil
}

// overflow extends the chain rooted at headRef with a new block holding
// just record, enforcing the optional capacity cap.
func (ix *Index) overflow(headRef int64, record []byte) error {
	if ix.cfg.CapacityCap > 0 {
		chain, err := ix.store.WalkChain(headRef)
		if err != nil {
			return &IoError{Path: ix.hashPath, Err: err}
		}
		if len(chain) >= ix.cfg.CapacityCap {
			return fmt.Errorf("%w: chain at %d already has %d blocks", ErrCapacityExhausted, headRef, len(chain))
		}
	}

	newHead, err := ix.store.Prepend(headRef, bucketstore.Bucket{Records: [][]byte{record}})
	if err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}
	ix.dir.RepointAll(headRef, newHead)
	ix.logger.Debug("overflow chain grew", "old_head", headRef, "new_head", newHead)
	return nil
}

// removeMatching performs swap-with-last compaction: each matching
// record is replaced by the current last record and the slice shrinks by
// one, without disturbing the relative order of the remaining
// non-matching records before it.
func removeMatching(records [][]byte, key []byte, project Project, equal Equal) [][]byte {
	for i := 0; i < len(records); {
		if equal(project(records[i]), key) {
			last := len(records) - 1
			records[i] = records[last]
			records = records[:last]
			continue
		}
		i++
	}
	return records
}

// Remove removes every matching record from the chain by swap-with-last
// compaction inside each bucket, a no-op if the key is absent, then
// attempts merge-on-delete.
func (ix *Index) Remove(key []byte) error {
	seq, err := ix.addr(key)
	if err != nil {
		return err
	}
	_, entry := ix.dir.EntryFor(seq)
	headRef := entry.BucketRef

	offsets, buckets, err := ix.readChain(headRef)
	if err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}

	anyRemoved := false
	for i := range buckets {
		before := len(buckets[i].Records)
		buckets[i].Records = removeMatching(buckets[i].Records, key, ix.cfg.Project, ix.cfg.Equal)
		if len(buckets[i].Records) != before {
			anyRemoved = true
		}
	}
	if !anyRemoved {
		return nil
	}

	newHeadRef, err := ix.relinkChain(headRef, offsets, buckets)
	if err != nil {
		return err
	}

	ix.logger.Debug("records removed", "head", headRef, "new_head", newHeadRef)
	return ix.tryMerge(newHeadRef)
}

func (ix *Index) readChain(head int64) ([]int64, []bucketstore.Bucket, error) {
	var offsets []int64
	var buckets []bucketstore.Bucket
	off := head
	for off != bucketstore.EndOfChain {
		b, err := ix.store.Read(off)
		if err != nil {
			return nil, nil, err
		}
		offsets = append(offsets, off)
		buckets = append(buckets, b)
		off = b.Next
	}
	return offsets, buckets, nil
}

// relinkChain drops any emptied non-head block from the chain (freeing
// it), promotes the next surviving block to head if the head itself
// emptied and successors remain, and rewrites Next pointers across what's
// left. It returns the (possibly new) head offset.
func (ix *Index) relinkChain(headRef int64, offsets []int64, buckets []bucketstore.Bucket) (int64, error) {
	type link struct {
		offset int64
		bucket bucketstore.Bucket
	}
	kept := make([]link, 0, len(offsets))
	for i, off := range offsets {
		if i > 0 && len(buckets[i].Records) == 0 {
			if err := ix.store.Free(off); err != nil {
				return 0, &IoError{Path: ix.hashPath, Err: err}
			}
			continue
		}
		kept = append(kept, link{off, buckets[i]})
	}

	newHeadRef := headRef
	if len(kept) > 1 && len(kept[0].bucket.Records) == 0 {
		if err := ix.store.Free(kept[0].offset); err != nil {
			return 0, &IoError{Path: ix.hashPath, Err: err}
		}
		kept = kept[1:]
		newHeadRef = kept[0].offset
	}

	for i := range kept {
		if i == len(kept)-1 {
			kept[i].bucket.Next = bucketstore.EndOfChain
		} else {
			kept[i].bucket.Next = kept[i+1].offset
		}
		if err := ix.store.Write(kept[i].offset, kept[i].bucket); err != nil {
			return 0, &IoError{Path: ix.hashPath, Err: err}
		}
	}

	if newHeadRef != headRef {
		ix.dir.RepointAll(headRef, newHeadRef)
	}
	return newHeadRef, nil
}

// tryMerge: after deletion, if ref's bucket and its buddy (equal local
// depth, sharing all but the most recently split bit) together hold at
// most M records, merge them and retract the directory's top bit when
// every twin pair agrees.
func (ix *Index) tryMerge(ref int64) error {
	chain, err := ix.store.WalkChain(ref)
	if err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}
	if len(chain) != 1 {
		// A bucket heading an overflow chain is never merged.
		return nil
	}

	slot, ok := ix.dir.FindSlot(ref)
	if !ok {
		return nil
	}
	entry := ix.dir.EntryAt(slot)
	if entry.LocalDepth == 0 {
		return nil
	}

	buddySlot := slot ^ (1 << uint(entry.LocalDepth-1))
	buddyEntry := ix.dir.EntryAt(buddySlot)
	if buddyEntry.LocalDepth != entry.LocalDepth || buddyEntry.BucketRef == ref {
		return nil
	}

	own, err := ix.store.Read(ref)
	if err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}
	buddyChain, err := ix.store.WalkChain(buddyEntry.BucketRef)
	if err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}
	if len(buddyChain) != 1 {
		return nil
	}
	buddy := buddyChain[0]
	if int64(len(own.Records)+len(buddy.Records)) > ix.layout.Capacity {
		return nil
	}

	survivorRef, buddyRef := ref, buddyEntry.BucketRef
	merged := append(append([][]byte{}, own.Records...), buddy.Records...)
	if err := ix.store.Write(survivorRef, bucketstore.Bucket{Records: merged, Next: bucketstore.EndOfChain}); err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}
	if err := ix.store.Free(buddyRef); err != nil {
		return &IoError{Path: ix.hashPath, Err: err}
	}
	if err := ix.dir.Merge(survivorRef, buddyRef, entry.LocalDepth-1); err != nil {
		return err
	}
	for ix.dir.CanHalve() {
		ix.dir.Halve()
	}
	ix.logger.Debug("buckets merged", "survivor", survivorRef, "freed", buddyRef, "local_depth", entry.LocalDepth-1)

	return ix.tryMerge(survivorRef)
}

// Build reads src sequentially and calls Insert for each non-removed
// record.
func (ix *Index) Build(src RecordSource) error {
	for {
		ref, record, removed, ok, err := src.Next()
		if err != nil {
			return &IoError{Path: "recfile", Err: err}
		}
		if !ok {
			return nil
		}
		if removed {
			continue
		}
		if err := ix.Insert(record, ref); err != nil {
			return err
		}
	}
}
