package bucketstore

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Store is the bucket store: a flat file of fixed-size blocks addressed
// purely by byte offset, with bucket 0 living at offset 0 and every
// other offset a multiple of the block size.
type Store struct {
	mu     sync.Mutex
	file   *os.File
	layout Layout
	locked bool

	scratch sync.Pool // []byte of length layout.BlockSize

	next     int64   // offset a fresh allocate() would append at
	freelist []int64 // hole offsets available for reuse; Allocate takes the last
}

// Open opens (creating if necessary) the hash file at path under layout,
// takes an exclusive single-writer lock, and rebuilds the in-memory
// freelist by scanning for hole markers left by Free.
func Open(path string, layout Layout) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bucketstore: open %s: %w", path, err)
	}

	if err := lockFile(f.Fd()); err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bucketstore: stat %s: %w", path, err)
	}
	if info.Size()%layout.BlockSize != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s size %d is not a multiple of block size %d", ErrCorruptBucket, path, info.Size(), layout.BlockSize)
	}

	s := &Store{
		file:   f,
		layout: layout,
		locked: flockSupported,
		next:   info.Size(),
	}
	s.scratch.New = func() any { return make([]byte, layout.BlockSize) }

	if err := s.rebuildFreelist(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// rebuildFreelist scans every block for the hole marker left behind by
// Free, reconstructing the freelist from scratch on every Open.
func (s *Store) rebuildFreelist() error {
	buf := make([]byte, s.layout.BlockSize)
	for off := int64(0); off < s.next; off += s.layout.BlockSize {
		if _, err := s.file.ReadAt(buf, off); err != nil {
			return fmt.Errorf("bucketstore: scan block at %d: %w", off, err)
		}
		if isHoleMarker(buf) {
			s.freelist = append(s.freelist, off)
		}
	}
	return nil
}

// BlockSize reports the fixed block size B this store was opened with.
func (s *Store) BlockSize() int64 { return s.layout.BlockSize }

// Layout reports the record geometry this store was opened with.
func (s *Store) Layout() Layout { return s.layout }

// Locked reports whether Open actually took the single-writer flock. It
// is false on platforms without flock(2) support, where the guarantee
// degrades to advisory-only; callers should log that degradation once.
func (s *Store) Locked() bool { return s.locked }

// Allocate reserves a fresh block offset, reusing a freed hole when one is
// available, and returns it without writing to it — callers immediately
// Write the initial contents.
func (s *Store) Allocate() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.freelist); n > 0 {
		off := s.freelist[n-1]
		s.freelist = s.freelist[:n-1]
		return off, nil
	}

	off := s.next
	s.next += s.layout.BlockSize
	return off, nil
}

// Read loads the bucket block at offset.
func (s *Store) Read(offset int64) (Bucket, error) {
	if offset < 0 || offset%s.layout.BlockSize != 0 {
		return Bucket{}, fmt.Errorf("bucketstore: offset %d is not a valid block offset", offset)
	}

	buf := s.scratch.Get().([]byte)
	defer s.scratch.Put(buf)

	s.mu.Lock()
	_, err := s.file.ReadAt(buf, offset)
	s.mu.Unlock()
	if err != nil && err != io.EOF {
		return Bucket{}, fmt.Errorf("bucketstore: read block at %d: %w", offset, err)
	}

	return s.layout.Decode(buf)
}

// Write persists bucket at offset, overwriting whatever block was there.
func (s *Store) Write(offset int64, bucket Bucket) error {
	if offset < 0 || offset%s.layout.BlockSize != 0 {
		return fmt.Errorf("bucketstore: offset %d is not a valid block offset", offset)
	}

	buf, err := s.layout.Encode(bucket)
	if err != nil {
		return err
	}

	s.mu.Lock()
	_, err = s.file.WriteAt(buf, offset)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("bucketstore: write block at %d: %w", offset, err)
	}
	return nil
}

// WalkChain reads the primary bucket at head and every overflow block that
// follows it, in chain order.
func (s *Store) WalkChain(head int64) ([]Bucket, error) {
	var chain []Bucket
	off := head
	for off != EndOfChain {
		b, err := s.Read(off)
		if err != nil {
			return nil, fmt.Errorf("bucketstore: walk chain from %d: %w", head, err)
		}
		chain = append(chain, b)
		off = b.Next
	}
	return chain, nil
}

// Prepend allocates a new overflow block holding bucket's records and
// links it in front of the chain currently headed at head, returning the
// new head offset. The caller is responsible for updating the directory
// (or the primary bucket's own Next, for a non-primary head) to point at
// the returned offset.
func (s *Store) Prepend(head int64, bucket Bucket) (int64, error) {
	bucket.Next = head
	off, err := s.Allocate()
	if err != nil {
		return 0, err
	}
	if err := s.Write(off, bucket); err != nil {
		return 0, err
	}
	return off, nil
}

// Free marks offset as a hole: its block is overwritten with a hole
// marker and the offset is pushed onto the in-memory freelist for reuse
// by a future Allocate. Freed blocks remain on disk as holes until then.
func (s *Store) Free(offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := holeMarkerBlock(s.layout.BlockSize)
	if _, err := s.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("bucketstore: mark hole at %d: %w", offset, err)
	}
	s.freelist = append(s.freelist, offset)
	return nil
}

// Sync flushes the OS file buffers for the hash file to stable storage.
func (s *Store) Sync() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("bucketstore: sync: %w", err)
	}
	return nil
}

// Close releases the single-writer lock and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		_ = unlockFile(s.file.Fd())
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("bucketstore: close: %w", err)
	}
	return nil
}

// holeSizeMarker is an out-of-range Size value (Capacity is always finite
// and non-negative) used to flag a freed block without needing a separate
// bitmap file.
const holeSizeMarker uint64 = ^uint64(0)

func holeMarkerBlock(blockSize int64) []byte {
	buf := make([]byte, blockSize)
	for i := 0; i < 8; i++ {
		buf[i] = byte(holeSizeMarker >> (8 * i))
	}
	return buf
}

func isHoleMarker(buf []byte) bool {
	for i := 0; i < 8; i++ {
		if buf[i] != byte(holeSizeMarker>>(8*i)) {
			return false
		}
	}
	return true
}
