// Package recfile is the primary record file collaborator: a
// fixed-length record file that the index only ever touches through a
// key-projection callable and byte-offset reads/writes. It is not part
// of the index's own correctness surface — it exists so the Facade
// (package exthash) can be exercised end to end in tests and by
// cmd/exhashtool.
package recfile

import (
	"fmt"
	"os"
)

// tombstoneSize is the one-byte "removed" flag every record carries,
// stored as the first byte of each fixed-length slot.
const tombstoneSize = 1

const (
	live    byte = 0
	removed byte = 1
)

// File is a flat, append-only heap of fixed-length records. Slot i lives
// at byte offset i * (tombstoneSize + payloadSize).
type File struct {
	f           *os.File
	payloadSize int64
	slotSize    int64
	count       int64
}

// RecordSize is the total on-disk slot size (tombstone byte + payload),
// the R callers should configure exthash.Config with.
func (r *File) RecordSize() int64 { return r.slotSize }

// Create truncates (or creates) path as an empty record file holding
// payloadSize-byte payloads.
func Create(path string, payloadSize int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recfile: create %s: %w", path, err)
	}
	return &File{f: f, payloadSize: payloadSize, slotSize: tombstoneSize + payloadSize}, nil
}

// Open opens an existing record file holding payloadSize-byte payloads.
func Open(path string, payloadSize int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recfile: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("recfile: stat %s: %w", path, err)
	}
	slotSize := tombstoneSize + payloadSize
	if info.Size()%slotSize != 0 {
		f.Close()
		return nil, fmt.Errorf("recfile: %s size %d is not a multiple of slot size %d", path, info.Size(), slotSize)
	}
	return &File{f: f, payloadSize: payloadSize, slotSize: slotSize, count: info.Size() / slotSize}, nil
}

// Append writes payload as a new live record and returns its slot
// reference: its byte offset in the primary file.
func (r *File) Append(payload []byte) (int64, error) {
	if int64(len(payload)) != r.payloadSize {
		return 0, fmt.Errorf("recfile: payload length %d does not match configured size %d", len(payload), r.payloadSize)
	}
	ref := r.count * r.slotSize
	buf := make([]byte, r.slotSize)
	buf[0] = live
	copy(buf[tombstoneSize:], payload)
	if _, err := r.f.WriteAt(buf, ref); err != nil {
		return 0, fmt.Errorf("recfile: append at %d: %w", ref, err)
	}
	r.count++
	return ref, nil
}

// MarkRemoved flips the tombstone byte at ref so a later Build skips it,
// without physically compacting the primary file (swap-with-last
// compaction applies only inside bucket blocks; the primary file's own
// reclamation policy is the host's concern).
func (r *File) MarkRemoved(ref int64) error {
	if _, err := r.f.WriteAt([]byte{removed}, ref); err != nil {
		return fmt.Errorf("recfile: mark removed at %d: %w", ref, err)
	}
	return nil
}

// ReadAt returns the R-byte record (tombstone byte + payload) at ref,
// exactly as the Facade expects to see it via Insert/Search.
func (r *File) ReadAt(ref int64) ([]byte, error) {
	buf := make([]byte, r.slotSize)
	if _, err := r.f.ReadAt(buf, ref); err != nil {
		return nil, fmt.Errorf("recfile: read at %d: %w", ref, err)
	}
	return buf, nil
}

// Count returns the number of slots (live and removed) in the file.
func (r *File) Count() int64 { return r.count }

// Close closes the underlying file.
func (r *File) Close() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("recfile: close: %w", err)
	}
	return nil
}

// IsRemoved reports whether record's tombstone byte marks it removed.
// record must be a slot exactly as returned by ReadAt.
func IsRemoved(record []byte) bool {
	return len(record) > 0 && record[0] == removed
}

// Payload strips the tombstone byte, returning the caller's own payload
// bytes.
func Payload(record []byte) []byte {
	if len(record) <= tombstoneSize {
		return nil
	}
	return record[tombstoneSize:]
}
