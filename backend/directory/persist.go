package directory

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"exthash/backend/hashkey"
)

// magic identifies a directory file, distinguishing it from an unrelated
// or truncated file before the header fields are even parsed.
var magic = [4]byte{'E', 'H', 'D', '1'}

// Encoding variants declared in the header byte. This implementation
// only writes the ASCII variant; both are declared so a future reader
// can recognize a packed-bit file as unsupported rather than silently
// misparsing it.
const (
	encodingASCII  byte = 0
	encodingPacked byte = 1
)

// Save writes d to path in full: magic, encoding-variant byte, header
// (global_depth_current, D, entry count), the entry list, and a trailing
// CRC32 (IEEE) checksum over everything preceding it.
func (d *Directory) Save(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("directory: open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(encodingASCII)

	header := make([]byte, 4+4+8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(d.currentDepth))
	binary.LittleEndian.PutUint32(header[4:8], uint32(d.maxDepth))
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(d.entries)))
	buf.Write(header)

	entryBuf := make([]byte, entrySize(d.maxDepth))
	for i, e := range d.entries {
		encodeEntry(entryBuf, e, hashkey.Sequence(i), d.maxDepth)
		buf.Write(entryBuf)
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())

	w := bufio.NewWriter(f)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("directory: write %s: %w", path, err)
	}
	if err := binary.Write(w, binary.LittleEndian, sum); err != nil {
		return fmt.Errorf("directory: write checksum to %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("directory: flush %s: %w", path, err)
	}
	return f.Sync()
}

// entrySize is the fixed on-disk size of one directory entry: local_depth
// (4 bytes) + D ASCII sequence characters + NUL + bucket_ref (8 bytes).
func entrySize(maxDepth int) int {
	return 4 + maxDepth + 1 + 8
}

func encodeEntry(dst []byte, e Entry, seq hashkey.Sequence, maxDepth int) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(e.LocalDepth))
	copy(dst[4:4+maxDepth], []byte(seq.String(maxDepth)))
	dst[4+maxDepth] = 0
	binary.LittleEndian.PutUint64(dst[4+maxDepth+1:4+maxDepth+1+8], uint64(e.BucketRef))
}

// Load reads and validates a directory file written by Save, checking the
// magic, the encoding variant, and the trailing checksum before trusting
// any entry.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read %s: %w", path, err)
	}
	if len(raw) < 4+1+4+4+8+4 {
		return nil, fmt.Errorf("%w: %s is too short to hold a header", ErrCorrupt, path)
	}
	if !bytes.Equal(raw[0:4], magic[:]) {
		return nil, fmt.Errorf("%w: %s has wrong magic", ErrCorrupt, path)
	}
	encoding := raw[4]
	if encoding != encodingASCII {
		return nil, fmt.Errorf("%w: %s uses unsupported encoding variant %d", ErrCorrupt, path, encoding)
	}

	body := raw[:len(raw)-4]
	wantSum := binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if gotSum := crc32.ChecksumIEEE(body); gotSum != wantSum {
		return nil, fmt.Errorf("%w: %s failed checksum", ErrCorrupt, path)
	}

	r := bytes.NewReader(raw[5:])
	var currentDepth, maxDepth uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &currentDepth); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &maxDepth); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	if maxDepth == 0 || maxDepth > hashkey.MaxDepth {
		return nil, fmt.Errorf("%w: %s declares D=%d out of range", ErrCorrupt, path, maxDepth)
	}
	if currentDepth > maxDepth {
		return nil, fmt.Errorf("%w: %s has global_depth_current %d > D %d", ErrCorrupt, path, currentDepth, maxDepth)
	}
	if count != uint64(1)<<currentDepth {
		return nil, fmt.Errorf("%w: %s entry count %d does not match 2^%d", ErrCorrupt, path, count, currentDepth)
	}

	size := entrySize(int(maxDepth))
	entryBuf := make([]byte, size)
	entries := make([]Entry, count)
	for i := range entries {
		if _, err := io.ReadFull(r, entryBuf); err != nil {
			return nil, fmt.Errorf("%w: %s: entry %d: %v", ErrCorrupt, path, i, err)
		}
		e, err := decodeEntry(entryBuf, int(maxDepth))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: entry %d: %v", ErrCorrupt, path, i, err)
		}
		if e.LocalDepth > int(currentDepth) {
			return nil, fmt.Errorf("%w: %s: entry %d local depth %d exceeds global depth %d", ErrCorrupt, path, i, e.LocalDepth, currentDepth)
		}
		entries[i] = e
	}

	return &Directory{
		maxDepth:     int(maxDepth),
		currentDepth: int(currentDepth),
		entries:      entries,
	}, nil
}

func decodeEntry(buf []byte, maxDepth int) (Entry, error) {
	localDepth := binary.LittleEndian.Uint32(buf[0:4])
	nulAt := 4 + maxDepth
	if buf[nulAt] != 0 {
		return Entry{}, fmt.Errorf("sequence field missing NUL terminator")
	}
	for _, c := range buf[4:nulAt] {
		if c != '0' && c != '1' {
			return Entry{}, fmt.Errorf("sequence field has non-binary character %q", c)
		}
	}
	bucketRef := int64(binary.LittleEndian.Uint64(buf[nulAt+1 : nulAt+1+8]))
	return Entry{LocalDepth: int(localDepth), BucketRef: bucketRef}, nil
}
