package bucketstore

import (
	"encoding/binary"
	"fmt"
)

// EndOfChain is the sentinel Next value for the tail of an overflow chain.
const EndOfChain int64 = -1

// offsetFieldSize is sizeof(offset) in the capacity formula:
// M = floor((B - 2*sizeof(offset)) / R).
const offsetFieldSize = 8

// Bucket is one fixed-size block of the hash file: a record heap slot plus
// overflow-chain bookkeeping.
type Bucket struct {
	Records [][]byte // live records only; len(Records) == Size
	Next    int64    // offset of next block in the overflow chain, or EndOfChain
}

// Layout describes the fixed geometry derived from block size B and record
// size R.
type Layout struct {
	BlockSize  int64
	RecordSize int64
	Capacity   int64 // M: records per bucket block
}

// NewLayout validates B and R and derives M, rejecting a record size that
// cannot fit in a single block.
func NewLayout(blockSize, recordSize int64) (Layout, error) {
	if recordSize <= 0 {
		return Layout{}, fmt.Errorf("bucketstore: record size must be positive, got %d", recordSize)
	}
	usable := blockSize - 2*offsetFieldSize
	if usable < recordSize {
		return Layout{}, fmt.Errorf("bucketstore: record size %d does not fit a %d-byte block (usable %d)", recordSize, blockSize, usable)
	}
	return Layout{
		BlockSize:  blockSize,
		RecordSize: recordSize,
		Capacity:   usable / recordSize,
	}, nil
}

// Encode renders b into a Layout.BlockSize-byte block: size at [0,8),
// records at [8, 8+M*R), next at [B-8, B). Bytes between the last record
// and the Next field are zeroed padding.
func (l Layout) Encode(b Bucket) ([]byte, error) {
	if int64(len(b.Records)) > l.Capacity {
		return nil, fmt.Errorf("bucketstore: bucket has %d records, capacity is %d", len(b.Records), l.Capacity)
	}
	buf := make([]byte, l.BlockSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(b.Records)))

	recordArea := buf[8 : 8+l.Capacity*l.RecordSize]
	for i, rec := range b.Records {
		if int64(len(rec)) != l.RecordSize {
			return nil, fmt.Errorf("bucketstore: record %d has length %d, want %d", i, len(rec), l.RecordSize)
		}
		copy(recordArea[int64(i)*l.RecordSize:], rec)
	}

	binary.LittleEndian.PutUint64(buf[l.BlockSize-8:l.BlockSize], uint64(b.Next))
	return buf, nil
}

// Decode parses a Layout.BlockSize-byte block written by Encode.
func (l Layout) Decode(buf []byte) (Bucket, error) {
	if int64(len(buf)) != l.BlockSize {
		return Bucket{}, fmt.Errorf("bucketstore: block has length %d, want %d", len(buf), l.BlockSize)
	}
	size := int64(binary.LittleEndian.Uint64(buf[0:8]))
	if size < 0 || size > l.Capacity {
		return Bucket{}, fmt.Errorf("%w: bucket size %d out of range [0,%d]", ErrCorruptBucket, size, l.Capacity)
	}

	recordArea := buf[8 : 8+l.Capacity*l.RecordSize]
	records := make([][]byte, size)
	for i := int64(0); i < size; i++ {
		rec := make([]byte, l.RecordSize)
		copy(rec, recordArea[i*l.RecordSize:(i+1)*l.RecordSize])
		records[i] = rec
	}

	next := int64(binary.LittleEndian.Uint64(buf[l.BlockSize-8 : l.BlockSize]))
	if next != EndOfChain && (next < 0 || next%l.BlockSize != 0) {
		return Bucket{}, fmt.Errorf("%w: bucket next offset %d is not a valid block offset", ErrCorruptBucket, next)
	}

	return Bucket{Records: records, Next: next}, nil
}
