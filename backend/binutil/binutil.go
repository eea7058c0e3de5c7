// Package binutil holds small fixed-width binary I/O helpers: a
// WriteFixedNumber/ReadFixedNumber pair plus a hex dumper for debug
// logging, over raw bytes rather than hex strings.
package binutil

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteFixedNumber writes v as a fixed-width little-endian integer of
// byteWidth bytes (1, 2, 4, or 8) to w.
func WriteFixedNumber(w io.Writer, v int64, byteWidth int) error {
	buf, err := encodeFixedNumber(v, byteWidth)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("binutil: write fixed number: %w", err)
	}
	return nil
}

// ReadFixedNumber reads a byteWidth-byte little-endian integer from r.
func ReadFixedNumber(r io.Reader, byteWidth int) (int64, error) {
	buf := make([]byte, byteWidth)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, fmt.Errorf("binutil: read fixed number: %w", err)
	}
	return decodeFixedNumber(buf)
}

func encodeFixedNumber(v int64, byteWidth int) ([]byte, error) {
	buf := make([]byte, byteWidth)
	switch byteWidth {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	default:
		return nil, fmt.Errorf("binutil: unsupported fixed number width %d", byteWidth)
	}
	return buf, nil
}

func decodeFixedNumber(buf []byte) (int64, error) {
	switch len(buf) {
	case 1:
		return int64(buf[0]), nil
	case 2:
		return int64(binary.LittleEndian.Uint16(buf)), nil
	case 4:
		return int64(binary.LittleEndian.Uint32(buf)), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(buf)), nil
	default:
		return 0, fmt.Errorf("binutil: unsupported fixed number width %d", len(buf))
	}
}

// FormatBytes renders buf as space-separated uppercase hex pairs, for
// debug logging.
func FormatBytes(buf []byte) string {
	out := make([]byte, 0, len(buf)*3)
	const hex = "0123456789ABCDEF"
	for i, b := range buf {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hex[b>>4], hex[b&0x0F])
	}
	return string(out)
}
