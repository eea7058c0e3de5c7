package recfile

import "fmt"

// Cursor sequentially walks a File's slots in offset order. Its Next
// method satisfies exthash.RecordSource structurally, without recfile
// importing the exthash package: the index depends on a callable into the
// record file, not the reverse.
type Cursor struct {
	file *File
	pos  int64
}

// NewCursor starts a cursor at the first slot of file.
func NewCursor(file *File) *Cursor {
	return &Cursor{file: file}
}

// Next returns the next (ref, record, removed) triple, or ok=false once
// every slot has been yielded.
func (c *Cursor) Next() (recordRef int64, record []byte, removed bool, ok bool, err error) {
	if c.pos >= c.file.count {
		return 0, nil, false, false, nil
	}
	ref := c.pos * c.file.slotSize
	rec, err := c.file.ReadAt(ref)
	if err != nil {
		return 0, nil, false, false, fmt.Errorf("recfile: cursor at slot %d: %w", c.pos, err)
	}
	c.pos++
	return ref, rec, IsRemoved(rec), true, nil
}
