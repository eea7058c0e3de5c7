package recfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.rec")
	f, err := Create(path, 8)
	require.NoError(t, err)
	defer f.Close()

	ref, err := f.Append([]byte("12345678"))
	require.NoError(t, err)
	require.Equal(t, int64(0), ref)

	rec, err := f.ReadAt(ref)
	require.NoError(t, err)
	require.False(t, IsRemoved(rec), "freshly appended record should not be removed")
	require.Equal(t, "12345678", string(Payload(rec)))
}

func TestMarkRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.rec")
	f, err := Create(path, 4)
	require.NoError(t, err)
	defer f.Close()

	ref, err := f.Append([]byte("abcd"))
	require.NoError(t, err)
	require.NoError(t, f.MarkRemoved(ref))

	rec, err := f.ReadAt(ref)
	require.NoError(t, err)
	require.True(t, IsRemoved(rec), "expected record to read back as removed")
}

func TestCursorSkipsNothingButReportsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.rec")
	f, err := Create(path, 4)
	require.NoError(t, err)
	defer f.Close()

	refA, err := f.Append([]byte("aaaa"))
	require.NoError(t, err)
	_, err = f.Append([]byte("bbbb"))
	require.NoError(t, err)
	require.NoError(t, f.MarkRemoved(refA))

	cur := NewCursor(f)
	var seen int
	for {
		ref, _, removed, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen++
		if ref == refA {
			require.True(t, removed, "expected the marked slot to report removed=true")
		}
	}
	require.Equal(t, 2, seen)
}

func TestOpenRejectsMisalignedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rec")
	f, err := Create(path, 4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Append one stray byte so the file size is no longer a multiple of
	// the slot size.
	require.NoError(t, appendStrayByte(path))

	_, err = Open(path, 4)
	require.Error(t, err)
}
