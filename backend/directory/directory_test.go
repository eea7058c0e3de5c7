package directory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"exthash/backend/hashkey"
)

func TestNewSingleEntry(t *testing.T) {
	d, err := New(3, 0)
	require.NoError(t, err)
	require.Equal(t, 0, d.CurrentDepth())
	require.Equal(t, 1, d.Len())
	require.Equal(t, int64(0), d.Lookup(hashkey.Sequence(5)))
}

func TestNewRejectsBadDepth(t *testing.T) {
	_, err := New(0, 0)
	require.Error(t, err)
}

func TestDoubleDuplicatesEntries(t *testing.T) {
	d, err := New(4, 10)
	require.NoError(t, err)
	require.NoError(t, d.Double())
	require.Equal(t, 1, d.CurrentDepth())
	require.Equal(t, 2, d.Len())
	require.Equal(t, int64(10), d.EntryAt(0).BucketRef)
	require.Equal(t, int64(10), d.EntryAt(1).BucketRef)
}

func TestSplitPartitionsByBit(t *testing.T) {
	d, err := New(4, 10)
	require.NoError(t, err)
	require.NoError(t, d.Double())

	// local depth 0 -> 1 split at bit 0: even index stays on 10, odd moves to 20.
	require.NoError(t, d.Split(10, 0, 20))
	require.Equal(t, Entry{LocalDepth: 1, BucketRef: 10}, d.EntryAt(0))
	require.Equal(t, Entry{LocalDepth: 1, BucketRef: 20}, d.EntryAt(1))
}

func TestSplitRequiresDoublingWhenAtCurrentDepth(t *testing.T) {
	d, err := New(4, 10)
	require.NoError(t, err)

	// local depth 0 == current depth 0: caller must Double first per contract.
	require.Error(t, d.Split(10, 0, 20))
	require.NoError(t, d.Double())
	require.NoError(t, d.Split(10, 0, 20))
}

func TestMergeReversesSplit(t *testing.T) {
	d, err := New(4, 10)
	require.NoError(t, err)
	require.NoError(t, d.Double())
	require.NoError(t, d.Split(10, 0, 20))
	require.NoError(t, d.Merge(10, 20, 0))

	for i := 0; i < d.Len(); i++ {
		require.Equal(t, Entry{LocalDepth: 0, BucketRef: 10}, d.EntryAt(i), "entry %d", i)
	}
	require.True(t, d.CanHalve(), "twins should agree after merge")
	d.Halve()
	require.Equal(t, 0, d.CurrentDepth())
	require.Equal(t, 1, d.Len())
}

func TestCanHalveFalseWhenTwinsDisagree(t *testing.T) {
	d, err := New(4, 10)
	require.NoError(t, err)
	require.NoError(t, d.Double())
	require.NoError(t, d.Split(10, 0, 20))
	require.False(t, d.CanHalve(), "twins disagree, CanHalve should be false")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	d, err := New(8, 1024)
	require.NoError(t, err)
	require.NoError(t, d.Double())
	require.NoError(t, d.Split(1024, 0, 2048))

	path := filepath.Join(t.TempDir(), "test.ehashdir")
	require.NoError(t, d.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, d.CurrentDepth(), loaded.CurrentDepth())
	require.Equal(t, d.MaxDepth(), loaded.MaxDepth())
	require.Equal(t, d.Len(), loaded.Len())
	for i := 0; i < d.Len(); i++ {
		require.Equal(t, d.EntryAt(i), loaded.EntryAt(i), "entry %d", i)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ehashdir")
	require.NoError(t, writeRaw(path, []byte("not a directory file at all, long enough")))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsTamperedChecksum(t *testing.T) {
	d, err := New(4, 7)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "test.ehashdir")
	require.NoError(t, d.Save(path))

	raw := readRaw(t, path)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, writeRaw(path, raw))

	_, err = Load(path)
	require.Error(t, err)
}
