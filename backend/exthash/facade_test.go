package exthash_test

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"exthash/backend/exthash"
)

// scenarioConfig is a small, deterministic end-to-end configuration:
// D = 3, M = 2, hash = identity on the low 3 bits, key is an integer
// stored as the record's only content.
func scenarioConfig() exthash.Config {
	project := func(record []byte) []byte { return record }
	equal := func(a, b []byte) bool {
		return binary.LittleEndian.Uint64(a) == binary.LittleEndian.Uint64(b)
	}
	identity := func(key []byte) uint64 { return binary.LittleEndian.Uint64(key) }
	return exthash.NewConfig(8, project, equal,
		exthash.WithGlobalDepth(3),
		exthash.WithBlockSize(32), // (32 - 16) / 8 == 2 == M
		exthash.WithHash(identity),
	)
}

func keyRecord(k uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, k)
	return buf
}

func newScenarioIndex(t *testing.T) *exthash.Index {
	t.Helper()
	dir := t.TempDir()
	ix, err := exthash.CreateIndex(filepath.Join(dir, "t.ehash"), filepath.Join(dir, "t.ehashdir"), scenarioConfig())
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func mustSearch(t *testing.T, ix *exthash.Index, k uint64) [][]byte {
	t.Helper()
	got, err := ix.Search(keyRecord(k))
	if err != nil {
		t.Fatalf("Search(%d): %v", k, err)
	}
	return got
}

// Scenario 1: insert keys 0, 1 -> directory: 1 entry depth 0 -> bucket 0
// with [0,1].
func TestScenario1NoSplitNeeded(t *testing.T) {
	ix := newScenarioIndex(t)
	for _, k := range []uint64{0, 1} {
		if err := ix.Insert(keyRecord(k), int64(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	st, err := ix.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.GlobalDepth != 0 || st.DistinctBuckets != 1 {
		t.Fatalf("Stats = %+v, want global_depth=0 buckets=1", st)
	}
	for _, k := range []uint64{0, 1} {
		if len(mustSearch(t, ix, k)) != 1 {
			t.Fatalf("search(%d) did not find the record", k)
		}
	}
}

// Scenario 2: insert 0,1,2 -> overflow triggers first split; directory
// depth becomes 1, two entries, buckets contain {0,2} and {1}.
func TestScenario2FirstSplit(t *testing.T) {
	ix := newScenarioIndex(t)
	for _, k := range []uint64{0, 1, 2} {
		if err := ix.Insert(keyRecord(k), int64(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	st, err := ix.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.GlobalDepth != 1 {
		t.Fatalf("global depth = %d, want 1", st.GlobalDepth)
	}
	for _, k := range []uint64{0, 1, 2} {
		if len(mustSearch(t, ix, k)) != 1 {
			t.Fatalf("search(%d) did not find the record", k)
		}
	}
}

// Scenario 3: insert 0,1,2,3,4 -> two splits, directory depth 2.
func TestScenario3TwoSplits(t *testing.T) {
	ix := newScenarioIndex(t)
	for _, k := range []uint64{0, 1, 2, 3, 4} {
		if err := ix.Insert(keyRecord(k), int64(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	st, err := ix.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.GlobalDepth != 2 {
		t.Fatalf("global depth = %d, want 2", st.GlobalDepth)
	}
	for _, k := range []uint64{0, 1, 2, 3, 4} {
		if len(mustSearch(t, ix, k)) != 1 {
			t.Fatalf("search(%d) did not find the record", k)
		}
	}
}

// Scenario 4: insert 0,8,16 (collide on low 3 bits) -> directory grows to
// depth 3; once splits exhaust, one overflow block chains the third
// record.
func TestScenario4CollisionOverflows(t *testing.T) {
	ix := newScenarioIndex(t)
	for _, k := range []uint64{0, 8, 16} {
		if err := ix.Insert(keyRecord(k), int64(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	st, err := ix.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.GlobalDepth != 3 {
		t.Fatalf("global depth = %d, want 3", st.GlobalDepth)
	}
	if st.ChainLengths[2] == 0 {
		t.Fatalf("expected at least one chain of length 2, got %+v", st.ChainLengths)
	}
	for _, k := range []uint64{0, 8, 16} {
		if len(mustSearch(t, ix, k)) != 1 {
			t.Fatalf("search(%d) did not find the record", k)
		}
	}
}

// Scenario 5: insert 5,13; remove 5 -> search(5) empty, search(13) finds
// its record, compacted into slot 0.
func TestScenario5RemoveCompacts(t *testing.T) {
	ix := newScenarioIndex(t)
	for _, k := range []uint64{5, 13} {
		if err := ix.Insert(keyRecord(k), int64(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	if err := ix.Remove(keyRecord(5)); err != nil {
		t.Fatalf("Remove(5): %v", err)
	}
	if got := mustSearch(t, ix, 5); len(got) != 0 {
		t.Fatalf("search(5) after remove = %v, want empty", got)
	}
	got := mustSearch(t, ix, 13)
	if len(got) != 1 {
		t.Fatalf("search(13) after remove(5) = %v, want one record", got)
	}
}

// Scenario 6: insert 7; close; reopen; search(7) returns the record.
func TestScenario6RoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	hashPath := filepath.Join(dir, "t.ehash")
	dirPath := filepath.Join(dir, "t.ehashdir")
	cfg := scenarioConfig()

	ix, err := exthash.CreateIndex(hashPath, dirPath, cfg)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := ix.Insert(keyRecord(7), 7); err != nil {
		t.Fatalf("Insert(7): %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := exthash.OpenIndex(hashPath, dirPath, cfg)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Search(keyRecord(7))
	if err != nil {
		t.Fatalf("Search(7): %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("search(7) after reopen = %v, want one record", got)
	}
}

func TestDuplicateKeyRejectedInPrimaryMode(t *testing.T) {
	ix := newScenarioIndex(t)
	if err := ix.Insert(keyRecord(1), 1); err != nil {
		t.Fatalf("Insert(1): %v", err)
	}
	err := ix.Insert(keyRecord(1), 1)
	if err == nil {
		t.Fatal("expected DuplicateKey error on second insert of the same key")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	ix := newScenarioIndex(t)
	if err := ix.Insert(keyRecord(9), 9); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Remove(keyRecord(9)); err != nil {
		t.Fatalf("first Remove: %v", err)
	}
	if err := ix.Remove(keyRecord(9)); err != nil {
		t.Fatalf("second Remove (no-op) should not error: %v", err)
	}
	if got := mustSearch(t, ix, 9); len(got) != 0 {
		t.Fatalf("search(9) after double remove = %v, want empty", got)
	}
}

func TestRemoveAbsentKeyIsNoOp(t *testing.T) {
	ix := newScenarioIndex(t)
	if err := ix.Insert(keyRecord(1), 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Remove(keyRecord(99)); err != nil {
		t.Fatalf("Remove(absent): %v", err)
	}
	if got := mustSearch(t, ix, 1); len(got) != 1 {
		t.Fatalf("unrelated key disturbed by removing an absent key: %v", got)
	}
}

// Exercises the boundary behavior of §8: inserting M records with an
// identical local-depth-bit prefix causes no split; one more forces
// exactly one split.
func TestBoundaryExactCapacityThenOneMoreSplits(t *testing.T) {
	ix := newScenarioIndex(t)
	// 0 and 8 share every low-3-bit (both 0 mod 8) so at depth 0 they
	// both belong to the single root bucket and fit exactly at M=2.
	if err := ix.Insert(keyRecord(0), 0); err != nil {
		t.Fatalf("Insert(0): %v", err)
	}
	if err := ix.Insert(keyRecord(8), 8); err != nil {
		t.Fatalf("Insert(8): %v", err)
	}
	st, err := ix.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.GlobalDepth != 0 {
		t.Fatalf("global depth = %d after filling to capacity, want 0 (no split yet)", st.GlobalDepth)
	}

	if err := ix.Insert(keyRecord(1), 1); err != nil {
		t.Fatalf("Insert(1): %v", err)
	}
	st, err = ix.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.GlobalDepth != 1 {
		t.Fatalf("global depth = %d after the overflowing insert, want 1", st.GlobalDepth)
	}
}

func TestRemoveSoleRecordLeavesBucketAllocated(t *testing.T) {
	ix := newScenarioIndex(t)
	if err := ix.Insert(keyRecord(3), 3); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Remove(keyRecord(3)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	st, err := ix.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.DistinctBuckets != 1 {
		t.Fatalf("distinct buckets = %d, want 1 (root bucket stays allocated)", st.DistinctBuckets)
	}
}
