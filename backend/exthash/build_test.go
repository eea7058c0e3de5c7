package exthash_test

import (
	"path/filepath"
	"testing"

	"exthash/backend/exthash"
	"exthash/backend/recfile"
)

// TestBuildSkipsRemovedRecords exercises Build: reading the caller's
// record file sequentially and inserting every non-removed record.
func TestBuildSkipsRemovedRecords(t *testing.T) {
	dir := t.TempDir()
	rf, err := recfile.Create(filepath.Join(dir, "t.rec"), 8)
	if err != nil {
		t.Fatalf("recfile.Create: %v", err)
	}
	defer rf.Close()

	var refs []int64
	for _, k := range []uint64{1, 2, 3} {
		ref, err := rf.Append(keyRecord(k))
		if err != nil {
			t.Fatalf("Append(%d): %v", k, err)
		}
		refs = append(refs, ref)
	}
	if err := rf.MarkRemoved(refs[1]); err != nil { // drop key 2
		t.Fatalf("MarkRemoved: %v", err)
	}

	cfg := scenarioConfig()
	// The record now carries a leading tombstone byte (recfile's own
	// convention); widen the record size and re-project past it.
	cfg.RecordSize = rf.RecordSize()
	cfg.Project = func(record []byte) []byte { return recfile.Payload(record) }

	ix, err := exthash.CreateIndex(filepath.Join(dir, "t.ehash"), filepath.Join(dir, "t.ehashdir"), cfg)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	defer ix.Close()

	if err := ix.Build(recfile.NewCursor(rf)); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, k := range []uint64{1, 3} {
		got, err := ix.Search(keyRecord(k))
		if err != nil {
			t.Fatalf("Search(%d): %v", k, err)
		}
		if len(got) != 1 {
			t.Fatalf("search(%d) = %v, want one record", k, got)
		}
	}

	got, err := ix.Search(keyRecord(2))
	if err != nil {
		t.Fatalf("Search(2): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("search(2) = %v, want empty (record was removed before Build)", got)
	}
}
