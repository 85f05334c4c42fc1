package storage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func seg(camera string, start, end int64, poolIdx int) Segment {
	return Segment{
		CameraID: camera,
		StartTS:  start,
		EndTS:    end,
		Location: SegmentLocation{PoolIdx: poolIdx, RecordOffset: start},
	}
}

// P4: evict_pool removes exactly the entries pointing at that slot.
func TestSegmentIndexEvictPool(t *testing.T) {
	idx := NewSegmentIndex()
	idx.Insert(seg("cam0", 0, 10, 0))
	idx.Insert(seg("cam0", 10, 20, 1))
	idx.Insert(seg("cam1", 0, 10, 0))

	idx.EvictPool(0)

	if idx.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", idx.Len())
	}
	for _, s := range idx.AllSegments() {
		if s.Location.PoolIdx == 0 {
			t.Fatalf("found entry still pointing at evicted slot: %+v", s)
		}
	}
}

func TestSegmentIndexSegmentsForCamera(t *testing.T) {
	idx := NewSegmentIndex()
	idx.Insert(seg("cam0", 0, 10, 0))
	idx.Insert(seg("cam1", 0, 10, 0))
	idx.Insert(seg("cam0", 10, 20, 0))

	got := idx.SegmentsForCamera("cam0")

	want0 := seg("cam0", 0, 10, 0)
	want0.SegmentID = 0
	want1 := seg("cam0", 10, 20, 0)
	want1.SegmentID = 2
	want := []Segment{want0, want1}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected segments (-want +got):\n%s", diff)
	}
}

// S6: half-open overlap semantics.
func TestSegmentIndexSegmentsInRangeHalfOpen(t *testing.T) {
	idx := NewSegmentIndex()
	idx.Insert(seg("cam1", 0, 10, 0))  // [0,10)
	idx.Insert(seg("cam1", 10, 20, 0)) // [10,20)
	idx.Insert(seg("cam1", 20, 30, 0)) // [20,30)

	got := idx.SegmentsInRange("cam1", 10, 20)
	if len(got) != 1 {
		t.Fatalf("expected exactly the middle segment, got %d entries: %+v", len(got), got)
	}
	if got[0].StartTS != 10 || got[0].EndTS != 20 {
		t.Fatalf("unexpected segment returned: %+v", got[0])
	}
}

func TestSegmentIndexSegmentsInRangeExcludesTouchingEndpoints(t *testing.T) {
	idx := NewSegmentIndex()
	idx.Insert(seg("cam1", 0, 10, 0))
	idx.Insert(seg("cam1", 20, 30, 0))

	got := idx.SegmentsInRange("cam1", 10, 20)
	if len(got) != 0 {
		t.Fatalf("expected no segments touching only the endpoints, got %+v", got)
	}
}

func TestSegmentIndexRebuildFromScanned(t *testing.T) {
	idx := NewSegmentIndex()
	idx.Insert(seg("stale", 0, 1, 0))
	idx.Insert(seg("stale", 1, 2, 0))

	records := []ScannedRecord{
		{CameraID: "cam0", StartTS: 0, EndTS: 10, Location: SegmentLocation{PoolIdx: 0, RecordOffset: 64}},
		{CameraID: "cam1", StartTS: 0, EndTS: 10, Location: SegmentLocation{PoolIdx: 0, RecordOffset: 140}},
	}
	idx.RebuildFromScanned(records)

	if idx.Len() != 2 {
		t.Fatalf("expected 2 entries after rebuild, got %d", idx.Len())
	}
	if got := idx.SegmentsForCamera("stale"); len(got) != 0 {
		t.Fatalf("expected rebuild to discard prior entries, found %+v", got)
	}

	all := idx.AllSegments()
	if all[0].SegmentID != 0 || all[1].SegmentID != 1 {
		t.Fatalf("expected rebuild to reassign segment_ids from 0, got %+v", all)
	}

	// A subsequent Insert after rebuild continues from the reset counter,
	// not from the pre-rebuild high-water mark.
	nextID := idx.Insert(seg("cam2", 20, 30, 0))
	if nextID != 2 {
		t.Fatalf("expected next segment_id 2 after rebuild of 2 records, got %d", nextID)
	}
}

func TestSegmentIndexEmpty(t *testing.T) {
	idx := NewSegmentIndex()
	if !idx.IsEmpty() {
		t.Fatalf("expected new index to be empty")
	}
	idx.Insert(seg("cam0", 0, 1, 0))
	if idx.IsEmpty() {
		t.Fatalf("expected non-empty index after insert")
	}
}
