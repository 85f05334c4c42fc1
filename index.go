// index.go: in-memory segment index mapping (camera, time range) to
// physical record locations, kept under a single RWMutex.

package storage

import "sync"

// Segment is one indexed entry: a camera's recording window plus where to
// find its bytes. SegmentID is a per-process monotonic id assigned by
// Insert/RebuildFromScanned; it is not stable across process restarts.
type Segment struct {
	SegmentID uint64
	CameraID  string
	StartTS   int64
	EndTS     int64
	Location  SegmentLocation
}

// SegmentIndex tracks every live segment across all pool slots, in
// insertion order per camera, so range queries can be answered without
// touching disk.
type SegmentIndex struct {
	mu     sync.RWMutex
	all    []Segment
	nextID uint64
}

// NewSegmentIndex returns an empty index.
func NewSegmentIndex() *SegmentIndex {
	return &SegmentIndex{}
}

// Insert records a newly-written segment, allocating its SegmentID from the
// index's monotonic counter. Called by the writer immediately after a
// successful ChunkPool.Append. Returns the allocated id.
func (x *SegmentIndex) Insert(seg Segment) uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	id := x.nextID
	x.nextID++
	seg.SegmentID = id
	x.all = append(x.all, seg)
	return id
}

// EvictPool drops every indexed segment located in poolIdx, called by the
// writer just before that slot is overwritten by rotation. Eviction is by
// slot index alone: any entry still pointing at that slot is about to be
// stale regardless of which generation wrote it.
func (x *SegmentIndex) EvictPool(poolIdx int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	kept := x.all[:0]
	for _, seg := range x.all {
		if seg.Location.PoolIdx == poolIdx {
			continue
		}
		kept = append(kept, seg)
	}
	x.all = kept
}

// SegmentsForCamera returns every indexed segment for cameraID, in
// insertion (temporal) order.
func (x *SegmentIndex) SegmentsForCamera(cameraID string) []Segment {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []Segment
	for _, seg := range x.all {
		if seg.CameraID == cameraID {
			out = append(out, seg)
		}
	}
	return out
}

// SegmentsInRange returns segments for cameraID overlapping the half-open
// window [from, to): a segment matches when start_ts < to && end_ts > from.
func (x *SegmentIndex) SegmentsInRange(cameraID string, from, to int64) []Segment {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []Segment
	for _, seg := range x.all {
		if seg.CameraID != cameraID {
			continue
		}
		if seg.StartTS < to && seg.EndTS > from {
			out = append(out, seg)
		}
	}
	return out
}

// AllSegments returns every indexed segment across all cameras, in
// insertion order. Used by recovery/status diagnostics.
func (x *SegmentIndex) AllSegments() []Segment {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]Segment, len(x.all))
	copy(out, x.all)
	return out
}

// Len returns the number of indexed segments.
func (x *SegmentIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.all)
}

// IsEmpty reports whether the index currently holds no segments.
func (x *SegmentIndex) IsEmpty() bool {
	return x.Len() == 0
}

// RebuildFromScanned replaces the index contents with the segments
// recovered by ChunkPool.ScanAll, called once during the writer's
// Recovering-to-Running transition. Segment ids are reassigned from 0 in
// the given (temporal) order; they do not carry over from before restart.
func (x *SegmentIndex) RebuildFromScanned(records []ScannedRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.all = make([]Segment, 0, len(records))
	x.nextID = 0
	for _, rec := range records {
		x.all = append(x.all, Segment{
			SegmentID: x.nextID,
			CameraID:  rec.CameraID,
			StartTS:   rec.StartTS,
			EndTS:     rec.EndTS,
			Location:  rec.Location,
		})
		x.nextID++
	}
}
