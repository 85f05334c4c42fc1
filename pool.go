// pool.go: ChunkPool — the on-disk ring of pre-allocated pool files.
// Operations are broken into small named helpers (openOrCreateSlot,
// preallocate, rotate, writePoolHeader), and file opens for writing go
// through RetryFileOperation for cross-platform write reliability on
// networked or contended filesystems.

package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	atomicfile "github.com/natefinch/atomic"
	timecache "github.com/agilira/go-timecache"

	"github.com/onurtuna/oasisnvr/storagemetrics"
)

// SegmentLocation identifies the physical location of a segment in the
// pool.
type SegmentLocation struct {
	PoolIdx      int
	PoolID       uint64
	RecordOffset int64
	RecordSize   int64
}

// ScannedRecord is what Scan/ScanAll recover from a sequential pass over a
// pool file's body.
type ScannedRecord struct {
	CameraID string
	StartTS  int64
	EndTS    int64
	Location SegmentLocation
}

// slotState is the in-memory mutable state of one ring slot: poolID and
// bytesUsed, each guarded by its own lock so that a rotation stalling on
// one slot never blocks a read of any other slot.
type slotState struct {
	mu        sync.RWMutex
	poolID    uint64
	bytesUsed int64
}

// ChunkPool manages MaxPools pre-allocated binary pool files under
// BasePath. Slot paths are fixed at Open and never change. Each slot's
// poolID/bytesUsed is guarded by its own lock; writeIdx is accessed
// atomically. This means Status/PoolID/PoolPath/ReadSegmentData calls for
// a slot never wait on a rotation happening on a different slot, and only
// briefly wait on the rotating slot itself — never for the rotate-stall
// deadline, since stall-waiting happens before the target slot's lock is
// taken.
type ChunkPool struct {
	cfg      *Config
	capacity int64

	paths []string
	slots []slotState

	writeIdx atomic.Int32
	writeMu  sync.Mutex // serializes Append/Rotate against each other

	Guards  *ReadGuardRegistry
	Metrics *storagemetrics.Collector

	tc *timecache.TimeCache
}

// SetMetrics attaches a metrics collector so rotation and stall counters
// are reported; also wires it through to the guard registry. Call before
// any concurrent Append/rotation activity starts.
func (p *ChunkPool) SetMetrics(m *storagemetrics.Collector) {
	p.Metrics = m
	p.Guards.SetMetrics(m)
}

// OpenChunkPool opens (or creates and pre-allocates) all pool files under
// cfg.BasePath.
func OpenChunkPool(cfg *Config) (*ChunkPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, newStorageError("create_dir", -1, err)
	}

	tc := timecache.NewWithResolution(time.Millisecond)

	p := &ChunkPool{
		cfg:      cfg,
		capacity: cfg.PoolCapacity(),
		paths:    make([]string, cfg.MaxPools),
		slots:    make([]slotState, cfg.MaxPools),
		Guards:   NewReadGuardRegistry(cfg.MaxPools),
		tc:       tc,
	}

	bestIdx := -1
	var bestPoolID uint64
	anyValidHeader := false

	for i := 0; i < cfg.MaxPools; i++ {
		path := p.slotPath(i)
		p.paths[i] = path

		bytesUsed, poolID, hadValidHeader, err := p.openOrCreateSlot(path, uint64(i))
		if err != nil {
			return nil, err
		}
		p.slots[i].poolID = poolID
		p.slots[i].bytesUsed = bytesUsed

		if hadValidHeader {
			anyValidHeader = true
			if bestIdx == -1 || poolID > bestPoolID || (poolID == bestPoolID && i < bestIdx) {
				bestIdx = i
				bestPoolID = poolID
			}
		}
	}

	if !anyValidHeader {
		bestIdx = 0
		if err := p.writePoolHeader(0); err != nil {
			return nil, err
		}
	}
	p.writeIdx.Store(int32(bestIdx))

	return p, nil
}

func (p *ChunkPool) slotPath(idx int) string {
	return filepath.Join(p.cfg.BasePath, fmt.Sprintf("pool_%03d.bin", idx))
}

// openOrCreateSlot creates and preallocates path if absent (a new slot's
// pool_id is its slot index), or adopts the header and scans for
// bytesUsed if present. A present-but-corrupt or wrong-size header adopts
// pool_id=0, not the slot index, since it carries no trustworthy
// generation of its own.
func (p *ChunkPool) openOrCreateSlot(path string, newSlotPoolID uint64) (bytesUsed int64, poolID uint64, hadValidHeader bool, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if !os.IsNotExist(statErr) {
			return 0, 0, false, newStorageError("stat_slot", -1, statErr)
		}
		if createErr := p.preallocate(path); createErr != nil {
			return 0, 0, false, createErr
		}
		return 0, newSlotPoolID, false, nil
	}

	total := poolHeaderSize + p.capacity
	if info.Size() != total {
		// Existing file with the wrong size: treat as corrupt, truncate
		// and re-preallocate rather than risk misreading offsets. pool_id
		// adopts 0, not the slot index.
		if createErr := p.preallocate(path); createErr != nil {
			return 0, 0, false, createErr
		}
		return 0, 0, false, nil
	}

	header, used, recovered, scanErr := p.readHeaderAndScan(path)
	if scanErr != nil {
		p.cfg.reportError("open_scan", scanErr)
	}
	_ = recovered
	if !header.valid {
		return 0, 0, false, nil
	}
	return used, header.poolID, true, nil
}

// preallocate creates path (or truncates an existing foreign file) to the
// full 64+capacity length, zero-filled. It writes no pool header; the
// slot's pool_id is decided by the caller.
func (p *ChunkPool) preallocate(path string) error {
	total := poolHeaderSize + p.capacity
	var f *os.File
	err := RetryFileOperation(func() error {
		var openErr error
		f, openErr = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, p.cfg.FileMode)
		return openErr
	}, p.cfg.RetryCount, p.cfg.RetryDelay)
	if err != nil {
		return newStorageError("preallocate_open", -1, err)
	}
	defer f.Close()

	if err := f.Truncate(total); err != nil {
		return newStorageError("preallocate_truncate", -1, err)
	}
	return nil
}

type scannedHeader struct {
	valid  bool
	poolID uint64
}

// readHeaderAndScan reads the 64-byte header and, if valid, scans the body
// to recover bytesUsed and the set of intact records.
func (p *ChunkPool) readHeaderAndScan(path string) (scannedHeader, int64, []ScannedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return scannedHeader{}, 0, nil, newStorageError("open_for_scan", -1, err)
	}
	defer f.Close()

	hdrBuf := make([]byte, poolHeaderSize)
	if _, err := io.ReadFull(f, hdrBuf); err != nil {
		return scannedHeader{}, 0, nil, fmt.Errorf("%w: %v", ErrCorruptPoolHeader, err)
	}
	hdr, ok, err := decodePoolHeader(hdrBuf)
	if err != nil {
		return scannedHeader{}, 0, nil, err
	}
	if !ok {
		return scannedHeader{}, 0, nil, fmt.Errorf("%w: %s", ErrCorruptPoolHeader, path)
	}

	records, used, scanErr := scanBody(f, p.capacity)
	return scannedHeader{valid: true, poolID: hdr.PoolID}, used, records, scanErr
}

// scanBody walks the body of an already-open, header-validated pool file
// starting at offset poolHeaderSize, stopping at the first non-NREC magic
// or the first record whose declared length would overflow capacity.
func scanBody(f *os.File, capacity int64) ([]ScannedRecord, int64, error) {
	var records []ScannedRecord
	var used int64

	hdrBuf := make([]byte, recordHeaderSize)
	for {
		offset := int64(poolHeaderSize) + used
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return records, used, err
		}
		n, err := io.ReadFull(f, hdrBuf)
		if err != nil || n < recordHeaderSize {
			// Short read at this point means fewer than a record
			// header's worth of bytes remain in the file; not an error.
			break
		}
		rh, ok, err := decodeRecordHeader(hdrBuf)
		if err != nil {
			return records, used, err
		}
		if !ok {
			break
		}
		recordSize := int64(recordHeaderSize) + int64(rh.DataLen)
		if used+recordSize > capacity {
			return records, used, ErrTornRecord
		}
		records = append(records, ScannedRecord{
			CameraID: rh.CameraID,
			StartTS:  rh.StartTS,
			EndTS:    rh.EndTS,
			Location: SegmentLocation{RecordOffset: offset, RecordSize: recordSize},
		})
		used += recordSize
	}
	return records, used, nil
}

// writePoolHeader rewrites slot idx's 64-byte header via an atomic
// replace-by-rename (github.com/natefinch/atomic), so a crash mid-write
// can never leave a torn magic/pool_id that would mislead the next open's
// "adopt this slot" logic.
func (p *ChunkPool) writePoolHeader(idx int) error {
	slot := &p.slots[idx]
	path := p.paths[idx]

	slot.mu.RLock()
	poolID := slot.poolID
	slot.mu.RUnlock()

	createdAt := p.tc.CachedTime().Unix()
	buf := encodePoolHeader(poolID, createdAt)

	// The header occupies only the first 64 bytes of a much larger
	// pre-allocated file; atomic.WriteFile replaces the whole file, so we
	// must read-modify-write the body alongside it rather than truncate
	// the slot down to just the header.
	body, err := p.readBodyBeyondHeader(path)
	if err != nil {
		return err
	}

	full := make([]byte, 0, poolHeaderSize+len(body))
	full = append(full, buf...)
	full = append(full, body...)

	if err := atomicfile.WriteFile(path, bytes.NewReader(full)); err != nil {
		return newStorageError("write_pool_header", idx, err)
	}
	return nil
}

func (p *ChunkPool) readBodyBeyondHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make([]byte, p.capacity), nil
		}
		return nil, newStorageError("read_body", -1, err)
	}
	defer f.Close()

	if _, err := f.Seek(poolHeaderSize, io.SeekStart); err != nil {
		return nil, newStorageError("seek_body", -1, err)
	}
	body := make([]byte, p.capacity)
	n, err := io.ReadFull(f, body)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, newStorageError("read_body", -1, err)
	}
	if int64(n) < p.capacity {
		// Pad out to full capacity; this only happens for a freshly
		// truncated/foreign file being adopted.
		clear(body[n:])
	}
	return body, nil
}

// Append writes one record to the current slot, rotating first if it
// would not fit. Only the writer ever calls Append/Rotate (writeMu
// serializes them against each other); readers never take writeMu and so
// are never blocked by a rotation in progress on some other slot.
func (p *ChunkPool) Append(cameraID string, startTS, endTS time.Time, data []byte) (SegmentLocation, error) {
	recordSize := int64(recordHeaderSize) + int64(len(data))
	if recordSize > p.capacity {
		return SegmentLocation{}, fmt.Errorf("%w: record %d bytes > pool capacity %d bytes", ErrOversizedSegment, recordSize, p.capacity)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	idx := int(p.writeIdx.Load())
	slot := &p.slots[idx]

	slot.mu.RLock()
	used := slot.bytesUsed
	slot.mu.RUnlock()

	if used+recordSize > p.capacity {
		newIdx, err := p.rotate(idx)
		if err != nil {
			return SegmentLocation{}, err
		}
		idx = newIdx
		slot = &p.slots[idx]
	}

	slot.mu.Lock()
	offset := int64(poolHeaderSize) + slot.bytesUsed
	poolID := slot.poolID
	slot.mu.Unlock()

	buf := make([]byte, recordHeaderSize+len(data))
	encodeRecordHeader(buf, cameraID, startTS.Unix(), endTS.Unix(), uint32(len(data)))
	copy(buf[recordHeaderSize:], data)

	if err := p.writeAt(p.paths[idx], offset, buf); err != nil {
		return SegmentLocation{}, err
	}

	slot.mu.Lock()
	slot.bytesUsed += recordSize
	slot.mu.Unlock()

	return SegmentLocation{
		PoolIdx:      idx,
		PoolID:       poolID,
		RecordOffset: offset,
		RecordSize:   recordSize,
	}, nil
}

func (p *ChunkPool) writeAt(path string, offset int64, buf []byte) error {
	var f *os.File
	err := RetryFileOperation(func() error {
		var openErr error
		f, openErr = os.OpenFile(path, os.O_WRONLY, p.cfg.FileMode)
		return openErr
	}, p.cfg.RetryCount, p.cfg.RetryDelay)
	if err != nil {
		return newStorageError("append_open", -1, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return newStorageError("append_seek", -1, err)
	}
	if _, err := f.Write(buf); err != nil {
		return newStorageError("append_write", -1, err)
	}
	return nil
}

// rotate advances past slot curIdx into the next slot, waiting up to
// cfg.RotateStallDeadline for outstanding readers on that target slot to
// clear before overwriting it. The wait only ever blocks on the target
// slot's reader count (a lock-free atomic check) — it never holds any
// slot's lock, so Status/PoolID/ReadSegmentData calls against any slot
// (including the one being rotated into) are free to proceed until the
// instant the rotation actually mutates that slot's state. Callers must
// already hold p.writeMu.
func (p *ChunkPool) rotate(curIdx int) (int, error) {
	next := (curIdx + 1) % len(p.slots)

	deadline := time.Now().Add(p.cfg.RotateStallDeadline)
	for p.Guards.HasReaders(next) {
		if time.Now().After(deadline) {
			p.cfg.reportError("rotate_stall", fmt.Errorf("%w: slot %d", ErrRotateStall, next))
			if p.Metrics != nil {
				p.Metrics.RotateStallCount.Inc()
			}
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	numSlots := uint64(len(p.slots))
	targetSlot := &p.slots[next]
	targetSlot.mu.Lock()
	targetSlot.poolID += numSlots
	targetSlot.bytesUsed = 0
	targetSlot.mu.Unlock()

	if p.Metrics != nil {
		p.Metrics.RotationCount.Inc()
	}
	if err := p.writePoolHeader(next); err != nil {
		return curIdx, err
	}
	p.writeIdx.Store(int32(next))
	return next, nil
}

// Rotate exposes rotate for callers that need to force a rotation
// independent of Append's fullness check. It does not evict index entries
// for the target slot.
func (p *ChunkPool) Rotate() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.rotate(int(p.writeIdx.Load()))
	return err
}

// Scan reads all intact records from one slot without mutating pool
// state. Used only at open/recovery time.
func (p *ChunkPool) Scan(slotIdx int) ([]ScannedRecord, error) {
	slot := &p.slots[slotIdx]
	slot.mu.RLock()
	poolID := slot.poolID
	slot.mu.RUnlock()

	_, records, _, err := p.scanSlotFile(p.paths[slotIdx], slotIdx, poolID)
	return records, err
}

func (p *ChunkPool) scanSlotFile(path string, slotIdx int, poolID uint64) (int64, []ScannedRecord, bool, error) {
	header, used, records, err := p.readHeaderAndScan(path)
	if err != nil && !header.valid {
		// Corrupt/missing header yields no records.
		return 0, nil, false, nil
	}
	for i := range records {
		records[i].Location.PoolIdx = slotIdx
		records[i].Location.PoolID = poolID
	}
	return used, records, true, err
}

// ScanAll scans every slot and returns the concatenation sorted by
// (pool_id, record_offset) — total temporal write-order across rotations.
func (p *ChunkPool) ScanAll() ([]ScannedRecord, error) {
	var all []ScannedRecord
	for i := range p.slots {
		slot := &p.slots[i]
		slot.mu.RLock()
		poolID := slot.poolID
		slot.mu.RUnlock()

		_, records, _, err := p.scanSlotFile(p.paths[i], i, poolID)
		if err != nil && err != ErrTornRecord {
			p.cfg.reportError("scan_all", newStorageError("scan_slot", i, err))
			continue
		}
		if err == ErrTornRecord {
			p.cfg.reportError("scan_all", fmt.Errorf("%w: slot %d", ErrTornRecord, i))
		}
		all = append(all, records...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Location.PoolID != all[j].Location.PoolID {
			return all[i].Location.PoolID < all[j].Location.PoolID
		}
		return all[i].Location.RecordOffset < all[j].Location.RecordOffset
	})
	return all, nil
}

// ReadSegmentData reads the payload at loc. The caller is responsible for
// holding a read guard on loc.PoolIdx for the duration of the call; this
// method does not acquire one implicitly.
func (p *ChunkPool) ReadSegmentData(loc SegmentLocation) ([]byte, error) {
	f, err := os.Open(p.paths[loc.PoolIdx])
	if err != nil {
		return nil, newStorageError("read_open", loc.PoolIdx, err)
	}
	defer f.Close()

	payloadLen := loc.RecordSize - recordHeaderSize
	if payloadLen < 0 {
		return nil, fmt.Errorf("storage: invalid record size %d", loc.RecordSize)
	}
	buf := make([]byte, payloadLen)
	if _, err := f.ReadAt(buf, loc.RecordOffset+recordHeaderSize); err != nil {
		return nil, newStorageError("read_at", loc.PoolIdx, err)
	}
	return buf, nil
}

// Status returns the current write slot index, bytes used in that slot,
// and the pool capacity. Only touches the current write slot's own lock,
// so it is never blocked by a rotation happening on any other slot.
func (p *ChunkPool) Status() (writeIdx int, bytesUsed int64, capacity int64) {
	idx := int(p.writeIdx.Load())
	slot := &p.slots[idx]
	slot.mu.RLock()
	defer slot.mu.RUnlock()
	return idx, slot.bytesUsed, p.capacity
}

// PoolCount returns the ring length, fixed at Open.
func (p *ChunkPool) PoolCount() int {
	return len(p.slots)
}

// PoolPath returns the on-disk path of slot idx. Paths are immutable
// after Open, so this never locks.
func (p *ChunkPool) PoolPath(idx int) string {
	return p.paths[idx]
}

// PoolID returns the current generation number of slot idx, taking only
// that slot's own lock.
func (p *ChunkPool) PoolID(idx int) uint64 {
	slot := &p.slots[idx]
	slot.mu.RLock()
	defer slot.mu.RUnlock()
	return slot.poolID
}
