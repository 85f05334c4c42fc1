// writer.go: GlobalWriter — the single-writer FIFO drain loop.
//
// The state machine (Init -> Recovering -> Running -> Draining -> Stopped)
// follows a background goroutine owning exclusive mutable state while
// readers only ever touch it through narrow, already-synchronised
// accessors.

package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/onurtuna/oasisnvr/storagemetrics"
)

// WriterState is one of the states in the GlobalWriter lifecycle.
type WriterState int32

const (
	WriterInit WriterState = iota
	WriterRecovering
	WriterRunning
	WriterDraining
	WriterStopped
)

func (s WriterState) String() string {
	switch s {
	case WriterInit:
		return "init"
	case WriterRecovering:
		return "recovering"
	case WriterRunning:
		return "running"
	case WriterDraining:
		return "draining"
	case WriterStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WriteRequest is what a per-camera IngestionAdapter sends to the global
// writer's bounded FIFO.
type WriteRequest struct {
	CameraID string
	StartTS  time.Time
	EndTS    time.Time
	Data     []byte

	// CorrelationID ties a request back to the writer's error-callback
	// report if its append fails. Metrics carry no correlation id.
	CorrelationID uuid.UUID
}

// GlobalWriter drains WriteRequests from a single bounded channel and
// appends them to the pool, evicting stale index entries ahead of any
// rotation a request will trigger.
type GlobalWriter struct {
	pool    *ChunkPool
	index   *SegmentIndex
	cfg     *Config
	metrics *storagemetrics.Collector

	id uuid.UUID

	requests chan WriteRequest
	state    atomic.Int32

	doneOnce sync.Once
	done     chan struct{}
}

// NewGlobalWriter constructs a writer over pool/index. Callers obtain the
// send side via Requests() and hand clones of it to each
// IngestionAdapter, then call Run in its own goroutine.
func NewGlobalWriter(cfg *Config, pool *ChunkPool, index *SegmentIndex, metrics *storagemetrics.Collector) *GlobalWriter {
	id := cfg.WriterID
	if id == uuid.Nil {
		id = uuid.New()
	}
	w := &GlobalWriter{
		pool:     pool,
		index:    index,
		cfg:      cfg,
		metrics:  metrics,
		id:       id,
		requests: make(chan WriteRequest, cfg.WriterQueueCapacity),
		done:     make(chan struct{}),
	}
	w.state.Store(int32(WriterInit))
	return w
}

// Requests returns the send side of the writer's bounded FIFO. Senders
// block once it fills, giving ingestion the required back-pressure.
func (w *GlobalWriter) Requests() chan<- WriteRequest {
	return w.requests
}

// State returns the writer's current lifecycle state.
func (w *GlobalWriter) State() WriterState {
	return WriterState(w.state.Load())
}

// Run executes the writer loop until ctx is cancelled or Close is called.
// It performs the Recovering->Running scan exactly once before accepting
// any requests.
func (w *GlobalWriter) Run(ctx context.Context) error {
	w.state.Store(int32(WriterRecovering))

	records, err := w.pool.ScanAll()
	if err != nil {
		w.cfg.reportError("writer_recover", fmt.Errorf("writer %s: %w", w.id, err))
	}
	w.index.RebuildFromScanned(records)
	if w.metrics != nil {
		w.metrics.RecoveredSegments.Set(float64(len(records)))
	}

	w.state.Store(int32(WriterRunning))

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case <-w.done:
			w.drain()
			return nil
		case req, ok := <-w.requests:
			if !ok {
				w.state.Store(int32(WriterStopped))
				return nil
			}
			w.handle(req)
		}
	}
}

// drain empties any requests already queued before fully stopping, so a
// Close does not silently discard segments still sitting in the channel
// buffer.
func (w *GlobalWriter) drain() {
	w.state.Store(int32(WriterDraining))
	for {
		select {
		case req := <-w.requests:
			w.handle(req)
		default:
			w.state.Store(int32(WriterStopped))
			return
		}
	}
}

// handle appends one request to the pool and updates the index, evicting
// the slot about to be overwritten before the append that triggers
// rotation actually happens: status-check -> evict -> append -> insert.
func (w *GlobalWriter) handle(req WriteRequest) {
	if w.metrics != nil {
		w.metrics.QueueDepth.Set(float64(len(w.requests)))
	}

	writeIdx, used, capacity := w.pool.Status()
	recordSize := int64(recordHeaderSize) + int64(len(req.Data))
	if used+recordSize > capacity {
		nextIdx := (writeIdx + 1) % w.pool.PoolCount()
		w.index.EvictPool(nextIdx)
	}

	loc, err := w.pool.Append(req.CameraID, req.StartTS, req.EndTS, req.Data)
	if err != nil {
		w.cfg.reportError("writer_append", fmt.Errorf("writer %s, request %s: %w", w.id, req.CorrelationID, err))
		if w.metrics != nil {
			w.metrics.WriteErrors.Inc()
		}
		return
	}

	w.index.Insert(Segment{
		CameraID: req.CameraID,
		StartTS:  req.StartTS.Unix(),
		EndTS:    req.EndTS.Unix(),
		Location: loc,
	})

	if w.metrics != nil {
		w.metrics.SegmentsWritten.Inc()
		w.metrics.BytesWritten.Add(float64(len(req.Data)))
		_, newUsed, newCap := w.pool.Status()
		w.metrics.PoolFillRatio.Set(float64(newUsed) / float64(newCap))
	}
}

// Close signals the writer loop to drain its queue and stop. Safe to call
// more than once.
func (w *GlobalWriter) Close() {
	w.doneOnce.Do(func() {
		close(w.done)
	})
}

// ID returns the writer's correlation id, included in error callbacks
// from this writer instance. Metrics are not tagged with it.
func (w *GlobalWriter) ID() uuid.UUID {
	return w.id
}
