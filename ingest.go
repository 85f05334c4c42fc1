// ingest.go: IngestionAdapter — per-camera accumulate-then-flush loop. No
// camera protocol or reconnect supervision here, just the
// accumulate/deadline/flush shape feeding a WriteRequest into the global
// writer's channel.

package storage

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
)

// IngestionAdapter accumulates raw bytes submitted for one camera and
// flushes them as a single WriteRequest whenever SegmentDuration elapses
// since the first byte of the current segment.
type IngestionAdapter struct {
	cameraID        string
	requests        chan<- WriteRequest
	segmentDuration time.Duration

	submit chan []byte
	closed chan struct{}
}

// NewIngestionAdapter returns an adapter that flushes accumulated segments
// to requests under cameraID. requests is typically GlobalWriter.Requests().
func NewIngestionAdapter(cameraID string, requests chan<- WriteRequest, segmentDuration time.Duration) *IngestionAdapter {
	return &IngestionAdapter{
		cameraID:        cameraID,
		requests:        requests,
		segmentDuration: segmentDuration,
		submit:          make(chan []byte),
		closed:          make(chan struct{}),
	}
}

// Submit hands a raw buffer to the adapter's accumulation loop. Blocks
// until Run's loop is ready to receive it (or ctx is cancelled), which is
// the adapter's own back-pressure boundary.
func (a *IngestionAdapter) Submit(ctx context.Context, data []byte) error {
	select {
	case a.submit <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.closed:
		return errClosed
	}
}

// Run drives the accumulate/deadline/flush loop until ctx is cancelled.
// Any bytes accumulated when the loop exits are flushed once more before
// returning; that last request is dropped only if the requests channel is
// full at that moment.
func (a *IngestionAdapter) Run(ctx context.Context) {
	var buf bytes.Buffer
	segStart := time.Now()
	timer := time.NewTimer(a.segmentDuration)
	defer timer.Stop()

	flush := func(end time.Time) {
		if buf.Len() == 0 {
			return
		}
		data := make([]byte, buf.Len())
		copy(data, buf.Bytes())
		buf.Reset()

		req := WriteRequest{
			CameraID:      a.cameraID,
			StartTS:       segStart,
			EndTS:         end,
			Data:          data,
			CorrelationID: uuid.New(),
		}
		// Try the send on its own first: on shutdown ctx is already done,
		// and a two-way select would pick between the cases at random.
		select {
		case a.requests <- req:
		default:
			select {
			case a.requests <- req:
			case <-ctx.Done():
			}
		}
		segStart = time.Now()
	}

	for {
		select {
		case <-ctx.Done():
			flush(time.Now())
			close(a.closed)
			return
		case data := <-a.submit:
			if buf.Len() == 0 {
				segStart = time.Now()
				timer.Reset(a.segmentDuration)
			}
			buf.Write(data)
		case now := <-timer.C:
			flush(now)
			timer.Reset(a.segmentDuration)
		}
	}
}

// CameraID returns the camera this adapter accumulates segments for.
func (a *IngestionAdapter) CameraID() string {
	return a.cameraID
}
