package storage

import (
	"context"
	"testing"
	"time"
)

func TestIngestionAdapterFlushesOnDeadline(t *testing.T) {
	requests := make(chan WriteRequest, 4)
	adapter := NewIngestionAdapter("cam0", requests, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapter.Run(ctx)

	if err := adapter.Submit(ctx, []byte("abc")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := adapter.Submit(ctx, []byte("def")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case req := <-requests:
		if req.CameraID != "cam0" {
			t.Fatalf("unexpected camera id %q", req.CameraID)
		}
		if string(req.Data) != "abcdef" {
			t.Fatalf("expected accumulated data \"abcdef\", got %q", req.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flushed segment")
	}
}

func TestIngestionAdapterFlushesPartialBufferOnShutdown(t *testing.T) {
	requests := make(chan WriteRequest, 4)
	adapter := NewIngestionAdapter("cam1", requests, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go adapter.Run(ctx)

	if err := adapter.Submit(ctx, []byte("partial")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	cancel()

	select {
	case req := <-requests:
		if string(req.Data) != "partial" {
			t.Fatalf("expected flushed partial buffer, got %q", req.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shutdown flush")
	}
}

func TestIngestionAdapterDoesNotFlushEmptyBuffer(t *testing.T) {
	requests := make(chan WriteRequest, 1)
	adapter := NewIngestionAdapter("cam2", requests, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapter.Run(ctx)

	select {
	case req := <-requests:
		t.Fatalf("expected no request for an empty buffer, got %+v", req)
	case <-time.After(100 * time.Millisecond):
	}
}
