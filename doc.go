// Package storage is the storage core of a multi-camera network video
// recorder: a shared, append-only ring of pre-allocated binary pool files
// into which many concurrent MPEG-TS recording streams are multiplexed by a
// single writer, plus the in-memory index that maps (camera, time-range) to
// physical record locations.
//
// # Quick start
//
// Open a pool, spawn the writer, hand out the writer's request channel to
// per-camera ingestion adapters:
//
//	cfg := storage.DefaultConfig("/var/lib/nvr/pool")
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//	pool, err := storage.OpenChunkPool(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	index := storage.NewSegmentIndex()
//
//	writer := storage.NewGlobalWriter(cfg, pool, index, nil)
//	go writer.Run(ctx)
//	defer writer.Close()
//
//	adapter := storage.NewIngestionAdapter("cam1", writer.Requests(), cfg.SegmentDuration)
//	go adapter.Run(ctx)
//
// # On-disk format
//
// base_path/pool_NNN.bin, one fixed-length file per ring slot. Each file is
// a 64-byte header (magic NVRPOOL0, pool_id, created_at, reserved) followed
// by a body of back-to-back records (magic NREC, 16-byte camera id,
// start_ts, end_ts, data_len, payload). See record.go and pool.go for the
// exact byte layout; it is part of this package's compatibility contract —
// any implementation that understands this layout can read a pool written
// by this one.
//
// # Concurrency model
//
// Exactly one GlobalWriter mutates a ChunkPool's slots and a SegmentIndex's
// entries. Readers (export, HLS segment fetch) look up locations in the
// index and acquire a Guard from the pool's ReadGuardRegistry before
// reading, which blocks a Rotate of that slot until every outstanding guard
// on it is released. ReadGuardRegistry itself never blocks a reader — it
// only ever blocks the writer, and only up to a bounded deadline.
//
// # Configuration knobs
//
// PoolCapacityBytes (default 512MiB): size of one slot's data region.
// MaxPools (default 20): ring length. SegmentDuration (default 60s):
// ingestion cut-off. WriterQueueCapacity (default 256): bounded FIFO depth.
// Sizes accept the same string shorthand as ParseSize ("512MB", "1GB", ...)
// and durations accept the same shorthand as ParseDuration ("60s", "5m",
// "1h", "7d", ...).
//
// # Error handling
//
// ChunkPool and GlobalWriter report non-fatal failures (storage I/O
// errors, oversized segments, torn records, corrupt headers, rotate
// stalls) through Config.ErrorCallback(op string, err error) instead of a
// logging dependency, so callers can route them into whatever structured
// logger they already run. A nil callback is a safe no-op.
package storage
