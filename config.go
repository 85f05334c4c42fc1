// config.go: configuration knobs, validation and size/duration parsing.

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the recognised options: pool sizing, ring length,
// ingestion cut-off and writer queue depth.
//
// String-based fields (PoolCapacityStr, SegmentDurationStr) are
// preferred over their numeric equivalents and are parsed once by
// Validate. Zero RotateStallDeadline, FileMode, RetryCount and RetryDelay
// fall back to the package defaults; zero or negative pool capacity,
// MaxPools, SegmentDuration and WriterQueueCapacity are rejected.
type Config struct {
	// BasePath is the directory pool_NNN.bin files live under. Created if
	// missing.
	BasePath string `json:"base_path"`

	// PoolCapacityBytes is the size in bytes of one slot's data region,
	// excluding the 64-byte pool header. Default 512MiB.
	PoolCapacityBytes int64 `json:"pool_capacity_bytes"`

	// PoolCapacityStr is a string-based alternative to PoolCapacityBytes,
	// e.g. "512MB", "1GB". Takes precedence when set.
	PoolCapacityStr string `json:"pool_capacity_str"`

	// MaxPools is the ring length. Default 20.
	MaxPools int `json:"max_pools"`

	// SegmentDuration is the ingestion cut-off: how long an ingestion
	// adapter accumulates bytes before cutting a segment. Default 60s.
	SegmentDuration time.Duration `json:"segment_duration"`

	// SegmentDurationStr is a string-based alternative, e.g. "60s", "1m".
	SegmentDurationStr string `json:"segment_duration_str"`

	// WriterQueueCapacity is the bound on the global writer's FIFO.
	// Default 256.
	WriterQueueCapacity int `json:"writer_queue_capacity"`

	// RotateStallDeadline is how long Rotate waits for readers to release
	// a target slot before proceeding anyway. Default 5s.
	RotateStallDeadline time.Duration `json:"rotate_stall_deadline"`

	// ErrorCallback is invoked for non-fatal errors encountered by the
	// pool and the writer: storage I/O failures, oversized
	// segments, torn records, corrupt pool headers and rotate stalls. A
	// nil callback is a safe no-op.
	ErrorCallback func(op string, err error)

	// FileMode is the permission bits used when creating pool files.
	// Default 0644.
	FileMode os.FileMode `json:"file_mode"`

	// RetryCount/RetryDelay govern RetryFileOperation for transient I/O
	// errors opening pool files for writing. Defaults 3 / 10ms.
	RetryCount int           `json:"retry_count"`
	RetryDelay time.Duration `json:"retry_delay"`

	// WriterID optionally fixes the correlation id included in every
	// writer error callback and returned by GlobalWriter.ID. A zero value
	// causes NewGlobalWriter to generate one.
	WriterID uuid.UUID `json:"-"`

	poolCapacityResolved int64
}

// DefaultConfig returns a Config with sensible defaults applied, ready to
// pass to OpenChunkPool / NewGlobalWriter after setting BasePath.
func DefaultConfig(basePath string) *Config {
	return &Config{
		BasePath:            basePath,
		PoolCapacityBytes:   512 * 1024 * 1024,
		MaxPools:            20,
		SegmentDuration:     60 * time.Second,
		WriterQueueCapacity: 256,
		RotateStallDeadline: 5 * time.Second,
		FileMode:            0644,
		RetryCount:          3,
		RetryDelay:          10 * time.Millisecond,
	}
}

// Validate resolves string-based knobs and rejects zero/negative values.
// It must be called (OpenChunkPool calls it itself; NewGlobalWriter does
// not) before the resolved fields (PoolCapacity) are read.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("%w: base path is empty", ErrConfigInvalid)
	}
	if err := validatePathLength(c.BasePath); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	capacity := c.PoolCapacityBytes
	if c.PoolCapacityStr != "" {
		v, err := ParseSize(c.PoolCapacityStr)
		if err != nil {
			return fmt.Errorf("%w: invalid pool capacity %q: %v", ErrConfigInvalid, c.PoolCapacityStr, err)
		}
		capacity = v
	}
	if capacity <= 0 {
		return fmt.Errorf("%w: pool capacity must be positive, got %d", ErrConfigInvalid, capacity)
	}
	c.poolCapacityResolved = capacity

	if c.MaxPools <= 0 {
		return fmt.Errorf("%w: max pools must be positive, got %d", ErrConfigInvalid, c.MaxPools)
	}

	duration := c.SegmentDuration
	if c.SegmentDurationStr != "" {
		d, err := ParseDuration(c.SegmentDurationStr)
		if err != nil {
			return fmt.Errorf("%w: invalid segment duration %q: %v", ErrConfigInvalid, c.SegmentDurationStr, err)
		}
		duration = d
	}
	if duration <= 0 {
		return fmt.Errorf("%w: segment duration must be positive, got %s", ErrConfigInvalid, duration)
	}
	c.SegmentDuration = duration

	if c.WriterQueueCapacity <= 0 {
		return fmt.Errorf("%w: writer queue capacity must be positive, got %d", ErrConfigInvalid, c.WriterQueueCapacity)
	}
	if c.RotateStallDeadline <= 0 {
		c.RotateStallDeadline = 5 * time.Second
	}
	if c.FileMode == 0 {
		c.FileMode = 0644
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Millisecond
	}

	return nil
}

// PoolCapacity returns the resolved pool capacity in bytes. Only valid
// after Validate returns nil.
func (c *Config) PoolCapacity() int64 {
	return c.poolCapacityResolved
}

func (c *Config) reportError(op string, err error) {
	if c.ErrorCallback != nil {
		c.ErrorCallback(op, err)
	}
}

// ParseSize converts size strings like "100MB", "1GB" to bytes. Supports
// case-insensitive input and single-letter units (K, M, G, T).
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		return val, nil
	}

	s = strings.ToUpper(s)

	var multiplier int64
	var numStr string

	switch {
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "TB"):
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = s[:len(s)-1]
	default:
		return 0, fmt.Errorf("unknown size suffix in %q (supported: KB/K, MB/M, GB/G, TB/T)", s)
	}

	val, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number in %q: %v", s, err)
	}

	result := val * multiplier
	if result < 0 {
		return 0, fmt.Errorf("size %q too large", s)
	}

	return result, nil
}

// ParseDuration converts duration strings like "7d", "24h" to
// time.Duration. Supports Go durations plus day/week/year extensions.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	s = strings.ToLower(s)

	var multiplier time.Duration
	var numStr string

	switch {
	case strings.HasSuffix(s, "d"):
		multiplier = 24 * time.Hour
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "w"):
		multiplier = 7 * 24 * time.Hour
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "y"):
		multiplier = 365 * 24 * time.Hour
		numStr = s[:len(s)-1]
	default:
		return 0, fmt.Errorf("unknown duration suffix in %q", s)
	}

	val, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration number in %q: %v", s, err)
	}

	return time.Duration(val) * multiplier, nil
}

// validatePathLength checks if the path length is within OS limits.
func validatePathLength(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %v", err)
	}

	pathLen := len(absPath)

	switch runtime.GOOS {
	case "windows":
		if pathLen > 260 {
			return fmt.Errorf("path too long for Windows: %d characters (limit: 260)", pathLen)
		}
	default:
		if pathLen > 4096 {
			return fmt.Errorf("path too long: %d characters (limit: 4096)", pathLen)
		}
	}

	return nil
}

// RetryFileOperation executes a file operation with retry logic for
// cross-platform reliability: antivirus scans and indexing services can
// transiently lock files on Windows, and overlay filesystems in
// containers can surface spurious errors under load.
func RetryFileOperation(operation func() error, retryCount int, retryDelay time.Duration) error {
	if retryCount <= 0 {
		retryCount = 3
	}
	if retryDelay <= 0 {
		retryDelay = 10 * time.Millisecond
	}

	var lastErr error
	for i := 0; i < retryCount; i++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if i < retryCount-1 {
			time.Sleep(retryDelay)
		}
	}

	return fmt.Errorf("operation failed after %d retries: %v", retryCount, lastErr)
}
