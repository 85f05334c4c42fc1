package storage

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
	if cfg.PoolCapacity() != 512*1024*1024 {
		t.Fatalf("unexpected resolved pool capacity: %d", cfg.PoolCapacity())
	}
}

func TestConfigValidateRejectsNonPositiveKnobs(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
	}{
		{"zero pool capacity", func(c *Config) { c.PoolCapacityBytes = 0 }},
		{"negative max pools", func(c *Config) { c.MaxPools = -1 }},
		{"zero segment duration", func(c *Config) { c.SegmentDuration = 0 }},
		{"zero writer queue capacity", func(c *Config) { c.WriterQueueCapacity = 0 }},
		{"empty base path", func(c *Config) { c.BasePath = "" }},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(t.TempDir())
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
				t.Fatalf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestConfigValidateResolvesStringKnobs(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.PoolCapacityStr = "256MB"
	cfg.SegmentDurationStr = "30s"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.PoolCapacity() != 256*1024*1024 {
		t.Fatalf("expected 256MB resolved, got %d", cfg.PoolCapacity())
	}
	if cfg.SegmentDuration != 30*time.Second {
		t.Fatalf("expected 30s resolved, got %s", cfg.SegmentDuration)
	}
}

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"1024":  1024,
		"1KB":   1024,
		"1MB":   1024 * 1024,
		"512MB": 512 * 1024 * 1024,
		"1GB":   1024 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := ParseSize(in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"60s": 60 * time.Second,
		"1m":  time.Minute,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseDuration(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRetryFileOperationSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryFileOperation(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, 5, time.Millisecond)

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}
