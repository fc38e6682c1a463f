// Package config holds runtime configuration and the tuning constants for
// the ingestion pipeline and the in-memory view.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Tuning defaults. Centralising the magic numbers here keeps the rest of
// the codebase clean and makes tuning straightforward.
const (
	// DefaultPageSize is the number of raw handles requested per cursor
	// page. Larger pages reduce query round-trips; 200 balances memory
	// and throughput.
	DefaultPageSize = 200

	// CursorWaitTimeout bounds a single cursor wait so the reader can
	// re-check cancellation instead of blocking indefinitely.
	CursorWaitTimeout = 1 * time.Second

	// DefaultMaxRecordsPerChannel caps how many records one channel may
	// yield per load. Acts as a safety valve against channels with
	// millions of entries.
	DefaultMaxRecordsPerChannel = 500_000

	// DeliveryChannelCapacity bounds the batch conduit between the
	// coordinator worker and the consumer. Bounded to apply back-pressure
	// when the consumer falls behind.
	DeliveryChannelCapacity = 256

	// MaxRetryAttempts is the retry budget for transient source errors.
	MaxRetryAttempts = 3

	// RetryBaseDelay is the base for exponential backoff on transient
	// errors. Sequence: 50ms -> 100ms -> 200ms.
	RetryBaseDelay = 50 * time.Millisecond

	// FilterDebounceDelay is how long text-field edits settle before the
	// expensive filter recompute runs.
	FilterDebounceDelay = 150 * time.Millisecond

	// TailInterval is the pause between live-tail polls.
	TailInterval = 5 * time.Second

	// MaxErrors caps the retained per-channel error list; oldest entries
	// are dropped beyond this.
	MaxErrors = 200

	// MaxIDRangeSpan caps how many IDs a single "lo-hi" range token may
	// expand to.
	MaxIDRangeSpan = 100_000

	// RenderBufferSize is the initial reusable render buffer size. The
	// buffer grows on demand and is reused across records in a channel.
	RenderBufferSize = 16 * 1024
)

// MaxTotalRecordsCap is the absolute bound on records held in memory.
// Live tail appends without clearing, so a busy system could otherwise
// exhaust memory over a long session. Generous (4x the per-channel max)
// so a plain full load never trims.
const MaxTotalRecordsCap = DefaultMaxRecordsPerChannel * 4

// Config holds runtime configuration. Environment variables override file
// values, and command-line flags override both.
type Config struct {
	Channels             []string `json:"channels"`
	ArchivePath          string   `json:"archive_path"`
	PageSize             int      `json:"page_size"`
	MaxRecordsPerChannel int      `json:"max_records_per_channel"`
	MetricsAddr          string   `json:"metrics_addr"`
	PresetPath           string   `json:"preset_path"`
	Verbose              bool     `json:"verbose"`
}

// Load reads an optional JSON config file then applies environment
// overrides. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			b, err := os.ReadFile(path)
			if err != nil {
				return cfg, err
			}
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)
	cfg.normalize()
	return cfg, nil
}

// DefaultPresetPath is where named filter presets live unless the
// config file, EVENTSCOPE_PRESETS or -presets points elsewhere.
const DefaultPresetPath = "eventscope.presets.json"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Channels:             []string{"Application", "System"},
		PageSize:             DefaultPageSize,
		MaxRecordsPerChannel: DefaultMaxRecordsPerChannel,
		PresetPath:           DefaultPresetPath,
	}
}

func (c *Config) normalize() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxRecordsPerChannel <= 0 {
		c.MaxRecordsPerChannel = DefaultMaxRecordsPerChannel
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("EVENTSCOPE_ARCHIVE"); v != "" {
		cfg.ArchivePath = v
	}
	if v := os.Getenv("EVENTSCOPE_PAGE_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.PageSize = i
		}
	}
	if v := os.Getenv("EVENTSCOPE_MAX_RECORDS_PER_CHANNEL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.MaxRecordsPerChannel = i
		}
	}
	if v := os.Getenv("EVENTSCOPE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("EVENTSCOPE_PRESETS"); v != "" {
		cfg.PresetPath = v
	}
}
