package log

import "go.uber.org/zap"

// BackendKind selects the storage backend a Config builds, per spec.md §6.
type BackendKind string

const (
	BackendMemory BackendKind = "memory"
	BackendFile   BackendKind = "file"
)

// DurabilityPolicy controls when fsync is called on the active segment's
// store, per spec.md §4.5/§6.
type DurabilityPolicy string

const (
	// DurabilityNone never calls fsync explicitly; data survives process
	// crashes but not OS/power loss until the kernel flushes it.
	DurabilityNone DurabilityPolicy = "none"
	// DurabilityBatch fsyncs after every accepted append/append_batch call.
	DurabilityBatch DurabilityPolicy = "batch"
	// DurabilityInterval fsyncs on a background timer, per FsyncIntervalMs.
	DurabilityInterval DurabilityPolicy = "interval"
)

// Config holds the configuration for a FlashQ storage engine instance.
// Defaults mirror spec.md §6; the teacher's narrower Segment-only Config is
// generalized here to cover the backend, batching, and durability knobs the
// full spec requires, plus an ambient-stack Logger field (teacher repos in
// this pack thread a *zap.Logger through their Config rather than using a
// package-global logger).
type Config struct {
	Kind BackendKind
	// DataDir is the root directory for the file backend. Unused by the
	// memory backend.
	DataDir string

	Segment struct {
		// MaxBytes is the size at which an active segment is sealed and a
		// new one rolled, spec.md §4.3. Default 134,217,728 (128 MiB).
		MaxBytes uint64
		// IndexIntervalBytes is the minimum number of store bytes written
		// between sparse index entries, spec.md §4.2. Default 4,096.
		IndexIntervalBytes uint64
	}

	// MaxBatchBytes bounds the serialized size of one append_batch call,
	// spec.md §4.1/§7 (ErrBatchTooLarge). Default 8,388,608 (8 MiB).
	MaxBatchBytes uint64

	// Durability selects the fsync policy, spec.md §4.5. Default "batch".
	Durability DurabilityPolicy
	// FsyncIntervalMs is the background fsync period when Durability is
	// "interval". Default 100.
	FsyncIntervalMs uint64

	// FDCachePerPartition bounds how many sealed segments' file handles a
	// partition keeps open concurrently, spec.md §5. Default 64.
	FDCachePerPartition int

	// MaxPartitionsPerTopic caps partitions per topic (Open Question,
	// decided in SPEC_FULL.md: configurable, default 1024).
	MaxPartitionsPerTopic int

	// Logger receives structured diagnostic events. Defaults to a no-op
	// logger so embedding applications are not forced to configure zap.
	Logger *zap.Logger
}

// DefaultConfig returns a Config with every default from spec.md §6 applied.
func DefaultConfig() Config {
	var c Config
	c.Kind = BackendFile
	c.Segment.MaxBytes = 128 * 1024 * 1024
	c.Segment.IndexIntervalBytes = 4096
	c.MaxBatchBytes = 8 * 1024 * 1024
	c.Durability = DurabilityBatch
	c.FsyncIntervalMs = 100
	c.FDCachePerPartition = 64
	c.MaxPartitionsPerTopic = 1024
	c.Logger = zap.NewNop()
	return c
}

// withDefaults fills any zero-valued fields of c with DefaultConfig's
// values, so callers can supply a partially populated Config.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Kind == "" {
		c.Kind = d.Kind
	}
	if c.Segment.MaxBytes == 0 {
		c.Segment.MaxBytes = d.Segment.MaxBytes
	}
	if c.Segment.IndexIntervalBytes == 0 {
		c.Segment.IndexIntervalBytes = d.Segment.IndexIntervalBytes
	}
	if c.MaxBatchBytes == 0 {
		c.MaxBatchBytes = d.MaxBatchBytes
	}
	if c.Durability == "" {
		c.Durability = d.Durability
	}
	if c.FsyncIntervalMs == 0 {
		c.FsyncIntervalMs = d.FsyncIntervalMs
	}
	if c.FDCachePerPartition == 0 {
		c.FDCachePerPartition = d.FDCachePerPartition
	}
	if c.MaxPartitionsPerTopic == 0 {
		c.MaxPartitionsPerTopic = d.MaxPartitionsPerTopic
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}

// indexCapacityBytes sizes an index file so it can hold one entry per
// IndexIntervalBytes of a full segment, rounded up.
func (c Config) indexCapacityBytes() uint64 {
	entries := c.Segment.MaxBytes/c.Segment.IndexIntervalBytes + 1
	return entries * offsetIndexEntryWidth
}

func (c Config) timeIndexCapacityBytes() uint64 {
	entries := c.Segment.MaxBytes/c.Segment.IndexIntervalBytes + 1
	return entries * timeIndexEntryWidth
}
