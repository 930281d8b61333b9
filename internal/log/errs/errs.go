// Package errs holds the FlashQ storage-engine error taxonomy.
//
// Each error kind is a sentinel comparable with errors.Is, wrapped with
// call-specific context via fmt.Errorf's %w. Structural invariant
// violations (SegmentChainCorrupt, DataDirLocked) are meant to be fatal at
// open time; per-call errors (OffsetOutOfRange, BatchTooLarge, ...) are
// meant to be returned to the caller unchanged.
package errs

import "errors"

var (
	// ErrInvalidName is returned when a topic, group, or partition name
	// fails the validation pattern.
	ErrInvalidName = errors.New("flashq: invalid name")

	// ErrOffsetOutOfRange is returned when a read is requested at an
	// offset past the high water mark or before the earliest retained
	// offset.
	ErrOffsetOutOfRange = errors.New("flashq: offset out of range")

	// ErrBatchTooLarge is returned when a batch's serialized size exceeds
	// the configured max_batch_bytes.
	ErrBatchTooLarge = errors.New("flashq: batch too large")

	// ErrRecordTooLarge is returned when a single record's key, value, or
	// header exceeds its configured size limit.
	ErrRecordTooLarge = errors.New("flashq: record too large")

	// ErrSegmentFull is an internal signal that the active segment cannot
	// accept more data and must be rolled. Callers above the segment
	// manager should never observe this.
	ErrSegmentFull = errors.New("flashq: segment full")

	// ErrSegmentChainCorrupt is returned when segment base offsets have a
	// gap on load. Fatal to partition open.
	ErrSegmentChainCorrupt = errors.New("flashq: segment chain corrupt")

	// ErrIndexKeyNotMonotonic is returned by an index's Insert when the new
	// entry breaks that index's ordering: for the offset index, a key not
	// strictly greater than the previous one; for the time index, a key
	// lower than the previous one or a position not greater than the
	// previous one.
	ErrIndexKeyNotMonotonic = errors.New("flashq: index key not monotonic")

	// ErrDataDirLocked is returned when another process holds the
	// exclusive lock on a data directory.
	ErrDataDirLocked = errors.New("flashq: data directory locked by another process")

	// ErrTooManyPartitions is returned when a topic would exceed its
	// configured partition cap.
	ErrTooManyPartitions = errors.New("flashq: too many partitions for topic")

	// ErrSegmentSealed is returned by write operations on a segment that
	// has already transitioned to Sealed.
	ErrSegmentSealed = errors.New("flashq: segment is sealed")

	// ErrPoisoned is returned by all subsequent writes to a partition
	// after an I/O error has poisoned its active segment.
	ErrPoisoned = errors.New("flashq: partition write path poisoned by prior I/O error")
)
