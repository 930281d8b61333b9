package log

import (
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"time"

	"github.com/harshitmahapatra/flashq/internal/log/errs"
	"go.uber.org/zap"
)

// segment is a contiguous run of the partition's log starting at baseOffset,
// backed by a .log store file and two sparse indices (.index, .timeindex).
// Append/Read are generalized here from the teacher's proto-based
// internal/log/segment.go onto FlashQ's record-frame format, and recovery
// (spec.md §4.4) is added since the teacher segment assumed a clean store.
type segment struct {
	dir        string
	baseOffset uint64
	nextOffset uint64
	config     Config

	store     *store
	offsetIdx *offsetIndex
	timeIdx   *timeIndex

	lastTimestampMillis int64
	bytesSinceIndex     uint64
	sealed              bool
}

func segmentLogPath(dir string, baseOffset uint64) string {
	return path.Join(dir, fmt.Sprintf("%020d.log", baseOffset))
}

func segmentIndexPath(dir string, baseOffset uint64) string {
	return path.Join(dir, fmt.Sprintf("%020d.index", baseOffset))
}

func segmentTimeIndexPath(dir string, baseOffset uint64) string {
	return path.Join(dir, fmt.Sprintf("%020d.timeindex", baseOffset))
}

// newSegment opens an existing segment rooted at baseOffset or creates one,
// and runs crash recovery per spec.md §4.4 before returning.
func newSegment(dir string, baseOffset uint64, c Config) (*segment, error) {
	s := &segment{dir: dir, baseOffset: baseOffset, nextOffset: baseOffset, config: c}

	storeFile, err := os.OpenFile(segmentLogPath(dir, baseOffset), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if s.store, err = newStore(storeFile); err != nil {
		return nil, err
	}

	indexFile, err := os.OpenFile(segmentIndexPath(dir, baseOffset), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if s.offsetIdx, err = newOffsetIndex(indexFile, c.indexCapacityBytes()); err != nil {
		return nil, err
	}

	timeIndexFile, err := os.OpenFile(segmentTimeIndexPath(dir, baseOffset), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if s.timeIdx, err = newTimeIndex(timeIndexFile, c.timeIndexCapacityBytes()); err != nil {
		return nil, err
	}

	if err := s.recover(); err != nil {
		return nil, err
	}
	return s, nil
}

// recover scans the store forward from byte 0, verifying offset continuity
// and frame well-formedness, and truncates a torn trailing frame (spec.md
// §4.4). If both indices are non-empty and pass Valid(), they are kept and
// recoverFromIndexTail only re-derives nextOffset and the last timestamp;
// otherwise, or if that scan meets a corrupt frame or an offset gap, both
// indices are rebuilt by recoverFullScan. An index's size is not compared
// with the length of the log. An index rebuild of a non-empty log and any
// truncation of the log are logged at Warn.
func (s *segment) recover() error {
	sizeBefore := s.store.Size()
	defer func() {
		if size := s.store.Size(); size < sizeBefore {
			s.config.Logger.Warn("truncated segment log to its last valid frame",
				zap.String("log", s.store.Name()), zap.Uint64("size_before", sizeBefore), zap.Uint64("size_after", size))
		}
	}()
	if !s.offsetIdx.IsEmpty() && s.offsetIdx.Valid() && !s.timeIdx.IsEmpty() && s.timeIdx.Valid() {
		if ok, err := s.recoverFromIndexTail(); err != nil {
			return err
		} else if ok {
			return nil
		}
	}
	if sizeBefore > 0 {
		s.config.Logger.Warn("rebuilding segment indices from a full log scan", zap.String("log", s.store.Name()))
	}
	return s.recoverFullScan()
}

// recoverFromIndexTail runs when both indices look intact. It decodes the
// store from byte 0 to find the end of valid data and the next offset,
// truncates a torn trailing frame, and leaves the indices as they are.
// Returns ok=false, without truncating, if it meets a frame that fails to
// decode or an offset that does not follow its predecessor, signaling the
// caller to fall back to a full scan.
func (s *segment) recoverFromIndexTail() (ok bool, err error) {
	r, err := s.store.ReaderFrom(0)
	if err != nil {
		return false, err
	}
	pos := uint64(0)
	var lastOffset uint64
	haveLast := false
	for {
		rec, n, rerr := ReadRecordFrame(r)
		if rerr == io.EOF {
			break
		}
		if rerr == io.ErrUnexpectedEOF {
			if err := s.store.Truncate(pos); err != nil {
				return false, err
			}
			break
		}
		if rerr != nil {
			return false, nil
		}
		if haveLast && rec.Offset != lastOffset+1 {
			return false, nil
		}
		lastOffset = rec.Offset
		haveLast = true
		pos += uint64(n)
		s.lastTimestampMillis = rec.Timestamp.UnixMilli()
	}
	if haveLast {
		s.nextOffset = lastOffset + 1
	}
	return true, nil
}

// recoverFullScan decodes the store from byte 0, rebuilding both indices as
// it goes and truncating the store at the first torn or invalid frame.
func (s *segment) recoverFullScan() error {
	s.offsetIdx.Reset()
	s.timeIdx.Reset()
	s.bytesSinceIndex = 0

	r, err := s.store.ReaderFrom(0)
	if err != nil {
		return err
	}

	pos := uint64(0)
	var lastOffset uint64
	haveLast := false
	for {
		rec, n, rerr := ReadRecordFrame(r)
		if rerr == io.EOF {
			break
		}
		if rerr == io.ErrUnexpectedEOF {
			if err := s.store.Truncate(pos); err != nil {
				return err
			}
			break
		}
		if rerr != nil {
			// Corrupt but length-framed-enough to have been read: treat the
			// frame boundary as the valid end, same as a torn tail.
			if err := s.store.Truncate(pos); err != nil {
				return err
			}
			break
		}
		if haveLast && rec.Offset != lastOffset+1 {
			if err := s.store.Truncate(pos); err != nil {
				return err
			}
			break
		}
		if !haveLast || s.bytesSinceIndex >= s.config.Segment.IndexIntervalBytes {
			if err := s.offsetIdx.Insert(uint32(rec.Offset-s.baseOffset), uint32(pos)); err != nil {
				return err
			}
			if err := s.timeIdx.Insert(rec.Timestamp.UnixMilli(), uint32(pos)); err != nil {
				return err
			}
			s.bytesSinceIndex = 0
		}
		s.bytesSinceIndex += uint64(n)
		lastOffset = rec.Offset
		haveLast = true
		pos += uint64(n)
		s.lastTimestampMillis = rec.Timestamp.UnixMilli()
	}
	if haveLast {
		s.nextOffset = lastOffset + 1
	}
	return nil
}

// Append writes one record, assigning it the segment's next offset and the
// given timestamp. Returns the assigned offset.
func (s *segment) Append(rec Record, now time.Time) (uint64, error) {
	if s.sealed {
		return 0, errs.ErrSegmentSealed
	}
	offset := s.nextOffset
	if offset-s.baseOffset > math.MaxUint32 {
		return 0, errs.ErrSegmentFull
	}
	rwo := RecordWithOffset{Record: rec, Offset: offset, Timestamp: now}

	n, pos, err := s.store.Append(rwo)
	if err != nil {
		return 0, err
	}

	if s.offsetIdx.IsEmpty() || s.bytesSinceIndex >= s.config.Segment.IndexIntervalBytes {
		if err := s.offsetIdx.Insert(uint32(offset-s.baseOffset), uint32(pos)); err != nil {
			return 0, err
		}
		if err := s.timeIdx.Insert(now.UnixMilli(), uint32(pos)); err != nil {
			return 0, err
		}
		s.bytesSinceIndex = 0
	}
	s.bytesSinceIndex += uint64(n)

	s.nextOffset++
	s.lastTimestampMillis = now.UnixMilli()
	return offset, nil
}

// AppendBatch writes recs as a contiguous run of offsets, all or none, per
// spec.md §4.3. Store size, next offset, and both index tails are snapshotted
// before the first record is written; if any record in the batch fails, the
// store is truncated and the indices rolled back to the snapshot so no
// partial batch is ever left behind.
func (s *segment) AppendBatch(recs []Record, now time.Time) (uint64, error) {
	if s.sealed {
		return 0, errs.ErrSegmentSealed
	}

	snapStoreSize := s.store.Size()
	snapNextOffset := s.nextOffset
	snapBytesSinceIndex := s.bytesSinceIndex
	snapLastTimestamp := s.lastTimestampMillis
	snapOffsetIdxSize := s.offsetIdx.size
	snapTimeIdxSize := s.timeIdx.size

	base := s.nextOffset
	for _, r := range recs {
		if _, err := s.Append(r, now); err != nil {
			s.offsetIdx.truncateTo(snapOffsetIdxSize)
			s.timeIdx.truncateTo(snapTimeIdxSize)
			s.nextOffset = snapNextOffset
			s.bytesSinceIndex = snapBytesSinceIndex
			s.lastTimestampMillis = snapLastTimestamp
			if terr := s.store.Truncate(snapStoreSize); terr != nil {
				return 0, terr
			}
			return 0, err
		}
	}
	return base, nil
}

// ReadFrom decodes up to maxRecords records (or until maxBytes of frame data
// has been read, whichever comes first) starting at offset. maxRecords <= 0
// means unbounded by count; maxBytes <= 0 means unbounded by size.
func (s *segment) ReadFrom(offset uint64, maxRecords, maxBytes int) ([]RecordWithOffset, error) {
	if offset < s.baseOffset || offset > s.nextOffset {
		return nil, errs.ErrOffsetOutOfRange
	}
	relOffset := uint32(offset - s.baseOffset)
	pos := s.offsetIdx.LookupFloor(relOffset)

	r, err := s.store.ReaderFrom(uint64(pos))
	if err != nil {
		return nil, err
	}

	var out []RecordWithOffset
	bytesRead := 0
	for {
		rec, n, err := ReadRecordFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		bytesRead += n
		if rec.Offset < offset {
			continue
		}
		out = append(out, rec)
		if maxRecords > 0 && len(out) >= maxRecords {
			break
		}
		if maxBytes > 0 && bytesRead >= maxBytes {
			break
		}
	}
	return out, nil
}

// ReadFromTime decodes records with timestamp >= tsMillis, using the time
// index's floor lookup to seek close to the first candidate before scanning
// forward (spec.md §4.2/§4.6).
func (s *segment) ReadFromTime(tsMillis int64, maxRecords, maxBytes int) ([]RecordWithOffset, error) {
	pos := s.timeIdx.LookupFloor(tsMillis)

	r, err := s.store.ReaderFrom(uint64(pos))
	if err != nil {
		return nil, err
	}

	var out []RecordWithOffset
	bytesRead := 0
	for {
		rec, n, err := ReadRecordFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		bytesRead += n
		if rec.Timestamp.UnixMilli() < tsMillis {
			continue
		}
		out = append(out, rec)
		if maxRecords > 0 && len(out) >= maxRecords {
			break
		}
		if maxBytes > 0 && bytesRead >= maxBytes {
			break
		}
	}
	return out, nil
}

func (s *segment) BaseOffset() uint64 { return s.baseOffset }
func (s *segment) NextOffset() uint64 { return s.nextOffset }
func (s *segment) LastTimestampMillis() int64 { return s.lastTimestampMillis }
func (s *segment) SizeBytes() uint64  { return s.store.Size() }

// IsMaxed reports whether the segment has reached its configured size limit
// and should be sealed and rolled, per spec.md §4.3.
func (s *segment) IsMaxed() bool {
	return s.store.Size() >= s.config.Segment.MaxBytes
}

// Seal marks the segment read-only. Sealed segments no longer accept
// Append/AppendBatch calls.
func (s *segment) Seal() error {
	s.sealed = true
	return s.store.Sync()
}

func (s *segment) Flush() error { return s.store.Flush() }
func (s *segment) Sync() error  { return s.store.Sync() }

func (s *segment) Close() error {
	if err := s.offsetIdx.Close(); err != nil {
		return err
	}
	if err := s.timeIdx.Close(); err != nil {
		return err
	}
	return s.store.Close()
}

// Remove closes the segment and deletes its backing files from disk.
func (s *segment) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.offsetIdx.Name()); err != nil {
		return err
	}
	if err := os.Remove(s.timeIdx.Name()); err != nil {
		return err
	}
	return os.Remove(s.store.Name())
}
