package log

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/harshitmahapatra/flashq/internal/log/errs"
	"github.com/tysonmote/gommap"
)

// timeIndexEntryWidth is the packed size of one (timestamp_millis, position)
// entry per spec.md §4.2/§6: i64 timestamp_millis, u32 file_position,
// little-endian.
const timeIndexEntryWidth = 8 + 4

// timeIndex is the sparse time index for one segment. It mirrors offsetIndex
// (same mmap-backed approach, generalized from the teacher's single index
// type) but with a different monotonicity rule: spec.md §4.2 allows
// duplicate timestamp keys (timestamps may repeat) as long as file
// positions are strictly increasing.
type timeIndex struct {
	file        *os.File
	mmap        gommap.MMap
	size        uint64
	hasLast     bool
	lastKey     int64
	lastPosition uint32
}

func newTimeIndex(f *os.File, capacityBytes uint64) (*timeIndex, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	idx := &timeIndex{file: f, size: uint64(fi.Size())}

	target := capacityBytes
	if target < idx.size {
		target = idx.size
	}
	if err := os.Truncate(f.Name(), int64(target)); err != nil {
		return nil, err
	}

	idx.mmap, err = gommap.Map(f.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	if idx.size >= timeIndexEntryWidth {
		last := idx.size - timeIndexEntryWidth
		idx.lastKey = int64(binary.LittleEndian.Uint64(idx.mmap[last : last+8]))
		idx.lastPosition = binary.LittleEndian.Uint32(idx.mmap[last+8 : last+12])
		idx.hasLast = true
	}
	return idx, nil
}

// Insert appends a new (timestampMillis, position) entry. timestampMillis
// must be >= the previous key; position must be strictly greater than the
// previous position.
func (idx *timeIndex) Insert(timestampMillis int64, position uint32) error {
	if idx.hasLast {
		if timestampMillis < idx.lastKey {
			return fmt.Errorf("%w: time index key %d less than previous %d", errs.ErrIndexKeyNotMonotonic, timestampMillis, idx.lastKey)
		}
		if position <= idx.lastPosition {
			return fmt.Errorf("%w: time index position %d not greater than previous %d", errs.ErrIndexKeyNotMonotonic, position, idx.lastPosition)
		}
	}
	if uint64(len(idx.mmap)) < idx.size+timeIndexEntryWidth {
		return fmt.Errorf("%w: time index capacity exceeded", errs.ErrSegmentFull)
	}
	binary.LittleEndian.PutUint64(idx.mmap[idx.size:idx.size+8], uint64(timestampMillis))
	binary.LittleEndian.PutUint32(idx.mmap[idx.size+8:idx.size+12], position)
	idx.size += timeIndexEntryWidth
	idx.lastKey = timestampMillis
	idx.lastPosition = position
	idx.hasLast = true
	return nil
}

// LookupFloor returns the file position of the entry with the largest key
// <= timestampMillis, or 0 if none exists.
func (idx *timeIndex) LookupFloor(timestampMillis int64) uint32 {
	n := int(idx.size / timeIndexEntryWidth)
	if n == 0 {
		return 0
	}
	lo, hi := 0, n-1
	result := uint32(0)
	for lo <= hi {
		mid := (lo + hi) / 2
		off := uint64(mid) * timeIndexEntryWidth
		key := int64(binary.LittleEndian.Uint64(idx.mmap[off : off+8]))
		if key <= timestampMillis {
			result = binary.LittleEndian.Uint32(idx.mmap[off+8 : off+12])
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}

func (idx *timeIndex) IsEmpty() bool { return idx.size == 0 }

// Valid reports whether the on-disk entries satisfy the time index's
// monotonicity rule (non-decreasing key, strictly increasing position).
func (idx *timeIndex) Valid() bool {
	if idx.size%timeIndexEntryWidth != 0 {
		return false
	}
	n := int(idx.size / timeIndexEntryWidth)
	var prevKey int64
	var prevPos uint32
	havePrev := false
	for i := 0; i < n; i++ {
		off := uint64(i) * timeIndexEntryWidth
		key := int64(binary.LittleEndian.Uint64(idx.mmap[off : off+8]))
		pos := binary.LittleEndian.Uint32(idx.mmap[off+8 : off+12])
		if havePrev {
			if key < prevKey || pos <= prevPos {
				return false
			}
		}
		prevKey, prevPos = key, pos
		havePrev = true
	}
	return true
}

func (idx *timeIndex) Reset() {
	idx.size = 0
	idx.hasLast = false
	idx.lastKey = 0
	idx.lastPosition = 0
}

// truncateTo rolls the index back to newSize bytes, recomputing lastKey and
// lastPosition from the entry now at the tail. Used to undo a partially
// applied batch append.
func (idx *timeIndex) truncateTo(newSize uint64) {
	idx.size = newSize
	if newSize >= timeIndexEntryWidth {
		last := newSize - timeIndexEntryWidth
		idx.lastKey = int64(binary.LittleEndian.Uint64(idx.mmap[last : last+8]))
		idx.lastPosition = binary.LittleEndian.Uint32(idx.mmap[last+8 : last+12])
		idx.hasLast = true
	} else {
		idx.hasLast = false
		idx.lastKey = 0
		idx.lastPosition = 0
	}
}

func (idx *timeIndex) Close() error {
	if err := idx.mmap.Sync(gommap.MS_SYNC); err != nil {
		return err
	}
	if err := idx.mmap.UnsafeUnmap(); err != nil {
		return err
	}
	if err := idx.file.Truncate(int64(idx.size)); err != nil {
		return err
	}
	if err := idx.file.Sync(); err != nil {
		return err
	}
	return idx.file.Close()
}

func (idx *timeIndex) Name() string { return idx.file.Name() }
