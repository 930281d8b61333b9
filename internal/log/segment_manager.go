package log

import (
	"container/list"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/harshitmahapatra/flashq/internal/log/errs"
)

// segmentManager owns the ordered set of segments for one partition: it
// decides when to roll the active segment, resolves offset/time lookups to
// the right segment, and bounds how many segments' file descriptors stay
// open at once (spec.md §5's fd cache). This generalizes the teacher's Log
// type (which keeps every segment open forever) with an LRU over sealed
// segments, grounded on original_source/segment_manager.rs's BTreeMap of
// segment metadata, re-expressed as a sorted slice per the teacher's
// slice-first idiom.
type segmentManager struct {
	dir    string
	config Config

	mu          sync.RWMutex
	baseOffsets []uint64
	open        map[uint64]*segment
	lru         *list.List
	lruElem     map[uint64]*list.Element
	activeBase  uint64
}

func newSegmentManager(dir string, c Config) (*segmentManager, error) {
	m := &segmentManager{
		dir:     dir,
		config:  c,
		open:    make(map[uint64]*segment),
		lru:     list.New(),
		lruElem: make(map[uint64]*list.Element),
	}

	bases, err := discoverSegmentBaseOffsets(dir)
	if err != nil {
		return nil, err
	}
	if len(bases) == 0 {
		bases = []uint64{0}
	}
	m.baseOffsets = bases

	if err := m.validateChain(); err != nil {
		return nil, err
	}

	last := m.baseOffsets[len(m.baseOffsets)-1]
	if _, err := m.openSegment(last); err != nil {
		return nil, err
	}
	m.activeBase = last
	m.touch(last)
	return m, nil
}

func discoverSegmentBaseOffsets(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var bases []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".log") {
			continue
		}
		numPart := strings.TrimSuffix(name, ".log")
		base, err := strconv.ParseUint(numPart, 10, 64)
		if err != nil {
			continue
		}
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
	return bases, nil
}

// validateChain opens each segment just long enough to check that its
// nextOffset matches the following segment's baseOffset, closing it again
// immediately (the active segment, opened last by the caller, stays open).
func (m *segmentManager) validateChain() error {
	for i := 0; i < len(m.baseOffsets)-1; i++ {
		s, err := newSegment(m.dir, m.baseOffsets[i], m.config)
		if err != nil {
			return err
		}
		next := s.NextOffset()
		if err := s.Close(); err != nil {
			return err
		}
		if next != m.baseOffsets[i+1] {
			return fmt.Errorf("%w: segment %d ends at offset %d, next segment starts at %d",
				errs.ErrSegmentChainCorrupt, m.baseOffsets[i], next, m.baseOffsets[i+1])
		}
	}
	return nil
}

func (m *segmentManager) openSegment(base uint64) (*segment, error) {
	if s, ok := m.open[base]; ok {
		return s, nil
	}
	s, err := newSegment(m.dir, base, m.config)
	if err != nil {
		return nil, err
	}
	m.open[base] = s
	m.evictIfNeeded()
	return s, nil
}

func (m *segmentManager) touch(base uint64) {
	if el, ok := m.lruElem[base]; ok {
		m.lru.MoveToFront(el)
		return
	}
	m.lruElem[base] = m.lru.PushFront(base)
}

// evictIfNeeded closes the least-recently-used open, non-active segment
// once the open set exceeds FDCachePerPartition.
func (m *segmentManager) evictIfNeeded() {
	for len(m.open) > m.config.FDCachePerPartition {
		el := m.lru.Back()
		for el != nil {
			base := el.Value.(uint64)
			if base == m.activeBase {
				el = el.Prev()
				continue
			}
			s, ok := m.open[base]
			if !ok {
				el = el.Prev()
				continue
			}
			_ = s.Close()
			delete(m.open, base)
			delete(m.lruElem, base)
			m.lru.Remove(el)
			return
		}
		return
	}
}

func (m *segmentManager) get(base uint64) (*segment, error) {
	s, err := m.openSegment(base)
	if err != nil {
		return nil, err
	}
	m.touch(base)
	return s, nil
}

// Active returns the current write-target segment, rolling to a freshly
// created one first if the current active segment has reached its size
// limit (spec.md §4.3).
func (m *segmentManager) Active() (*segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.get(m.activeBase)
	if err != nil {
		return nil, err
	}
	if !active.IsMaxed() {
		return active, nil
	}

	if err := active.Seal(); err != nil {
		return nil, err
	}
	newBase := active.NextOffset()
	newSeg, err := newSegment(m.dir, newBase, m.config)
	if err != nil {
		return nil, err
	}
	m.open[newBase] = newSeg
	m.baseOffsets = append(m.baseOffsets, newBase)
	m.activeBase = newBase
	m.touch(newBase)
	m.evictIfNeeded()
	return newSeg, nil
}

// findForOffset returns the base offset of the segment whose range covers
// offset: the largest baseOffset <= offset.
func (m *segmentManager) findForOffset(offset uint64) (uint64, bool) {
	idx := sort.Search(len(m.baseOffsets), func(i int) bool {
		return m.baseOffsets[i] > offset
	})
	if idx == 0 {
		return 0, false
	}
	return m.baseOffsets[idx-1], true
}

func (m *segmentManager) segmentForOffset(offset uint64) (*segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base, ok := m.findForOffset(offset)
	if !ok {
		return nil, errs.ErrOffsetOutOfRange
	}
	return m.get(base)
}

// ReadFrom decodes records starting at offset, reading across segment
// boundaries as needed until maxRecords/maxBytes is satisfied or the log's
// end is reached.
func (m *segmentManager) ReadFrom(offset uint64, maxRecords, maxBytes int) ([]RecordWithOffset, error) {
	m.mu.RLock()
	bases := append([]uint64(nil), m.baseOffsets...)
	m.mu.RUnlock()

	startIdx := sort.Search(len(bases), func(i int) bool { return bases[i] > offset }) - 1
	if startIdx < 0 {
		return nil, errs.ErrOffsetOutOfRange
	}

	var out []RecordWithOffset
	bytesRead := 0
	next := offset
	for i := startIdx; i < len(bases); i++ {
		m.mu.Lock()
		seg, err := m.get(bases[i])
		m.mu.Unlock()
		if err != nil {
			return out, err
		}
		recs, err := seg.ReadFrom(next, remainingCount(maxRecords, len(out)), remainingBytes(maxBytes, bytesRead))
		if err != nil {
			return out, err
		}
		out = append(out, recs...)
		for _, r := range recs {
			bytesRead += mustFrameSize(r)
		}
		if len(recs) == 0 {
			continue
		}
		next = recs[len(recs)-1].Offset + 1
		if maxRecords > 0 && len(out) >= maxRecords {
			break
		}
		if maxBytes > 0 && bytesRead >= maxBytes {
			break
		}
	}
	return out, nil
}

// ReadFromTime decodes records with timestamp >= tsMillis, scanning
// segments in chronological order.
func (m *segmentManager) ReadFromTime(tsMillis int64, maxRecords, maxBytes int) ([]RecordWithOffset, error) {
	m.mu.RLock()
	bases := append([]uint64(nil), m.baseOffsets...)
	m.mu.RUnlock()

	var out []RecordWithOffset
	bytesRead := 0
	for _, base := range bases {
		m.mu.Lock()
		seg, err := m.get(base)
		m.mu.Unlock()
		if err != nil {
			return out, err
		}
		if seg.LastTimestampMillis() != 0 && seg.LastTimestampMillis() < tsMillis {
			continue
		}
		recs, err := seg.ReadFromTime(tsMillis, remainingCount(maxRecords, len(out)), remainingBytes(maxBytes, bytesRead))
		if err != nil {
			return out, err
		}
		out = append(out, recs...)
		for _, r := range recs {
			bytesRead += mustFrameSize(r)
		}
		if maxRecords > 0 && len(out) >= maxRecords {
			break
		}
		if maxBytes > 0 && bytesRead >= maxBytes {
			break
		}
	}
	return out, nil
}

func remainingCount(max, used int) int {
	if max <= 0 {
		return 0
	}
	return max - used
}

func remainingBytes(max, used int) int {
	if max <= 0 {
		return 0
	}
	return max - used
}

func mustFrameSize(r RecordWithOffset) int {
	n, err := FrameSize(r)
	if err != nil {
		return 0
	}
	return n
}

func (m *segmentManager) NextOffset() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	active, err := m.get(m.activeBase)
	if err != nil {
		return 0
	}
	return active.NextOffset()
}

func (m *segmentManager) EarliestOffset() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.baseOffsets) == 0 {
		return 0
	}
	return m.baseOffsets[0]
}

func (m *segmentManager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	active, err := m.get(m.activeBase)
	if err != nil {
		return err
	}
	return active.Flush()
}

func (m *segmentManager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	active, err := m.get(m.activeBase)
	if err != nil {
		return err
	}
	return active.Sync()
}

func (m *segmentManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, s := range m.open {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
