package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/harshitmahapatra/flashq/internal/log/errs"
)

// memoryPartitionLog is the Kind=memory counterpart to PartitionLog: records
// live only in a slice guarded by a mutex, with no store, no mmap'd index,
// and nothing written to disk, per spec.md §4.8 ("Memory: all structures in
// process memory; no persistence"). It satisfies the same PartitionAppender
// interface as the file-backed partition so callers above internal/log never
// need to know which Kind they opened (spec.md §9 Polymorphism).
type memoryPartitionLog struct {
	config Config

	mu         sync.Mutex
	records    []RecordWithOffset
	nextOffset uint64
}

func newMemoryPartitionLog(c Config) *memoryPartitionLog {
	return &memoryPartitionLog{config: c}
}

func (p *memoryPartitionLog) Append(rec Record) (uint64, error) {
	return p.AppendBatch([]Record{rec})
}

// AppendBatch mirrors PartitionLog.AppendBatch's batch-size enforcement and
// all-or-nothing semantics (spec.md §4.3/§4.6), but against an in-memory
// slice instead of a segment: records are only appended to p.records after
// every record in the batch has validated and the total size check passed,
// so a rejected batch never partially mutates the slice.
func (p *memoryPartitionLog) AppendBatch(recs []Record) (uint64, error) {
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return 0, err
		}
	}

	now := time.Now()
	total := 0
	for _, r := range recs {
		n, err := FrameSize(RecordWithOffset{Record: r, Timestamp: now})
		if err != nil {
			return 0, err
		}
		total += n
	}
	if uint64(total) > p.config.MaxBatchBytes {
		return 0, fmt.Errorf("%w: batch is %d bytes, max %d", errs.ErrBatchTooLarge, total, p.config.MaxBatchBytes)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	base := p.nextOffset
	for _, r := range recs {
		p.records = append(p.records, RecordWithOffset{Record: r, Offset: p.nextOffset, Timestamp: now})
		p.nextOffset++
	}
	return base, nil
}

func (p *memoryPartitionLog) ReadFrom(offset uint64, maxRecords, maxBytes int) ([]RecordWithOffset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if offset > p.nextOffset {
		return nil, errs.ErrOffsetOutOfRange
	}

	var out []RecordWithOffset
	bytesRead := 0
	for _, rec := range p.records {
		if rec.Offset < offset {
			continue
		}
		out = append(out, rec)
		if n, err := FrameSize(rec); err == nil {
			bytesRead += n
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

func (p *memoryPartitionLog) ReadFromTime(ts time.Time, maxRecords, maxBytes int) ([]RecordWithOffset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []RecordWithOffset
	bytesRead := 0
	for _, rec := range p.records {
		if rec.Timestamp.Before(ts) {
			continue
		}
		out = append(out, rec)
		if n, err := FrameSize(rec); err == nil {
			bytesRead += n
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

func (p *memoryPartitionLog) NextOffset() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextOffset
}

func (p *memoryPartitionLog) EarliestOffset() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.records) == 0 {
		return 0
	}
	return p.records[0].Offset
}

func (p *memoryPartitionLog) Close() error { return nil }

// memoryTopic is the Kind=memory counterpart to topic: partitions are
// created lazily and capped the same way, but backed by memoryPartitionLog
// instead of a segment manager rooted in a directory.
type memoryTopic struct {
	name   string
	config Config

	mu         sync.Mutex
	partitions map[int]*memoryPartitionLog
}

func newMemoryTopic(name string, c Config) (*memoryTopic, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &memoryTopic{name: name, config: c, partitions: make(map[int]*memoryPartitionLog)}, nil
}

func (t *memoryTopic) Partition(id int) (PartitionAppender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.partitions[id]; ok {
		return p, nil
	}
	if len(t.partitions) >= t.config.MaxPartitionsPerTopic {
		return nil, fmt.Errorf("%w: topic %q capped at %d partitions", errs.ErrTooManyPartitions, t.name, t.config.MaxPartitionsPerTopic)
	}
	p := newMemoryPartitionLog(t.config)
	t.partitions[id] = p
	return p, nil
}

func (t *memoryTopic) Partitions() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int, 0, len(t.partitions))
	for id := range t.partitions {
		ids = append(ids, id)
	}
	return ids
}

func (t *memoryTopic) Close() error { return nil }
