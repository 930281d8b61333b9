package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/harshitmahapatra/flashq/internal/log/errs"
	"go.uber.org/zap"
)

// PartitionAppender is the append/read surface a Topic hands back from
// Partition(id). Both *PartitionLog (Kind=file) and memoryPartitionLog
// (Kind=memory) satisfy it, per spec.md §9's Polymorphism requirement.
type PartitionAppender interface {
	Append(rec Record) (uint64, error)
	AppendBatch(recs []Record) (uint64, error)
	ReadFrom(offset uint64, maxRecords, maxBytes int) ([]RecordWithOffset, error)
	ReadFromTime(ts time.Time, maxRecords, maxBytes int) ([]RecordWithOffset, error)
	NextOffset() uint64
	EarliestOffset() uint64
	Close() error
}

// PartitionLog is the append/read surface for one topic partition. It
// serializes writers with a single mutex (spec.md §4.6: at most one writer
// makes progress at a time) while reads take a short read lock only to pick
// the segment manager snapshot, matching the teacher's internal/server.Log
// mutex style generalized onto segmented storage.
type PartitionLog struct {
	topic     string
	partition int

	config Config
	log    *zap.Logger

	writeMu sync.Mutex
	mgr     *segmentManager

	poisonMu sync.Mutex
	poisoned error

	stopFsync chan struct{}
	fsyncDone chan struct{}
}

func newPartitionLog(dir, topic string, partition int, c Config) (*PartitionLog, error) {
	mgr, err := newSegmentManager(dir, c)
	if err != nil {
		return nil, err
	}
	p := &PartitionLog{
		topic:     topic,
		partition: partition,
		config:    c,
		log:       c.Logger,
		mgr:       mgr,
	}
	if c.Durability == DurabilityInterval {
		p.stopFsync = make(chan struct{})
		p.fsyncDone = make(chan struct{})
		go p.fsyncLoop()
	}
	return p, nil
}

func (p *PartitionLog) fsyncLoop() {
	defer close(p.fsyncDone)
	interval := time.Duration(p.config.FsyncIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.writeMu.Lock()
			if err := p.mgr.Sync(); err != nil {
				p.log.Warn("interval fsync failed",
					zap.String("topic", p.topic), zap.Int("partition", p.partition), zap.Error(err))
			}
			p.writeMu.Unlock()
		case <-p.stopFsync:
			return
		}
	}
}

func (p *PartitionLog) checkPoisoned() error {
	p.poisonMu.Lock()
	defer p.poisonMu.Unlock()
	return p.poisoned
}

func (p *PartitionLog) poison(cause error) {
	p.poisonMu.Lock()
	defer p.poisonMu.Unlock()
	if p.poisoned == nil {
		p.poisoned = cause
		p.log.Error("partition write path poisoned",
			zap.String("topic", p.topic), zap.Int("partition", p.partition), zap.Error(cause))
	}
}

// Append writes a single record and returns its assigned offset.
func (p *PartitionLog) Append(rec Record) (uint64, error) {
	offset, err := p.AppendBatch([]Record{rec})
	if err != nil {
		return 0, err
	}
	return offset, nil
}

// AppendBatch writes recs as a contiguous batch and returns the offset
// assigned to the first record. Per spec.md §4.6 this holds the partition's
// single write lock for the whole call, and per §7 any I/O error poisons
// all future writes to this partition. The max_batch_bytes cap (§4.6) is
// enforced here against the partition's live config rather than inside the
// segment, since p.config can be mutated after construction and a cached
// copy on the segment would go stale.
func (p *PartitionLog) AppendBatch(recs []Record) (uint64, error) {
	if err := p.checkPoisoned(); err != nil {
		return 0, errs.ErrPoisoned
	}
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

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	seg, err := p.mgr.Active()
	if err != nil {
		p.poison(err)
		return 0, err
	}

	base, err := seg.AppendBatch(recs, now)
	if err != nil {
		p.poison(err)
		return 0, err
	}

	if p.config.Durability == DurabilityBatch {
		if err := seg.Sync(); err != nil {
			p.poison(err)
			return 0, err
		}
	} else {
		if err := seg.Flush(); err != nil {
			p.poison(err)
			return 0, err
		}
	}

	return base, nil
}

// ReadFrom decodes up to maxRecords records (or maxBytes of frame data,
// whichever limit hits first) starting at offset.
func (p *PartitionLog) ReadFrom(offset uint64, maxRecords, maxBytes int) ([]RecordWithOffset, error) {
	return p.mgr.ReadFrom(offset, maxRecords, maxBytes)
}

// ReadFromTime decodes records with timestamp >= ts.
func (p *PartitionLog) ReadFromTime(ts time.Time, maxRecords, maxBytes int) ([]RecordWithOffset, error) {
	return p.mgr.ReadFromTime(ts.UnixMilli(), maxRecords, maxBytes)
}

// NextOffset returns the high water mark: the offset the next append will
// receive.
func (p *PartitionLog) NextOffset() uint64 { return p.mgr.NextOffset() }

// EarliestOffset returns the lowest offset still retained.
func (p *PartitionLog) EarliestOffset() uint64 { return p.mgr.EarliestOffset() }

func (p *PartitionLog) Close() error {
	if p.stopFsync != nil {
		close(p.stopFsync)
		<-p.fsyncDone
	}
	return p.mgr.Close()
}
