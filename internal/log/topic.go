package log

import (
	"fmt"
	"path"
	"regexp"
	"sync"

	"github.com/harshitmahapatra/flashq/internal/log/errs"
)

// namePattern is the validation rule for topic, group, and consumer group
// names per spec.md §3: alphanumerics, '.', '_', '-', with the first byte
// restricted to alphanumeric/'.'/'_' (no leading hyphen). Length is checked
// separately since the trailing class is unbounded.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9._][A-Za-z0-9._-]*$`)

func validateName(name string) error {
	if len(name) < 1 || len(name) > 255 || !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", errs.ErrInvalidName, name)
	}
	return nil
}

// Topic is the per-topic partition surface a Backend hands back from
// Topic(name). FileBackend's topic and MemoryBackend's memoryTopic both
// satisfy it, so callers never need to know which Kind they opened (spec.md
// §9 Polymorphism).
type Topic interface {
	Partition(id int) (PartitionAppender, error)
	Partitions() []int
	Close() error
}

// topic owns the set of partitions for one topic name. Partitions are
// created lazily on first access and held in a sync.Map the way the
// teacher's internal/server.Log would use a plain map under a mutex for a
// single log — here partitions are independent and contended concurrently,
// so sync.Map's lock-free reads are the better fit, matching the
// read-heavy/insert-rarely access pattern sync.Map is documented for.
type topic struct {
	name string
	dir  string

	config Config

	mu         sync.Mutex
	partitions sync.Map // int -> PartitionAppender
	count      int
}

func newTopic(dir, name string, c Config) (*topic, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &topic{name: name, dir: dir, config: c}, nil
}

// Partition returns the PartitionLog for partition id, creating its backing
// directory and segment manager on first access. Returns
// errs.ErrTooManyPartitions if this would exceed Config.MaxPartitionsPerTopic.
func (t *topic) Partition(id int) (PartitionAppender, error) {
	if v, ok := t.partitions.Load(id); ok {
		return v.(PartitionAppender), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if v, ok := t.partitions.Load(id); ok {
		return v.(PartitionAppender), nil
	}
	if t.count >= t.config.MaxPartitionsPerTopic {
		return nil, fmt.Errorf("%w: topic %q capped at %d partitions", errs.ErrTooManyPartitions, t.name, t.config.MaxPartitionsPerTopic)
	}

	partDir := path.Join(t.dir, fmt.Sprintf("%d", id))
	if err := ensureDir(partDir); err != nil {
		return nil, err
	}
	p, err := newPartitionLog(partDir, t.name, id, t.config)
	if err != nil {
		return nil, err
	}
	t.partitions.Store(id, p)
	t.count++
	return p, nil
}

// Partitions returns the ids of partitions created so far.
func (t *topic) Partitions() []int {
	var ids []int
	t.partitions.Range(func(k, _ any) bool {
		ids = append(ids, k.(int))
		return true
	})
	return ids
}

func (t *topic) Close() error {
	var firstErr error
	t.partitions.Range(func(_, v any) bool {
		if err := v.(PartitionAppender).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}
