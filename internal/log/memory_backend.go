package log

import "sync"

// MemoryBackend is the in-process storage backend described in spec.md
// §4.8: topics, partitions, and consumer offsets live only in Go slices and
// maps guarded by mutexes. No file, no mmap region, and no directory lock is
// ever touched, matching original_source/backend.rs's in-memory variant and
// spec.md §9's requirement that Memory and File be genuinely interchangeable
// implementations of the same interface, not one standing in for the other.
type MemoryBackend struct {
	config Config

	mu     sync.Mutex
	topics map[string]*memoryTopic

	offsets *ConsumerOffsetStore
}

// OpenMemoryBackend creates a MemoryBackend. It never touches disk, so there
// is no DataDir to open and no directory lock to acquire.
func OpenMemoryBackend(c Config) (*MemoryBackend, error) {
	c = c.withDefaults()
	c.Kind = BackendMemory
	return &MemoryBackend{
		config:  c,
		topics:  make(map[string]*memoryTopic),
		offsets: newInMemoryConsumerOffsetStore(),
	}, nil
}

func (b *MemoryBackend) Topic(name string) (Topic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[name]; ok {
		return t, nil
	}
	t, err := newMemoryTopic(name, b.config)
	if err != nil {
		return nil, err
	}
	b.topics[name] = t
	return t, nil
}

func (b *MemoryBackend) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	return names
}

func (b *MemoryBackend) ConsumerOffsets() *ConsumerOffsetStore {
	return b.offsets
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, t := range b.topics {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
