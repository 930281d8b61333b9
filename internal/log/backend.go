package log

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/harshitmahapatra/flashq/internal/log/errs"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Backend is the storage engine's top-level handle: it owns the topic
// namespace and the consumer offset store for one data directory (or one
// in-process instance, for the memory backend). Grounded on
// original_source/backend.rs, which plays the same role for the Rust
// implementation.
type Backend interface {
	Topic(name string) (Topic, error)
	Topics() []string
	ConsumerOffsets() *ConsumerOffsetStore
	Close() error
}

// OpenBackend is FlashQ's single storage entry point (spec.md §6:
// open_backend(config) -> Backend): it dispatches on c.Kind so callers never
// construct a FileBackend or MemoryBackend directly.
func OpenBackend(c Config) (Backend, error) {
	c = c.withDefaults()
	switch c.Kind {
	case BackendMemory:
		return OpenMemoryBackend(c)
	case BackendFile:
		return OpenFileBackend(c)
	default:
		return nil, fmt.Errorf("flashq: unknown backend kind %q", c.Kind)
	}
}

// lockFileName is the advisory lock FlashQ takes on a data directory to
// prevent two processes from opening it concurrently, per spec.md §5.
const lockFileName = ".lock"

type lockMetadata struct {
	PID       int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// FileBackend is the on-disk storage backend. One FileBackend owns exactly
// one data directory, exclusively, for its lifetime.
type FileBackend struct {
	dir    string
	config Config
	log    *zap.Logger

	lockFile *os.File

	mu     sync.Mutex
	topics map[string]*topic

	offsets *ConsumerOffsetStore
}

// OpenFileBackend opens (creating if needed) the data directory at
// c.DataDir, taking an exclusive advisory lock via flock the way
// original_source/backend.rs uses the fs4 crate's exclusive lock — here
// expressed with golang.org/x/sys/unix.Flock, the syscall-level primitive
// the pack's kafscale repo also reaches for.
func OpenFileBackend(c Config) (*FileBackend, error) {
	c = c.withDefaults()
	if c.DataDir == "" {
		return nil, fmt.Errorf("flashq: file backend requires DataDir")
	}
	if err := ensureDir(c.DataDir); err != nil {
		return nil, err
	}

	lockPath := path.Join(c.DataDir, lockFileName)
	lockFile, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		stale, staleErr := isStaleLock(lockFile)
		if staleErr == nil && stale {
			c.Logger.Warn("reclaiming stale data directory lock", zap.String("dir", c.DataDir))
			if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
				lockFile.Close()
				return nil, fmt.Errorf("%w: %v", errs.ErrDataDirLocked, err)
			}
		} else {
			lockFile.Close()
			return nil, errs.ErrDataDirLocked
		}
	}

	meta := lockMetadata{PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	metaBytes, _ := json.Marshal(meta)
	if err := lockFile.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := lockFile.WriteAt(metaBytes, 0); err != nil {
		return nil, err
	}

	offsetStore, err := newFileConsumerOffsetStore(path.Join(c.DataDir, "consumer_offsets"))
	if err != nil {
		return nil, err
	}

	b := &FileBackend{
		dir:      c.DataDir,
		config:   c,
		log:      c.Logger,
		lockFile: lockFile,
		topics:   make(map[string]*topic),
		offsets:  offsetStore,
	}

	if err := b.loadExistingTopics(); err != nil {
		return nil, err
	}
	return b, nil
}

// isStaleLock reports whether the process recorded in lockFile's metadata is
// no longer alive. This is a best-effort reclamation check (the original's
// lock file carried the same PID+timestamp metadata); the flock itself, not
// this check, is what guarantees exclusivity.
func isStaleLock(f *os.File) (bool, error) {
	var meta lockMetadata
	buf := make([]byte, 4096)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return false, err
	}
	if err := json.Unmarshal(buf[:n], &meta); err != nil {
		return false, err
	}
	if err := unix.Kill(meta.PID, 0); err != nil {
		return true, nil
	}
	return false, nil
}

// loadExistingTopics discovers topic subdirectories already present in the
// data directory (supplemented feature: directory-scan topic discovery,
// grounded on original_source/backend.rs) so a reopened FileBackend exposes
// topics created in a previous process.
func (b *FileBackend) loadExistingTopics() error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "consumer_offsets" {
			continue
		}
		if validateName(name) != nil {
			continue
		}
		t, err := newTopic(path.Join(b.dir, name), name, b.config)
		if err != nil {
			continue
		}
		b.topics[name] = t
	}
	return nil
}

func (b *FileBackend) Topic(name string) (Topic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[name]; ok {
		return t, nil
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	dir := path.Join(b.dir, name)
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	t, err := newTopic(dir, name, b.config)
	if err != nil {
		return nil, err
	}
	b.topics[name] = t
	return t, nil
}

func (b *FileBackend) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	return names
}

func (b *FileBackend) ConsumerOffsets() *ConsumerOffsetStore { return b.offsets }

func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, t := range b.topics {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = unix.Flock(int(b.lockFile.Fd()), unix.LOCK_UN)
	if err := b.lockFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
