package log

import (
	"bufio"
	"io"
	"os"
	"sync"
)

// store is the low-level length-framed append/read primitive a segment's
// .log file is built on. It wraps a buffered writer over *os.File the way
// the teacher's segment.go expects its own store.go to behave (store.Append,
// store.Read, store.size, store.Name, store.Close) — that file was not part
// of the retrieved teacher excerpt, so it is reconstructed here generalized
// to carry FlashQ's record-frame format instead of the teacher's
// protobuf-encoded records.
type store struct {
	file *os.File
	buf  *bufio.Writer
	mu   sync.Mutex
	size uint64
}

func newStore(f *os.File) (*store, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &store{
		file: f,
		buf:  bufio.NewWriter(f),
		size: uint64(fi.Size()),
	}, nil
}

// Append writes one record frame, returning the number of bytes written and
// the byte position it was written at.
func (s *store) Append(rec RecordWithOffset) (n int, pos uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos = s.size
	n, err = WriteRecordFrame(s.buf, rec)
	if err != nil {
		return 0, 0, err
	}
	s.size += uint64(n)
	return n, pos, nil
}

// ReadAt decodes the single record frame starting at byte position pos.
// Any buffered-but-unflushed bytes are flushed first so the read observes
// everything appended so far.
func (s *store) ReadAt(pos uint64) (RecordWithOffset, int, error) {
	s.mu.Lock()
	if err := s.buf.Flush(); err != nil {
		s.mu.Unlock()
		return RecordWithOffset{}, 0, err
	}
	size := s.size
	s.mu.Unlock()

	r := io.NewSectionReader(s.file, int64(pos), int64(size)-int64(pos))
	return ReadRecordFrame(r)
}

// ReaderFrom returns a reader over the store's bytes starting at pos,
// suitable for streaming forward decode of multiple frames. Buffered bytes
// are flushed first.
func (s *store) ReaderFrom(pos uint64) (io.Reader, error) {
	s.mu.Lock()
	if err := s.buf.Flush(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	size := s.size
	s.mu.Unlock()
	if pos > size {
		pos = size
	}
	return io.NewSectionReader(s.file, int64(pos), int64(size)-int64(pos)), nil
}

// Flush drains the buffered writer to the OS without forcing an fsync.
func (s *store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Flush()
}

// Sync flushes and then fsyncs the underlying file.
func (s *store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

// Size returns the logical size of the store, including bytes still only in
// the write buffer.
func (s *store) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *store) Name() string {
	return s.file.Name()
}

// Truncate discards everything at or after newSize. Used by recovery to cut
// a torn trailing write.
func (s *store) Truncate(newSize uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset(s.file)
	if err := s.file.Truncate(int64(newSize)); err != nil {
		return err
	}
	if _, err := s.file.Seek(int64(newSize), io.SeekStart); err != nil {
		return err
	}
	s.size = newSize
	return nil
}

func (s *store) Close() error {
	s.mu.Lock()
	if err := s.buf.Flush(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.file.Close()
}
