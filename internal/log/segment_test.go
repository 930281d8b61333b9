package log

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	c := DefaultConfig()
	c.Segment.MaxBytes = 1024
	c.Segment.IndexIntervalBytes = 1
	return c
}

func TestSegmentAppendAndRead(t *testing.T) {
	dir, err := os.MkdirTemp("", "segment-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	c := testConfig()
	want := Record{Value: []byte("hello world")}

	s, err := newSegment(dir, 16, c)
	require.NoError(t, err)
	require.Equal(t, uint64(16), s.NextOffset())
	require.False(t, s.IsMaxed())

	now := time.Now()
	for i := uint64(0); i < 3; i++ {
		off, err := s.Append(want, now)
		require.NoError(t, err)
		require.Equal(t, 16+i, off)

		recs, err := s.ReadFrom(off, 1, 0)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		require.Equal(t, want.Value, recs[0].Value)
	}
	require.Equal(t, uint64(19), s.NextOffset())
}

func TestSegmentIsMaxed(t *testing.T) {
	dir, err := os.MkdirTemp("", "segment-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	c := testConfig()
	c.Segment.MaxBytes = 64

	s, err := newSegment(dir, 0, c)
	require.NoError(t, err)

	now := time.Now()
	for !s.IsMaxed() {
		_, err := s.Append(Record{Value: []byte("x")}, now)
		require.NoError(t, err)
	}
	require.True(t, s.IsMaxed())

	require.NoError(t, s.Remove())
}

func TestSegmentRecoversTornTail(t *testing.T) {
	dir, err := os.MkdirTemp("", "segment-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	c := testConfig()
	now := time.Now()

	s, err := newSegment(dir, 0, c)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.Append(Record{Value: []byte("payload")}, now)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	logPath := segmentLogPath(dir, 0)
	fi, err := os.Stat(logPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(logPath, fi.Size()-3))

	recovered, err := newSegment(dir, 0, c)
	require.NoError(t, err)
	require.Equal(t, uint64(4), recovered.NextOffset())
}
