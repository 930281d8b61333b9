package server

import (
	"os"
	"testing"

	flashlog "github.com/harshitmahapatra/flashq/internal/log"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	dir, err := os.MkdirTemp("", "server-log-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	c := flashlog.DefaultConfig()
	c.DataDir = dir
	backend, err := flashlog.OpenFileBackend(c)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	topic, err := backend.Topic("events")
	require.NoError(t, err)
	partition, err := topic.Partition(0)
	require.NoError(t, err)

	return NewLog(partition)
}

func TestLogAppendAndRead(t *testing.T) {
	l := newTestLog(t)

	off, err := l.Append(Record{Value: "hello"})
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)

	got, err := l.Read(0)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Value)
}

func TestLogReadMissingOffset(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Read(5)
	require.ErrorIs(t, err, ErrOffsetNotFound)
}
