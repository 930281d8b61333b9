package log

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsumerOffsetCommitMonotonic(t *testing.T) {
	dir, err := os.MkdirTemp("", "consumer-offsets-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s, err := newFileConsumerOffsetStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Commit("group-a", "orders", 0, 10, ""))
	entry, ok := s.Fetch("group-a", "orders", 0)
	require.True(t, ok)
	require.Equal(t, uint64(10), entry.Offset)

	require.NoError(t, s.Commit("group-a", "orders", 0, 5, ""))
	entry, ok = s.Fetch("group-a", "orders", 0)
	require.True(t, ok)
	require.Equal(t, uint64(10), entry.Offset, "commit below current offset must be a no-op")

	require.NoError(t, s.Commit("group-a", "orders", 0, 20, "meta"))
	entry, ok = s.Fetch("group-a", "orders", 0)
	require.True(t, ok)
	require.Equal(t, uint64(20), entry.Offset)
	require.Equal(t, "meta", entry.Metadata)
}

func TestConsumerOffsetPersistsAcrossReload(t *testing.T) {
	dir, err := os.MkdirTemp("", "consumer-offsets-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s, err := newFileConsumerOffsetStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Commit("group-a", "orders", 1, 7, ""))

	reloaded, err := newFileConsumerOffsetStore(dir)
	require.NoError(t, err)
	entry, ok := reloaded.Fetch("group-a", "orders", 1)
	require.True(t, ok)
	require.Equal(t, uint64(7), entry.Offset)
}

func TestConsumerOffsetDeleteGroup(t *testing.T) {
	dir, err := os.MkdirTemp("", "consumer-offsets-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s, err := newFileConsumerOffsetStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Commit("group-a", "orders", 0, 1, ""))
	require.NoError(t, s.DeleteGroup("group-a"))

	_, ok := s.Fetch("group-a", "orders", 0)
	require.False(t, ok)
}
