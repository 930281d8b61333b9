package log

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileBackendRejectsConcurrentOpen(t *testing.T) {
	dir, err := os.MkdirTemp("", "backend-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	c := DefaultConfig()
	c.DataDir = dir

	b1, err := OpenFileBackend(c)
	require.NoError(t, err)
	defer b1.Close()

	_, err = OpenFileBackend(c)
	require.Error(t, err)
}

func TestFileBackendTopicAndPartitionLifecycle(t *testing.T) {
	dir, err := os.MkdirTemp("", "backend-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	c := DefaultConfig()
	c.DataDir = dir
	c.MaxPartitionsPerTopic = 2

	b, err := OpenFileBackend(c)
	require.NoError(t, err)
	defer b.Close()

	topic, err := b.Topic("orders")
	require.NoError(t, err)

	_, err = topic.Partition(0)
	require.NoError(t, err)
	_, err = topic.Partition(1)
	require.NoError(t, err)
	_, err = topic.Partition(2)
	require.Error(t, err)

	require.ElementsMatch(t, []string{"orders"}, b.Topics())
}

func TestFileBackendReopenAfterClose(t *testing.T) {
	dir, err := os.MkdirTemp("", "backend-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	c := DefaultConfig()
	c.DataDir = dir

	b, err := OpenFileBackend(c)
	require.NoError(t, err)
	topic, err := b.Topic("orders")
	require.NoError(t, err)
	p, err := topic.Partition(0)
	require.NoError(t, err)
	_, err = p.Append(Record{Value: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b2, err := OpenFileBackend(c)
	require.NoError(t, err)
	defer b2.Close()
	require.Contains(t, b2.Topics(), "orders")
}
