package log

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPartition(t *testing.T) *PartitionLog {
	t.Helper()
	dir, err := os.MkdirTemp("", "partition-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	c := DefaultConfig()
	c.Segment.MaxBytes = 4096
	c.Segment.IndexIntervalBytes = 16
	p, err := newPartitionLog(dir, "orders", 0, c)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPartitionLogOffsetContiguity(t *testing.T) {
	p := newTestPartition(t)
	for i := 0; i < 10; i++ {
		off, err := p.Append(Record{Value: []byte("v")})
		require.NoError(t, err)
		require.Equal(t, uint64(i), off)
	}
	require.Equal(t, uint64(10), p.NextOffset())
}

func TestPartitionLogReadRoundTrip(t *testing.T) {
	p := newTestPartition(t)
	for i := 0; i < 5; i++ {
		_, err := p.Append(Record{Value: []byte("payload")})
		require.NoError(t, err)
	}
	recs, err := p.ReadFrom(2, 2, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, uint64(2), recs[0].Offset)
	require.Equal(t, uint64(3), recs[1].Offset)
}

func TestPartitionLogBatchAtomicity(t *testing.T) {
	p := newTestPartition(t)
	batch := []Record{
		{Value: []byte("a")},
		{Value: []byte("b")},
		{Value: []byte("c")},
	}
	base, err := p.AppendBatch(batch)
	require.NoError(t, err)
	require.Equal(t, uint64(0), base)
	require.Equal(t, uint64(3), p.NextOffset())
}

func TestPartitionLogBatchTooLarge(t *testing.T) {
	p := newTestPartition(t)
	p.config.MaxBatchBytes = 10
	big := []Record{{Value: make([]byte, 1000)}}
	_, err := p.AppendBatch(big)
	require.Error(t, err)
}

func TestPartitionLogConcurrentAppends(t *testing.T) {
	p := newTestPartition(t)
	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := p.Append(Record{Value: []byte("x")})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, uint64(n), p.NextOffset())
}
