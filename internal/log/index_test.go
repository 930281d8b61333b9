package log

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOffsetIndexInsertAndLookup(t *testing.T) {
	f, err := os.CreateTemp("", "offset-index-test")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	idx, err := newOffsetIndex(f, 1024)
	require.NoError(t, err)
	require.True(t, idx.IsEmpty())

	require.NoError(t, idx.Insert(0, 0))
	require.NoError(t, idx.Insert(5, 100))
	require.NoError(t, idx.Insert(10, 250))

	require.Equal(t, uint32(0), idx.LookupFloor(0))
	require.Equal(t, uint32(0), idx.LookupFloor(3))
	require.Equal(t, uint32(100), idx.LookupFloor(5))
	require.Equal(t, uint32(100), idx.LookupFloor(9))
	require.Equal(t, uint32(250), idx.LookupFloor(999))
	require.True(t, idx.Valid())

	require.NoError(t, idx.Close())
}

func TestOffsetIndexRejectsNonMonotonic(t *testing.T) {
	f, err := os.CreateTemp("", "offset-index-test")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	idx, err := newOffsetIndex(f, 1024)
	require.NoError(t, err)

	require.NoError(t, idx.Insert(5, 10))
	require.Error(t, idx.Insert(5, 20))
	require.Error(t, idx.Insert(3, 30))
}

func TestTimeIndexAllowsDuplicateKeys(t *testing.T) {
	f, err := os.CreateTemp("", "time-index-test")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	idx, err := newTimeIndex(f, 1024)
	require.NoError(t, err)

	require.NoError(t, idx.Insert(1000, 0))
	require.NoError(t, idx.Insert(1000, 50))
	require.Error(t, idx.Insert(1000, 40))
	require.Error(t, idx.Insert(900, 200))
	require.True(t, idx.Valid())
}
