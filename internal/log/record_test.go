package log

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordFrameRoundTrip(t *testing.T) {
	rec := RecordWithOffset{
		Record: Record{
			Key:   []byte("key-1"),
			Value: []byte("hello world"),
			Headers: map[string][]byte{
				"trace-id": []byte("abc123"),
			},
		},
		Offset:    42,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}

	var buf bytes.Buffer
	n, err := WriteRecordFrame(&buf, rec)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)

	got, consumed, err := ReadRecordFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Equal(t, rec.Offset, got.Offset)
	require.Equal(t, rec.Key, got.Key)
	require.Equal(t, rec.Value, got.Value)
	require.Equal(t, rec.Headers["trace-id"], got.Headers["trace-id"])
	require.True(t, rec.Timestamp.Equal(got.Timestamp))
}

func TestRecordFrameNonUTF8Value(t *testing.T) {
	rec := RecordWithOffset{
		Record:    Record{Value: []byte{0xff, 0xfe, 0x00, 0x01}},
		Offset:    0,
		Timestamp: time.Now().UTC(),
	}
	var buf bytes.Buffer
	_, err := WriteRecordFrame(&buf, rec)
	require.NoError(t, err)

	got, _, err := ReadRecordFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, rec.Value, got.Value)
}

func TestReadRecordFrameEOF(t *testing.T) {
	_, _, err := ReadRecordFrame(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)
}

func TestReadRecordFrameTornTail(t *testing.T) {
	rec := RecordWithOffset{Record: Record{Value: []byte("payload")}, Timestamp: time.Now().UTC()}
	var buf bytes.Buffer
	_, err := WriteRecordFrame(&buf, rec)
	require.NoError(t, err)

	torn := buf.Bytes()[:buf.Len()-2]
	_, _, err = ReadRecordFrame(bytes.NewReader(torn))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRecordValidate(t *testing.T) {
	require.NoError(t, Record{Value: []byte("ok")}.Validate())

	big := make([]byte, MaxValueBytes+1)
	require.Error(t, Record{Value: big}.Validate())

	bigKey := make([]byte, MaxKeyBytes+1)
	require.Error(t, Record{Key: bigKey, Value: []byte("v")}.Validate())
}
