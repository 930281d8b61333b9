package log

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/harshitmahapatra/flashq/internal/log/errs"
)

// Size limits from spec.md §3.
const (
	MaxKeyBytes         = 1024
	MaxValueBytes       = 1 << 20 // 1,048,576
	MaxHeaderValueBytes = 1024
)

// Record is the producer-supplied unit appended to a partition. Records are
// immutable once created; callers must not mutate the byte slices or map
// after constructing a Record.
type Record struct {
	Key     []byte
	Value   []byte
	Headers map[string][]byte
}

// Validate enforces the size limits spec.md §3 places on a Record.
func (r Record) Validate() error {
	if len(r.Key) > MaxKeyBytes {
		return fmt.Errorf("%w: key is %d bytes, max %d", errs.ErrRecordTooLarge, len(r.Key), MaxKeyBytes)
	}
	if len(r.Value) > MaxValueBytes {
		return fmt.Errorf("%w: value is %d bytes, max %d", errs.ErrRecordTooLarge, len(r.Value), MaxValueBytes)
	}
	for name, val := range r.Headers {
		if len(val) > MaxHeaderValueBytes {
			return fmt.Errorf("%w: header %q is %d bytes, max %d", errs.ErrRecordTooLarge, name, len(val), MaxHeaderValueBytes)
		}
	}
	return nil
}

// RecordWithOffset annotates a Record with the offset and timestamp
// assigned to it at append time (spec.md §3).
type RecordWithOffset struct {
	Record
	Offset    uint64
	Timestamp time.Time
}

// byteField marshals a byte slice as a plain JSON string when it is valid
// UTF-8 (the common case, kept human-readable on disk) and as a base64
// object otherwise, per spec.md §4.1 ("bytes are base64-encoded when
// non-UTF-8 to keep framing text-safe but binary-clean").
type byteField []byte

type byteFieldB64 struct {
	B64 string `json:"b64"`
}

func (b byteField) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	if utf8.Valid(b) {
		return json.Marshal(string(b))
	}
	return json.Marshal(byteFieldB64{B64: base64.StdEncoding.EncodeToString(b)})
}

func (b *byteField) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = []byte(s)
		return nil
	}
	var wrapper byteFieldB64
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(wrapper.B64)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// jsonRecord is the canonical on-disk representation of a Record's body,
// matching spec.md §4.1's {key?, value, headers?} object.
type jsonRecord struct {
	Key     *byteField           `json:"key,omitempty"`
	Value   byteField            `json:"value"`
	Headers map[string]byteField `json:"headers,omitempty"`
}

func toJSONRecord(r Record) jsonRecord {
	jr := jsonRecord{Value: byteField(r.Value)}
	if r.Key != nil {
		k := byteField(r.Key)
		jr.Key = &k
	}
	if len(r.Headers) > 0 {
		jr.Headers = make(map[string]byteField, len(r.Headers))
		for name, val := range r.Headers {
			jr.Headers[name] = byteField(val)
		}
	}
	return jr
}

func (jr jsonRecord) toRecord() Record {
	r := Record{Value: []byte(jr.Value)}
	if jr.Key != nil {
		r.Key = []byte(*jr.Key)
	}
	if len(jr.Headers) > 0 {
		r.Headers = make(map[string][]byte, len(jr.Headers))
		for name, val := range jr.Headers {
			r.Headers[name] = []byte(val)
		}
	}
	return r
}

// WriteRecordFrame serializes one record frame to w per spec.md §4.1 and
// returns the total number of bytes written (including the 4-byte length
// prefix).
func WriteRecordFrame(w io.Writer, rec RecordWithOffset) (int, error) {
	jsonBody, err := json.Marshal(toJSONRecord(rec.Record))
	if err != nil {
		return 0, fmt.Errorf("marshal record body: %w", err)
	}
	tsBytes := []byte(rec.Timestamp.UTC().Format(time.RFC3339Nano))

	payloadLen := uint32(8 + 4 + len(tsBytes) + len(jsonBody))

	buf := make([]byte, 4+8+4+len(tsBytes)+len(jsonBody))
	binary.LittleEndian.PutUint32(buf[0:4], payloadLen)
	binary.LittleEndian.PutUint64(buf[4:12], rec.Offset)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(tsBytes)))
	copy(buf[16:16+len(tsBytes)], tsBytes)
	copy(buf[16+len(tsBytes):], jsonBody)

	n, err := w.Write(buf)
	if err != nil {
		return n, err
	}
	return n, nil
}

// FrameSize returns the number of bytes WriteRecordFrame would write for
// rec, without serializing to a writer. Used by callers that must bound
// batch size before committing to disk (e.g. BatchTooLarge checks).
func FrameSize(rec RecordWithOffset) (int, error) {
	jsonBody, err := json.Marshal(toJSONRecord(rec.Record))
	if err != nil {
		return 0, fmt.Errorf("marshal record body: %w", err)
	}
	tsBytes := []byte(rec.Timestamp.UTC().Format(time.RFC3339Nano))
	return 4 + 8 + 4 + len(tsBytes) + len(jsonBody), nil
}

// ReadRecordFrame reads one record frame from r. It returns io.EOF if r is
// exhausted before any bytes of a new frame are read, and io.ErrUnexpectedEOF
// if a frame is truncated partway through — the caller (segment recovery)
// uses this distinction to find the torn-tail boundary.
func ReadRecordFrame(r io.Reader) (RecordWithOffset, int, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return RecordWithOffset{}, 0, io.ErrUnexpectedEOF
		}
		return RecordWithOffset{}, 0, err
	}
	payloadLen := binary.LittleEndian.Uint32(lenBuf[:])
	if payloadLen < 12 {
		return RecordWithOffset{}, 4, fmt.Errorf("%w: payload length %d too small", errs.ErrSegmentChainCorrupt, payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return RecordWithOffset{}, 4, io.ErrUnexpectedEOF
	}

	offset := binary.LittleEndian.Uint64(payload[0:8])
	tsLen := binary.LittleEndian.Uint32(payload[8:12])
	if uint32(len(payload)) < 12+tsLen {
		return RecordWithOffset{}, 4 + int(payloadLen), io.ErrUnexpectedEOF
	}
	tsBytes := payload[12 : 12+tsLen]
	jsonBytes := payload[12+tsLen:]

	ts, err := time.Parse(time.RFC3339Nano, string(tsBytes))
	if err != nil {
		return RecordWithOffset{}, 4 + int(payloadLen), fmt.Errorf("parse timestamp: %w", err)
	}

	var jr jsonRecord
	if err := json.Unmarshal(jsonBytes, &jr); err != nil {
		return RecordWithOffset{}, 4 + int(payloadLen), fmt.Errorf("unmarshal record body: %w", err)
	}

	return RecordWithOffset{
		Record:    jr.toRecord(),
		Offset:    offset,
		Timestamp: ts.UTC(),
	}, 4 + int(payloadLen), nil
}
