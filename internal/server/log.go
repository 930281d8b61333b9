// Package server provides a thin convenience wrapper around a single
// internal/log.PartitionAppender, the way the teacher's internal/server.Log
// wrapped a bare in-memory slice. It is the surface an embedding HTTP/RPC
// layer would sit on top of; FlashQ's storage semantics themselves live in
// internal/log.
package server

import (
	"errors"
	"time"

	"github.com/harshitmahapatra/flashq/internal/log"
	"github.com/harshitmahapatra/flashq/internal/log/errs"
)

// ErrOffsetNotFound is returned by Read when offset is not present in the
// wrapped partition.
var ErrOffsetNotFound = errors.New("offset not found")

// Record is the API-facing record shape: a string value with no key or
// headers, matching the teacher's original surface. Callers needing keys,
// headers, or binary values should use internal/log.Record directly.
type Record struct {
	Offset uint64 `json:"offset"`
	Value  string `json:"value"`
}

// Log wraps one internal/log.PartitionAppender, translating between the
// API's plain string Record and the storage engine's internal/log.Record.
// Accepting the interface rather than *log.PartitionLog lets Log wrap either
// a file-backed or an in-memory partition interchangeably.
type Log struct {
	partition log.PartitionAppender
}

// NewLog wraps an already-open partition.
func NewLog(partition log.PartitionAppender) *Log {
	return &Log{partition: partition}
}

// Append appends record.Value and returns the offset assigned to it.
func (l *Log) Append(record Record) (uint64, error) {
	return l.partition.Append(log.Record{Value: []byte(record.Value)})
}

// Read returns the record stored at offset.
func (l *Log) Read(offset uint64) (Record, error) {
	recs, err := l.partition.ReadFrom(offset, 1, 0)
	if err != nil {
		if errors.Is(err, errs.ErrOffsetOutOfRange) {
			return Record{}, ErrOffsetNotFound
		}
		return Record{}, err
	}
	if len(recs) == 0 || recs[0].Offset != offset {
		return Record{}, ErrOffsetNotFound
	}
	return Record{Offset: recs[0].Offset, Value: string(recs[0].Value)}, nil
}

// ReadSince returns every record committed at or after ts, up to limit
// records (limit <= 0 means unbounded).
func (l *Log) ReadSince(ts time.Time, limit int) ([]Record, error) {
	recs, err := l.partition.ReadFromTime(ts, limit, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = Record{Offset: r.Offset, Value: string(r.Value)}
	}
	return out, nil
}
