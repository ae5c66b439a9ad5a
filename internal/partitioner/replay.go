package partitioner

import (
	"io"

	"github.com/timmy/jobstore/internal/domain"
)

// itemReader replays items recorded by an earlier partitioning as records.
type itemReader struct {
	items []domain.ChunkItem
	n     int64
}

// NewItemReader returns a reader over previously partitioned items, in the given order.
// Item ids and tracking ids are not carried over; the chunker assigns new ones.
func NewItemReader(items []domain.ChunkItem) RecordReader {
	return &itemReader{items: items}
}

func (r *itemReader) Next() (*Record, error) {
	if len(r.items) == 0 {
		return nil, io.EOF
	}
	item := r.items[0]
	r.items = r.items[1:]
	r.n += int64(len(item.Data))
	return &Record{
		Data:        item.Data,
		Type:        item.Type,
		Status:      item.Status,
		Encoding:    item.Encoding,
		Diagnostics: item.Diagnostics,
	}, nil
}

func (r *itemReader) BytesRead() int64 {
	return r.n
}
