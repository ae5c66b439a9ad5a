package partitioner

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/timmy/jobstore/internal/domain"
)

// Result summarizes a partitioning run.
type Result struct {
	NumberOfChunks int
	NumberOfItems  int
	Counts         domain.ItemCounts
	BytesRead      int64
}

// Chunker groups records into sealed chunks of at most Size items.
type Chunker struct {
	Size       int
	Keys       KeyGenerator
	TrackingID func() string
}

// NewChunker returns a Chunker with uuid tracking ids.
func NewChunker(size int, keys KeyGenerator) *Chunker {
	if size <= 0 {
		size = domain.ChunkRecordCountUpperBound
	}
	return &Chunker{Size: size, Keys: keys, TrackingID: uuid.NewString}
}

// Partition reads reader to the end and hands every sealed chunk to emit, in chunk id order.
// A data file without records yields the same single JOB_END chunk as an empty job.
func (c *Chunker) Partition(ctx context.Context, jobID int64, reader RecordReader, emit func(*domain.Chunk) error) (*Result, error) {
	res := &Result{}
	chunk := c.newChunk(jobID, 0)

	seal := func() error {
		if err := emit(chunk); err != nil {
			return err
		}
		res.NumberOfChunks++
		chunk = c.newChunk(jobID, res.NumberOfChunks)
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		item := domain.ChunkItem{
			ID:          len(chunk.Items),
			Status:      rec.Status,
			Type:        rec.Type,
			Data:        rec.Data,
			Encoding:    rec.Encoding,
			TrackingID:  c.TrackingID(),
			Diagnostics: rec.Diagnostics,
		}
		chunk.Items = append(chunk.Items, item)
		res.Counts.Add(item.Status)
		res.NumberOfItems++
		if c.Keys != nil {
			chunk.SequenceKeys = []string(domain.StringSet(chunk.SequenceKeys).Add(c.Keys.KeyFor(rec)))
		}

		if len(chunk.Items) == c.Size {
			if err := seal(); err != nil {
				return nil, err
			}
		}
	}

	if len(chunk.Items) > 0 {
		if err := seal(); err != nil {
			return nil, err
		}
	}
	res.BytesRead = reader.BytesRead()

	if res.NumberOfItems == 0 {
		end := EmptyJobChunk(jobID, c.TrackingID())
		if err := emit(end); err != nil {
			return nil, err
		}
		res.NumberOfChunks = 1
		res.NumberOfItems = 1
		res.Counts = domain.CountItems(end.Items)
	}
	return res, nil
}

func (c *Chunker) newChunk(jobID int64, chunkID int) *domain.Chunk {
	return &domain.Chunk{
		JobID:   jobID,
		ChunkID: chunkID,
		Type:    domain.ChunkTypePartitioned,
		Items:   make([]domain.ChunkItem, 0, c.Size),
	}
}

// EmptyJobChunk is chunk 0 holding a single JOB_END item marked SUCCESS.
func EmptyJobChunk(jobID int64, trackingID string) *domain.Chunk {
	return &domain.Chunk{
		JobID:   jobID,
		ChunkID: 0,
		Type:    domain.ChunkTypePartitioned,
		Items: []domain.ChunkItem{{
			ID:         0,
			Status:     domain.ItemStatusSuccess,
			Type:       domain.ItemTypeJobEnd,
			Data:       []byte{},
			TrackingID: trackingID,
		}},
	}
}
