package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/jobstore/internal/domain"
)

func TestMemoryDispatcher(t *testing.T) {
	d := NewMemoryDispatcher()
	ctx := context.Background()

	chunk := &domain.Chunk{JobID: 1, ChunkID: 0, Type: domain.ChunkTypePartitioned}
	require.NoError(t, d.Publish(ctx, "processor", chunk))
	require.NoError(t, d.Publish(ctx, "sink.broend", &domain.Chunk{JobID: 1, ChunkID: 0, Type: domain.ChunkTypeProcessed}))

	// later mutation of the caller's chunk is not observed
	chunk.ChunkID = 99

	assert.Len(t, d.Messages(), 2)
	got := d.To("processor")
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].ChunkID)
	assert.Empty(t, d.To("elsewhere"))
}

func TestMemoryDispatcherError(t *testing.T) {
	d := NewMemoryDispatcher()
	d.Err = errors.New("broker down")

	err := d.Publish(context.Background(), "processor", &domain.Chunk{JobID: 1})
	assert.EqualError(t, err, "broker down")
	assert.Empty(t, d.Messages())
}

func TestStreamValues(t *testing.T) {
	chunk := &domain.Chunk{JobID: 42, ChunkID: 3, Type: domain.ChunkTypeProcessed, SequenceKeys: []string{"870970"}}
	data, err := json.Marshal(chunk)
	require.NoError(t, err)

	values := streamValues(chunk, data)
	assert.Equal(t, "42", values["jobId"])
	assert.Equal(t, "3", values["chunkId"])
	assert.Equal(t, "PROCESSED", values["type"])

	var decoded domain.Chunk
	require.NoError(t, json.Unmarshal(values["chunk"].([]byte), &decoded))
	assert.Equal(t, *chunk, decoded)
}
