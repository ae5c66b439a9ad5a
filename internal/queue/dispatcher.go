// Package queue hands chunks to the processing stage and to sinks.
package queue

import (
	"context"
	"sync"

	"github.com/timmy/jobstore/internal/domain"
)

// Dispatcher publishes chunks to a named destination.
type Dispatcher interface {
	Publish(ctx context.Context, destination string, chunk *domain.Chunk) error
}

// Message is a chunk captured by a MemoryDispatcher.
type Message struct {
	Destination string
	Chunk       domain.Chunk
}

// MemoryDispatcher keeps published chunks in memory. Used in tests and when
// no broker is configured.
type MemoryDispatcher struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned from every Publish call.
	Err error
}

var _ Dispatcher = (*MemoryDispatcher)(nil)

// NewMemoryDispatcher creates an empty in-memory dispatcher.
func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

// Publish records the chunk.
func (m *MemoryDispatcher) Publish(_ context.Context, destination string, chunk *domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, Message{Destination: destination, Chunk: *chunk})
	return nil
}

// Messages returns a copy of everything published so far.
func (m *MemoryDispatcher) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// To returns the chunks published to one destination.
func (m *MemoryDispatcher) To(destination string) []domain.Chunk {
	var out []domain.Chunk
	for _, msg := range m.Messages() {
		if msg.Destination == destination {
			out = append(out, msg.Chunk)
		}
	}
	return out
}
