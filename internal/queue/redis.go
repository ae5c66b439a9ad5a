package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/timmy/jobstore/internal/domain"
)

// RedisConfig configures the Redis Streams dispatcher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// MaxLen caps each stream approximately; zero leaves streams unbounded.
	MaxLen int64
}

// RedisDispatcher publishes chunks to Redis Streams, one stream per destination.
type RedisDispatcher struct {
	client *redis.Client
	maxLen int64
}

var _ Dispatcher = (*RedisDispatcher)(nil)

// NewRedisDispatcher connects to Redis and verifies the connection.
func NewRedisDispatcher(cfg *RedisConfig) (*RedisDispatcher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisDispatcher(rdb, cfg.MaxLen), nil
}

func newRedisDispatcher(rdb *redis.Client, maxLen int64) *RedisDispatcher {
	return &RedisDispatcher{client: rdb, maxLen: maxLen}
}

// Publish appends the chunk to the destination stream with XADD.
func (r *RedisDispatcher) Publish(ctx context.Context, destination string, chunk *domain.Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: destination,
		Values: streamValues(chunk, data),
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis publish to %s failed: %w", destination, err)
	}
	return nil
}

// Ping checks broker connectivity.
func (r *RedisDispatcher) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisDispatcher) Close() error {
	return r.client.Close()
}

func streamValues(chunk *domain.Chunk, data []byte) map[string]interface{} {
	return map[string]interface{}{
		"jobId":   strconv.FormatInt(chunk.JobID, 10),
		"chunkId": strconv.Itoa(chunk.ChunkID),
		"type":    string(chunk.Type),
		"chunk":   data,
	}
}
