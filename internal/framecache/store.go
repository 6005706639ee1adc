// Package framecache keeps the most recent relayed frame per device so a
// viewer can fetch it without waiting for the next live frame.
package framecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"glassmon/internal/model"
)

// Store persists the latest frame envelope per device id.
type Store interface {
	Put(ctx context.Context, deviceID string, frame model.FrameEnvelope) error
	Get(ctx context.Context, deviceID string) (model.FrameEnvelope, bool, error)
}

type cachedFrame struct {
	frame    model.FrameEnvelope
	storedAt time.Time
}

// MemoryStore is the single-process backend used when no Redis address is
// configured.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.RWMutex
	frames map[string]cachedFrame
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, frames: make(map[string]cachedFrame)}
}

func (s *MemoryStore) Put(_ context.Context, deviceID string, frame model.FrameEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[deviceID] = cachedFrame{frame: frame, storedAt: s.now()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, deviceID string) (model.FrameEnvelope, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.frames[deviceID]
	if !ok {
		return model.FrameEnvelope{}, false, nil
	}
	if s.ttl > 0 && s.now().Sub(c.storedAt) > s.ttl {
		return model.FrameEnvelope{}, false, nil
	}
	return c.frame, true, nil
}

const redisKeyPrefix = "glassmon:frame:"

// RedisStore keeps frames in Redis with a TTL so stale devices age out.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr, password string, ttl time.Duration) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	}), ttl)
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, deviceID string, frame model.FrameEnvelope) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+deviceID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, deviceID string) (model.FrameEnvelope, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+deviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.FrameEnvelope{}, false, nil
	}
	if err != nil {
		return model.FrameEnvelope{}, false, fmt.Errorf("redis get: %w", err)
	}
	var frame model.FrameEnvelope
	if err := json.Unmarshal(data, &frame); err != nil {
		return model.FrameEnvelope{}, false, fmt.Errorf("decode frame: %w", err)
	}
	return frame, true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
