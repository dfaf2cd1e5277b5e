package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ─── Redis ───────────────────────────────────────────────────────────────────

const keyPrefix = "match-service:task:"

// RedisStore keeps each task as a JSON string with a TTL, so records are
// shared across replicas and evicted by Redis itself.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore returns a RedisStore on rdb.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, t *Task, ttl time.Duration) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+t.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set task: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*Task, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get task: %w", err)
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

// ─── Memory ──────────────────────────────────────────────────────────────────

type memEntry struct {
	task      Task
	expiresAt time.Time
}

// MemoryStore is an in-process Store. The one-shot CLI commands use it since
// their tasks end with the process. Expired entries are dropped when read and
// on every Put.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, t *Task, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.entries[t.ID] = memEntry{task: *t, expiresAt: s.now().Add(ttl)}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, id)
		return nil, ErrNotFound
	}
	t := e.task
	return &t, nil
}

// prune removes expired entries and returns how many were dropped. Callers
// hold mu.
func (s *MemoryStore) prune() int {
	now := s.now()
	n := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}
