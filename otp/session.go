package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("sign-in session not found")

// SessionStore keeps flows between requests, keyed by an opaque session id.
type SessionStore interface {
	Load(ctx context.Context, id string) (*Flow, error)
	Save(ctx context.Context, id string, f *Flow) error
	Delete(ctx context.Context, id string) error
}

// RedisSessionStore stores flows as JSON with a sliding TTL.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return "otp:session:" + id }

func (s *RedisSessionStore) Load(ctx context.Context, id string) (*Flow, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load otp session: %w", err)
	}
	var f Flow
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode otp session: %w", err)
	}
	return &f, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, id string, f *Flow) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(id), raw, s.ttl).Err()
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKey(id)).Err()
}

// MemorySessionStore is the in-process twin of RedisSessionStore.
type MemorySessionStore struct {
	mu    sync.Mutex
	flows map[string]Flow
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{flows: make(map[string]Flow)}
}

func (s *MemorySessionStore) Load(_ context.Context, id string) (*Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &f, nil
}

func (s *MemorySessionStore) Save(_ context.Context, id string, f *Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[id] = *f
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, id)
	return nil
}
