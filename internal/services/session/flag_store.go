package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// FlagStore persists the "was wallet connected" flag across restarts.
type FlagStore interface {
	WasConnected(ctx context.Context) (bool, error)
	SetConnected(ctx context.Context) error
	Clear(ctx context.Context) error
}

type RedisFlagStore struct {
	Redis *redis.Client
	key   string
}

func NewRedisFlagStore(redisClient *redis.Client, clientID string) *RedisFlagStore {
	return &RedisFlagStore{
		Redis: redisClient,
		key:   FlagKey(clientID),
	}
}

func FlagKey(clientID string) string {
	return fmt.Sprintf("wallet:connected:%s", clientID)
}

func (s *RedisFlagStore) WasConnected(ctx context.Context) (bool, error) {
	val, err := s.Redis.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return val == "true", nil
}

func (s *RedisFlagStore) SetConnected(ctx context.Context) error {
	return s.Redis.Set(ctx, s.key, "true", 0).Err()
}

func (s *RedisFlagStore) Clear(ctx context.Context) error {
	return s.Redis.Del(ctx, s.key).Err()
}

// MemoryFlagStore is used when no Redis is configured; the flag then only
// lives as long as the process.
type MemoryFlagStore struct {
	mu  sync.Mutex
	set bool
}

func (s *MemoryFlagStore) WasConnected(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set, nil
}

func (s *MemoryFlagStore) SetConnected(context.Context) error {
	s.mu.Lock()
	s.set = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryFlagStore) Clear(context.Context) error {
	s.mu.Lock()
	s.set = false
	s.mu.Unlock()
	return nil
}
