package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisResultStore writes each result as one JSON string value. A zero ttl
// keeps results forever.
type RedisResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisResultStore(client *redis.Client, ttl time.Duration) *RedisResultStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisResultStore{client: client, ttl: ttl}
}

func (s *RedisResultStore) Put(ctx context.Context, key string, result domain.PipelineResult) (string, error) {
	data, err := encodeResult(result)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set result: %w", err)
	}
	return key, nil
}

func (s *RedisResultStore) Get(ctx context.Context, location string) (domain.PipelineResult, error) {
	data, err := s.client.Get(ctx, location).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PipelineResult{}, ErrNotFound
		}
		return domain.PipelineResult{}, fmt.Errorf("redis get result: %w", err)
	}
	return decodeResult(data)
}
