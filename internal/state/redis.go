package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"nft/seller/internal/domain"
)

type redisStore struct {
	redisClient *redis.Client
	key         string
}

// NewRedisStore keeps the record as one JSON value under keyPrefix+collection.
func NewRedisStore(redisClient *redis.Client, keyPrefix, collection string) Store {
	return &redisStore{
		redisClient: redisClient,
		key:         keyPrefix + collection,
	}
}

func (s *redisStore) Describe() string {
	return "redis " + s.key
}

func (s *redisStore) Exists(ctx context.Context) (bool, error) {
	n, err := s.redisClient.Exists(ctx, s.key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: check %s: %v", domain.ErrPersistence, s.key, err)
	}
	return n > 0, nil
}

func (s *redisStore) Load(ctx context.Context) (*Record, error) {
	val, err := s.redisClient.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NewRecord(), nil // No progress saved yet
		}
		return nil, fmt.Errorf("%w: get %s: %v", domain.ErrPersistence, s.key, err)
	}
	return decode(val, s.key)
}

func (s *redisStore) Persist(ctx context.Context, record *Record) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", domain.ErrPersistence, err)
	}
	if err := s.redisClient.Set(ctx, s.key, b, 0).Err(); err != nil { // No expiration
		return fmt.Errorf("%w: set %s: %v", domain.ErrPersistence, s.key, err)
	}
	return nil
}
