package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"slotgate/pkg/platform/sentinel"
)

const redisKeyPrefix = "slotgate:state:"

// RedisStore persists one proxy instance's slots as a Redis hash, one field
// per slot. Apply batches writes through a MULTI/EXEC pipeline so a failed
// commit leaves no partial slot writes behind.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, instance string) *RedisStore {
	return &RedisStore{client: client, key: redisKeyPrefix + instance}
}

func (s *RedisStore) Get(ctx context.Context, slot Slot) ([]byte, error) {
	v, err := s.client.HGet(ctx, s.key, slot.Hex()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", slot.Hex(), err)
	}
	return v, nil
}

func (s *RedisStore) Apply(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, w := range writes {
		pipe.HSet(ctx, s.key, w.Slot.Hex(), w.Value)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("apply %d slot writes: %w", len(writes), err)
	}
	return nil
}

// RedisFactory scopes stores to instances by hash key.
type RedisFactory struct {
	client *redis.Client
}

func NewRedisFactory(client *redis.Client) *RedisFactory {
	return &RedisFactory{client: client}
}

func (f *RedisFactory) ForInstance(id string) Store {
	return NewRedis(f.client, id)
}
