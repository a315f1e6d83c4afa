package cacheinfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a RemoteStore over a shared Redis instance. It is the tier
// that makes preference changes visible across processes; the in-process tier
// in each process fronts it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured Redis client. The store does not
// own the client and never closes it.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements RemoteStore.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Set implements RemoteStore. Redis honors the per-entry ttl directly.
func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, payload, ttl).Err()
}

// Delete implements RemoteStore.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Increment implements RemoteStore. The ttl is applied only when the counter
// is created, detected by the incremented value equaling the amount.
func (s *RedisStore) Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	value, err := s.client.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 && value == amount {
		if err := s.client.PExpire(ctx, key, ttl).Err(); err != nil {
			return value, err
		}
	}
	return value, nil
}

// DeletePattern implements PatternDeleter using SCAN, so it never blocks the
// server the way KEYS would.
func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) error {
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()

	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := s.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return flush()
}

// RedisNotifier publishes sync events over Redis pub/sub. Each user gets a
// dedicated channel so connected clients subscribe only to their own events.
type RedisNotifier struct {
	client    *redis.Client
	namespace string
}

// NewRedisNotifier creates a notifier publishing on channels prefixed with
// namespace.
func NewRedisNotifier(client *redis.Client, namespace string) *RedisNotifier {
	return &RedisNotifier{client: client, namespace: namespace}
}

// Publish sends the event to targetUser's channel. The payload is JSON so
// non-Go subscribers (browser bridges, other services) can consume it.
func (n *RedisNotifier) Publish(ctx context.Context, event string, payload any, targetUser string) error {
	message, err := json.Marshal(map[string]any{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.namespace+":events:"+targetUser, message).Err()
}
