package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"meeting-booking-api/internal/logger"
)

const redisKeyPrefix = "meeting-booking:idempotency:"

// RedisIdempotencyStore shares cached responses between instances. Entries
// expire through the Redis TTL. Redis failures degrade to a cache miss.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl, log: log}
}

// OpenRedisIdempotencyStore parses url, connects and pings.
func OpenRedisIdempotencyStore(ctx context.Context, url string, ttl time.Duration, log *logger.Logger) (*RedisIdempotencyStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisIdempotencyStore(client, ttl, log), nil
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool) {
	val, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		s.log.Warn("idempotency lookup failed", "error", err)
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal(val, &cached); err != nil {
		s.log.Warn("idempotency entry corrupt", "error", err)
		return nil, false
	}
	return &cached, true
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) {
	response.CreatedAt = time.Now()
	payload, err := json.Marshal(response)
	if err != nil {
		s.log.Warn("encode idempotency entry", "error", err)
		return
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, s.ttl).Err(); err != nil {
		s.log.Warn("idempotency store failed", "error", err)
	}
}

func (s *RedisIdempotencyStore) Stop() {
	if err := s.client.Close(); err != nil {
		s.log.Warn("close redis client", "error", err)
	}
}
