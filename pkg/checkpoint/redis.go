package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ecomops/opsloop/pkg/models"
)

// redisKeyPrefix namespaces checkpoint keys so the instance can share a Redis
// database with other services.
const redisKeyPrefix = "opsloop:checkpoint:"

// redisConnectTimeout bounds the startup ping.
const redisConnectTimeout = 5 * time.Second

// RedisStore keeps checkpoints as JSON blobs with a TTL. Suits deployments
// that already run Redis and want approval windows to expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection with a ping. A
// zero TTL stores checkpoints without expiry.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Put(ctx context.Context, threadID string, state *models.GraphState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", threadID, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+threadID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", threadID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, threadID string) (*models.GraphState, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+threadID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	var state models.GraphState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint %s: %w", threadID, err)
	}
	return &state, nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	n, err := s.client.Del(ctx, redisKeyPrefix+threadID).Result()
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", threadID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
