package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"loginguard/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore journals events as JSON documents in a Redis list, newest at the
// head.
type RedisStore struct {
	client    *redis.Client
	key       string
	maxEvents int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg models.RedisConfig, maxEvents int) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	key := cfg.Key
	if key == "" {
		key = "loginguard:blocks"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisStore(client, key, maxEvents), nil
}

func newRedisStore(client *redis.Client, key string, maxEvents int) *RedisStore {
	return &RedisStore{client: client, key: key, maxEvents: maxEvents}
}

func (s *RedisStore) Record(ctx context.Context, ev *models.BlockEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode block event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	if s.maxEvents > 0 {
		pipe.LTrim(ctx, s.key, 0, int64(s.maxEvents-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record block event: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, filter models.BlockEventFilter) ([]*models.BlockEvent, error) {
	stop := int64(-1)
	if filter.Identifier == "" && filter.Limit > 0 {
		stop = int64(filter.Limit - 1)
	}

	raw, err := s.client.LRange(ctx, s.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list block events: %w", err)
	}

	events := make([]*models.BlockEvent, 0, len(raw))
	for _, item := range raw {
		var ev models.BlockEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode block event: %w", err)
		}
		if !filter.Matches(&ev) {
			continue
		}
		events = append(events, &ev)
		if filter.Limit > 0 && len(events) == filter.Limit {
			break
		}
	}
	return events, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
