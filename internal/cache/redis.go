package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"example.com/backstage/services/airlogistic/config"
)

// Client is a read cache for hot entity GETs. Misses return redis.Nil;
// callers fall through to the database and repopulate.
type Client interface {
	Get(ctx context.Context, kind, id string, out interface{}) error
	Set(ctx context.Context, kind, id string, value interface{}) error
	Delete(ctx context.Context, kind, id string) error
}

// RedisClient implements Client using Redis
type RedisClient struct {
	client  *redis.Client
	enabled bool
	ttl     time.Duration
}

// NewRedisClient creates a new Redis client. A disabled config yields a
// client whose reads always miss.
func NewRedisClient(cfg config.RedisConfig) (Client, error) {
	if !cfg.Enabled {
		return &RedisClient{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client:  client,
		enabled: true,
		ttl:     time.Hour,
	}, nil
}

func entityKey(kind, id string) string {
	return fmt.Sprintf("%s:%s", kind, id)
}

// Get retrieves an entity from cache into out.
func (c *RedisClient) Get(ctx context.Context, kind, id string, out interface{}) error {
	if !c.enabled {
		return redis.Nil
	}

	data, err := c.client.Get(ctx, entityKey(kind, id)).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, out)
}

// Set caches an entity.
func (c *RedisClient) Set(ctx context.Context, kind, id string, value interface{}) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, entityKey(kind, id), data, c.ttl).Err()
}

// Delete evicts an entity after a mutation.
func (c *RedisClient) Delete(ctx context.Context, kind, id string) error {
	if !c.enabled {
		return nil
	}

	return c.client.Del(ctx, entityKey(kind, id)).Err()
}
