package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/safegear/services/ppe/config"
	"example.com/safegear/services/ppe/internal/model"
)

// Client caches worker and item profiles for the hot lookup path. All
// failures degrade to database reads.
type Client interface {
	GetWorker(ctx context.Context, id uuid.UUID) (*model.Worker, error)
	SetWorker(ctx context.Context, worker *model.Worker) error
	GetItem(ctx context.Context, id uuid.UUID) (*model.EquipmentItem, error)
	SetItem(ctx context.Context, item *model.EquipmentItem) error
	Invalidate(ctx context.Context, keys ...string) error
	Close() error
}

// Nil is returned on cache miss
var Nil = redis.Nil

// redisClient implements Client using Redis
type redisClient struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
}

// NewRedisClient creates a new Redis cache client
func NewRedisClient(cfg *config.RedisConfig) (Client, error) {
	if !cfg.Enabled {
		return &redisClient{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &redisClient{
		client:  client,
		ttl:     ttl,
		enabled: true,
	}, nil
}

func workerKey(id uuid.UUID) string { return "ppe:worker:" + id.String() }
func itemKey(id uuid.UUID) string   { return "ppe:item:" + id.String() }

// GetWorker retrieves a worker profile from cache
func (c *redisClient) GetWorker(ctx context.Context, id uuid.UUID) (*model.Worker, error) {
	var worker model.Worker
	if err := c.get(ctx, workerKey(id), &worker); err != nil {
		return nil, err
	}
	return &worker, nil
}

// SetWorker caches a worker profile
func (c *redisClient) SetWorker(ctx context.Context, worker *model.Worker) error {
	return c.set(ctx, workerKey(worker.ID), worker)
}

// GetItem retrieves an equipment item from cache
func (c *redisClient) GetItem(ctx context.Context, id uuid.UUID) (*model.EquipmentItem, error) {
	var item model.EquipmentItem
	if err := c.get(ctx, itemKey(id), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// SetItem caches an equipment item
func (c *redisClient) SetItem(ctx context.Context, item *model.EquipmentItem) error {
	return c.set(ctx, itemKey(item.ID), item)
}

// Invalidate drops the given cache keys
func (c *redisClient) Invalidate(ctx context.Context, keys ...string) error {
	if !c.enabled || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Close closes the underlying connection
func (c *redisClient) Close() error {
	if !c.enabled {
		return nil
	}
	return c.client.Close()
}

func (c *redisClient) get(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return Nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, value)
}

func (c *redisClient) set(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal cache value")
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// ItemKey exposes the cache key for an item, for invalidation by services
func ItemKey(id uuid.UUID) string { return itemKey(id) }

// WorkerKey exposes the cache key for a worker, for invalidation by services
func WorkerKey(id uuid.UUID) string { return workerKey(id) }
