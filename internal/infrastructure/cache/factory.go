package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/bridgesync/backend/internal/domain/order"
	"github.com/bridgesync/backend/internal/infrastructure/config"
)

// IdempotencyStoreFactory builds the idempotency store used for webhook
// deduplication. Redis is preferred; the in-memory store only deduplicates
// within a single process and is meant for development and tests.
type IdempotencyStoreFactory struct {
	redisConfig  config.RedisConfig
	logger       *zap.Logger
	requireRedis bool
}

// IdempotencyStoreFactoryOption is a functional option for the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the factory's logger
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithRequireRedis makes CreateStore fail instead of falling back to the
// in-memory store when Redis is unreachable. Multi-replica deployments
// need this: an in-memory fallback would re-place orders on redelivery.
func WithRequireRedis(require bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.requireRedis = require
	}
}

// NewIdempotencyStoreFactory creates a factory over the given Redis settings
func NewIdempotencyStoreFactory(cfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		redisConfig: cfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns a Redis-backed store, or the in-memory store when
// Redis is unreachable and not required.
func (f *IdempotencyStoreFactory) CreateStore() (order.IdempotencyStore, error) {
	store, err := f.CreateRedisStore()
	if err == nil {
		f.logger.Info("using Redis idempotency store")
		return store, nil
	}
	if f.requireRedis {
		return nil, fmt.Errorf("cache: Redis required for idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store; "+
		"redelivered webhooks may be processed twice across replicas",
		zap.Error(err),
	)
	return f.CreateInMemoryStore(), nil
}

// CreateRedisStore connects to Redis and returns a store backed by it
func (f *IdempotencyStoreFactory) CreateRedisStore() (order.IdempotencyStore, error) {
	store, err := NewRedisIdempotencyStore(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: failed to create Redis idempotency store: %w", err)
	}
	return store, nil
}

// CreateInMemoryStore returns a process-local store
func (f *IdempotencyStoreFactory) CreateInMemoryStore() order.IdempotencyStore {
	return NewInMemoryIdempotencyStore()
}
