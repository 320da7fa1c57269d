package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tidelink-audio/tidelink/pkg/storage"
	"github.com/tidelink-audio/tidelink/pkg/storage/postgres"
	"github.com/tidelink-audio/tidelink/pkg/storage/redis"
)

// ErrAdapterNotRegistered is returned by [Registry.CreateStore] when no
// factory has been registered under the requested adapter name.
var ErrAdapterNotRegistered = errors.New("config: storage adapter not registered")

// StoreFactory builds a snapshot store from the storage section of a config.
type StoreFactory func(ctx context.Context, cfg StorageConfig) (storage.Store, error)

// Registry maps storage adapter names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Adapter]StoreFactory
}

// NewRegistry returns a [Registry] pre-populated with the built-in adapters
// (memory, jsonfile, redis, postgres).
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[Adapter]StoreFactory)}

	r.Register(AdapterMemory, func(_ context.Context, _ StorageConfig) (storage.Store, error) {
		return storage.NewMemory(), nil
	})
	r.Register(AdapterJSONFile, func(_ context.Context, cfg StorageConfig) (storage.Store, error) {
		return storage.NewJSONFile(cfg.Path)
	})
	r.Register(AdapterRedis, func(ctx context.Context, cfg StorageConfig) (storage.Store, error) {
		return redis.NewStore(ctx, &goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	})
	r.Register(AdapterPostgres, func(ctx context.Context, cfg StorageConfig) (storage.Store, error) {
		return postgres.NewStore(ctx, cfg.DSN)
	})

	return r
}

// Register registers a store factory under the given adapter name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name Adapter, factory StoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = factory
}

// CreateStore builds the snapshot store selected by cfg.Adapter. An empty
// adapter falls back to [AdapterMemory].
func (r *Registry) CreateStore(ctx context.Context, cfg StorageConfig) (storage.Store, error) {
	name := cfg.Adapter
	if name == "" {
		name = AdapterMemory
	}

	r.mu.RLock()
	factory, ok := r.adapters[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAdapterNotRegistered, name)
	}
	return factory(ctx, cfg)
}
