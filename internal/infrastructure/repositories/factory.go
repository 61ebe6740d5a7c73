package repositories

import (
	"context"

	"callrelay/internal/core/ports"
	"callrelay/internal/infrastructure/distributed"
	"callrelay/internal/infrastructure/repositories/memory"
	redisrepo "callrelay/internal/infrastructure/repositories/redis"
	"callrelay/pkg/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory builds the registry and event publisher for one relay
// instance. Redis is optional; when it is disabled or unreachable events are
// only logged.
type RepositoryFactory struct {
	instanceID  string
	channel     string
	redisClient *redis.Client
	eventBus    *distributed.EventBus
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		instanceID: uuid.NewString(),
		channel:    cfg.Redis.Channel,
		logger:     logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, lifecycle events will only be logged",
				"error", err,
			)
		} else {
			factory.redisClient = client
		}
	}

	return factory
}

func (f *RepositoryFactory) InstanceID() string {
	return f.instanceID
}

// CreateConnectionRegistry returns the in-process registry. Live sockets are
// bound to this process, so the registry is never shared.
func (f *RepositoryFactory) CreateConnectionRegistry() ports.ConnectionRegistry {
	return memory.NewMemoryConnectionRegistry()
}

// CreateEventPublisher returns the Redis event bus when connected and a
// logging publisher otherwise.
func (f *RepositoryFactory) CreateEventPublisher() ports.EventPublisher {
	if bus := f.EventBus(); bus != nil {
		return bus
	}
	return distributed.NewLogPublisher(f.instanceID, f.logger)
}

// EventBus returns the Redis event bus, or nil when Redis is not in use.
func (f *RepositoryFactory) EventBus() *distributed.EventBus {
	if f.redisClient == nil {
		return nil
	}
	if f.eventBus == nil {
		f.eventBus = distributed.NewEventBus(f.redisClient, f.instanceID, f.channel, f.logger)
	}
	return f.eventBus
}

func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.eventBus != nil {
		f.eventBus.Close()
	}
	return redisrepo.CloseRedisClient(f.redisClient)
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
