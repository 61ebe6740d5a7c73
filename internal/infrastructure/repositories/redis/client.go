package redis

import (
	"context"
	"fmt"
	"time"

	"callrelay/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	// ConnectAttempts bounds the startup ping; 0 uses the retry defaults.
	ConnectAttempts int
}

func (o Options) retryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	if o.ConnectAttempts > 0 {
		cfg.MaxAttempts = o.ConnectAttempts
	}
	return cfg
}

// NewRedisClient creates a pooled client and verifies it with a ping.
func NewRedisClient(ctx context.Context, opts Options, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	err := retry.Do(ctx, opts.retryConfig(), func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Address, err)
	}

	if logger != nil {
		logger.Infow("connected to Redis",
			"address", opts.Address,
			"db", opts.DB,
			"pool_size", opts.PoolSize,
		)
	}

	return client, nil
}

// CloseRedisClient closes the client if there is one.
func CloseRedisClient(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
