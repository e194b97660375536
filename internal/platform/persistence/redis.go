package persistence

import (
	"context"
	"fmt"

	"github.com/bsm/redislock"
	"github.com/progress-ledger/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis wraps the client used for distributed audit locks.
type Redis struct {
	logger *zap.Logger
	client *redis.Client
	locker *redislock.Client
}

func NewRedis(ctx context.Context, logger *zap.Logger, cfg *config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))

	return &Redis{
		logger: logger,
		client: client,
		locker: redislock.New(client),
	}, nil
}

func (r *Redis) Client() *redis.Client {
	return r.client
}

func (r *Redis) Locker() *redislock.Client {
	return r.locker
}

func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}
	r.logger.Info("Closed Redis connection")
	return nil
}
