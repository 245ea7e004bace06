package storage

import (
	"context"
	"fmt"
	"io"
	"livegame-tracker/internal/config"
	"livegame-tracker/internal/constants"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// Backend is the key/value surface shared by the sample store, the snapshot
// aggregator and the lock. Get returns domain.ErrNotFound for absent keys.
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
	// PushCapped prepends value to the list at key, trims it to limit entries
	// and refreshes the key expiry when ttl > 0.
	PushCapped(ctx context.Context, key string, value []byte, limit int64, ttl time.Duration) error
	Range(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// DeleteIfEqual removes key only while it still holds value.
	DeleteIfEqual(ctx context.Context, key string, value []byte) (bool, error)
}

func New(lc fx.Lifecycle, cfg *config.Config, logger zerolog.Logger) (Backend, error) {
	backend, err := Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := backend.(io.Closer); ok {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				if err := c.Close(); err != nil {
					logger.Warn().Err(err).Msg("error closing storage backend")
				}
				return nil
			},
		})
	}
	return backend, nil
}

// Open picks the backend once at startup: redis when REDIS_URL is set and
// reachable, memory otherwise. The redis backend is wrapped so that a later
// outage degrades to memory for the rest of the process.
func Open(cfg *config.Config, logger zerolog.Logger) (Backend, error) {
	memory := NewMemoryBackend(time.Now)
	if cfg.RedisURL == "" {
		logger.Info().Msg("REDIS_URL not set, using in-memory storage backend")
		return memory, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	primary := NewRedisBackend(redis.NewClient(opt))

	ctx, cancel := context.WithTimeout(context.Background(), constants.BackendPingTimeout)
	defer cancel()
	if err := primary.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup, using in-memory storage backend")
		primary.Close()
		return memory, nil
	}

	logger.Info().Str("addr", opt.Addr).Msg("connected to redis storage backend")
	return NewFailover(primary, memory, logger), nil
}
