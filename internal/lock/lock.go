package lock

import (
	"context"
	"fmt"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/storage"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Handle is held by the runner that acquired a job lock.
type Handle struct {
	Key   string
	token string
}

// Locker is best-effort mutual exclusion over the storage backend. The TTL
// is what frees the lock when a holder dies.
type Locker struct {
	backend storage.Backend
	logger  zerolog.Logger
}

func NewLocker(backend storage.Backend, logger zerolog.Logger) *Locker {
	return &Locker{backend: backend, logger: logger}
}

func Key(job string) string { return constants.LockKeyPrefix + job }

// Acquire makes one set-if-absent attempt. A nil handle with a nil error
// means another runner holds the lock.
func (l *Locker) Acquire(ctx context.Context, job string, ttl time.Duration) (*Handle, error) {
	token, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate lock token: %w", err)
	}
	key := Key(job)
	ok, err := l.backend.SetNX(ctx, key, []byte(token), ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		l.logger.Info().Str("lock", key).Msg("lock held by another runner")
		return nil, nil
	}
	l.logger.Debug().Str("lock", key).Dur("ttl", ttl).Msg("lock acquired")
	return &Handle{Key: key, token: token}, nil
}

// Release deletes the lock if it still carries this handle's token. Errors
// are logged and otherwise ignored.
func (l *Locker) Release(ctx context.Context, h *Handle) {
	if h == nil {
		return
	}
	deleted, err := l.backend.DeleteIfEqual(context.WithoutCancel(ctx), h.Key, []byte(h.token))
	if err != nil {
		l.logger.Warn().Err(err).Str("lock", h.Key).Msg("failed to release lock, relying on ttl")
		return
	}
	if !deleted {
		l.logger.Warn().Str("lock", h.Key).Msg("lock expired before release")
		return
	}
	l.logger.Debug().Str("lock", h.Key).Msg("lock released")
}

// WithLock runs fn only when the lock is acquired and always releases it
// afterwards. ran is false on contention.
func (l *Locker) WithLock(ctx context.Context, job string, ttl time.Duration, fn func(ctx context.Context) error) (ran bool, err error) {
	h, err := l.Acquire(ctx, job, ttl)
	if err != nil {
		return false, err
	}
	if h == nil {
		return false, nil
	}
	defer l.Release(ctx, h)
	return true, fn(ctx)
}
