package storage

import (
	"context"
	"errors"
	"io"
	"livegame-tracker/internal/domain"
	"net"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Failover serves from primary until its first connectivity error and from
// fallback for the rest of the process afterwards. Data written to primary
// before the switch is not copied over.
type Failover struct {
	primary  Backend
	fallback Backend
	degraded atomic.Bool
	logger   zerolog.Logger
}

func NewFailover(primary, fallback Backend, logger zerolog.Logger) *Failover {
	return &Failover{primary: primary, fallback: fallback, logger: logger}
}

func (f *Failover) Name() string {
	if f.degraded.Load() {
		return f.primary.Name() + "->" + f.fallback.Name()
	}
	return f.primary.Name()
}

func (f *Failover) Degraded() bool { return f.degraded.Load() }

func (f *Failover) active() Backend {
	if f.degraded.Load() {
		return f.fallback
	}
	return f.primary
}

// unreachable reports whether err says the store cannot be talked to at
// all. Replies from a reachable server, such as WRONGTYPE, are not.
func unreachable(err error) bool {
	var reply redis.Error
	if errors.As(err, &reply) {
		return false
	}
	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, redis.ErrClosed),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	// the pool timeout sentinel lives in an internal go-redis package
	return strings.Contains(err.Error(), "connection pool timeout")
}

// failed reports whether err from primary means the backend is gone, and
// flips to the fallback if so. Other errors go back to the caller.
func (f *Failover) failed(ctx context.Context, op string, err error) bool {
	if err == nil || ctx.Err() != nil || !unreachable(err) {
		return false
	}
	if f.degraded.CompareAndSwap(false, true) {
		f.logger.Warn().
			Err(errors.Join(domain.ErrBackendUnavailable, err)).
			Str("op", op).
			Str("primary", f.primary.Name()).
			Str("fallback", f.fallback.Name()).
			Msg("storage backend failed, switching to fallback for the rest of the process")
	}
	return true
}

// Close releases the primary's connections. The fallback holds none.
func (f *Failover) Close() error {
	if c, ok := f.primary.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (f *Failover) Ping(ctx context.Context) error {
	return f.active().Ping(ctx)
}

func (f *Failover) PushCapped(ctx context.Context, key string, value []byte, limit int64, ttl time.Duration) error {
	if !f.degraded.Load() {
		err := f.primary.PushCapped(ctx, key, value, limit, ttl)
		if !f.failed(ctx, "push", err) {
			return err
		}
	}
	return f.fallback.PushCapped(ctx, key, value, limit, ttl)
}

func (f *Failover) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if !f.degraded.Load() {
		out, err := f.primary.Range(ctx, key, start, stop)
		if !f.failed(ctx, "range", err) {
			return out, err
		}
	}
	return f.fallback.Range(ctx, key, start, stop)
}

func (f *Failover) Get(ctx context.Context, key string) ([]byte, error) {
	if !f.degraded.Load() {
		out, err := f.primary.Get(ctx, key)
		if !f.failed(ctx, "get", err) {
			return out, err
		}
	}
	return f.fallback.Get(ctx, key)
}

func (f *Failover) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !f.degraded.Load() {
		err := f.primary.Set(ctx, key, value, ttl)
		if !f.failed(ctx, "set", err) {
			return err
		}
	}
	return f.fallback.Set(ctx, key, value, ttl)
}

func (f *Failover) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if !f.degraded.Load() {
		ok, err := f.primary.SetNX(ctx, key, value, ttl)
		if !f.failed(ctx, "setnx", err) {
			return ok, err
		}
	}
	return f.fallback.SetNX(ctx, key, value, ttl)
}

func (f *Failover) DeleteIfEqual(ctx context.Context, key string, value []byte) (bool, error) {
	if !f.degraded.Load() {
		ok, err := f.primary.DeleteIfEqual(ctx, key, value)
		if !f.failed(ctx, "delete", err) {
			return ok, err
		}
	}
	return f.fallback.DeleteIfEqual(ctx, key, value)
}
