package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"contactlink/internal/contact/service"
	dErrors "contactlink/pkg/domain-errors"
)

const (
	defaultLockTTL       = 10 * time.Second
	defaultRetryInterval = 5 * time.Millisecond
	lockKeyPrefix        = "contactlink:lock:"
	// ttlMarginDivisor reserves a fifth of the TTL for release and clock skew.
	ttlMarginDivisor = 5
)

// releaseScript deletes a lock key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTx serializes resolutions across processes with one Redis key per
// cluster key (SET NX PX). Keys expire after the TTL so a crashed holder
// cannot wedge a cluster. A resolution is cancelled before its keys can
// expire, whatever deadline the caller set.
type RedisTx struct {
	client        *redis.Client
	store         service.Store
	logger        *slog.Logger
	ttl           time.Duration
	retryInterval time.Duration
	timeout       time.Duration
}

// RedisOption configures a RedisTx.
type RedisOption func(*RedisTx)

func WithLockTTL(ttl time.Duration) RedisOption {
	return func(t *RedisTx) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

func WithRetryInterval(d time.Duration) RedisOption {
	return func(t *RedisTx) {
		if d > 0 {
			t.retryInterval = d
		}
	}
}

func WithTxTimeout(d time.Duration) RedisOption {
	return func(t *RedisTx) {
		t.timeout = d
	}
}

func WithLockLogger(logger *slog.Logger) RedisOption {
	return func(t *RedisTx) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewRedisTx(client *redis.Client, store service.Store, opts ...RedisOption) *RedisTx {
	t := &RedisTx{
		client:        client,
		store:         store,
		logger:        slog.Default(),
		ttl:           defaultLockTTL,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func (t *RedisTx) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store service.Store, held service.KeySet) error) error {
	if err := service.CheckContext(ctx); err != nil {
		return err
	}
	ctx, cancel := service.WithTimeout(ctx, t.timeout)
	defer cancel()
	// Every key is set after this point, so none expires before the budget ends.
	ctx, cancelHold := context.WithTimeout(ctx, holdBudget(t.ttl))
	defer cancelHold()

	token := uuid.NewString()
	sorted := service.SortedKeys(keys)
	acquired := make([]string, 0, len(sorted))
	defer func() {
		t.release(acquired, token)
	}()

	for _, key := range sorted {
		if err := t.acquire(ctx, lockKeyPrefix+key, token); err != nil {
			return err
		}
		acquired = append(acquired, lockKeyPrefix+key)
	}

	if err := fn(ctx, t.store, service.NewHeldKeys(sorted)); err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "resolution cancelled before its cluster locks expired")
		}
		return err
	}
	return nil
}

// holdBudget is how long a resolution may run, acquisition included.
func holdBudget(ttl time.Duration) time.Duration {
	return ttl - ttl/ttlMarginDivisor
}

func (t *RedisTx) acquire(ctx context.Context, key, token string) error {
	for {
		ok, err := t.client.SetNX(ctx, key, token, t.ttl).Result()
		if err != nil {
			if ctxErr := service.CheckContext(ctx); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("acquire redis lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(t.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return service.CheckContext(ctx)
		case <-timer.C:
		}
	}
}

// release runs on a fresh context so a cancelled request still frees its keys.
// A key that fails to release stays held until its TTL.
func (t *RedisTx) release(keys []string, token string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.ttl)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		if err := releaseScript.Run(ctx, t.client, []string{keys[i]}, token).Err(); err != nil {
			t.logger.Warn("release redis lock",
				"key", keys[i],
				"ttl", t.ttl,
				"error", err,
			)
		}
	}
}
