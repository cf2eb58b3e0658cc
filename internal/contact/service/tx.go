package service

import (
	"context"
	"errors"
	"hash/fnv"
	"slices"
	"strconv"
	"sync"
	"time"

	dErrors "contactlink/pkg/domain-errors"
)

// ClusterTx serializes resolutions that may observe or mutate the same cluster.
// Implementations lock every key in keys (in a stable order) before calling fn
// and release them when fn returns. fn receives the store it must use for the
// duration of the transaction and the set of keys actually held.
type ClusterTx interface {
	RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store Store, held KeySet) error) error
}

// KeySet reports which lock keys a transaction holds.
type KeySet interface {
	Covers(key string) bool
}

// HeldKeys is a KeySet over an explicit list of keys.
type HeldKeys map[string]struct{}

func NewHeldKeys(keys []string) HeldKeys {
	h := make(HeldKeys, len(keys))
	for _, k := range keys {
		h[k] = struct{}{}
	}
	return h
}

func (h HeldKeys) Covers(key string) bool {
	_, ok := h[key]
	return ok
}

// AllKeys is held by implementations that serialize everything.
type AllKeys struct{}

func (AllKeys) Covers(string) bool { return true }

// errLockSetStale is returned from inside a transaction when the cluster grew
// beyond the keys held. The caller retries with the union.
var errLockSetStale = errors.New("cluster lock set is stale")

// defaultClusterTxTimeout bounds a whole resolution when the caller set no deadline.
const defaultClusterTxTimeout = 5 * time.Second

// EmailKey, PhoneKey and IDKey name the lock keys a resolution takes.
func EmailKey(email string) string { return "email:" + email }
func PhoneKey(phone string) string { return "phone:" + phone }
func IDKey(id int64) string        { return "id:" + strconv.FormatInt(id, 10) }

// SortedKeys returns keys deduplicated in ascending order. Every implementation
// acquires in this order so overlapping resolutions cannot deadlock.
func SortedKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// WithTimeout applies the default transaction timeout when ctx has no deadline.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultClusterTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// CheckContext converts a done context into a timeout domain error.
func CheckContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return nil
}

// globalTx takes one process-wide mutex around every resolution.
type globalTx struct {
	mu      sync.Mutex
	store   Store
	timeout time.Duration
}

// NewGlobalTx serializes all resolutions in this process.
func NewGlobalTx(store Store) ClusterTx {
	return &globalTx{store: store}
}

func (t *globalTx) RunInTx(ctx context.Context, _ []string, fn func(ctx context.Context, store Store, held KeySet) error) error {
	if err := CheckContext(ctx); err != nil {
		return err
	}
	ctx, cancel := WithTimeout(ctx, t.timeout)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := CheckContext(ctx); err != nil {
		return err
	}
	return fn(ctx, t.store, AllKeys{})
}

// numClusterShards is the number of mutexes keys hash onto. Collisions only
// add contention; they never weaken exclusion.
const numClusterShards = 256

// shardedTx locks the shards of every requested key in ascending shard order,
// so resolutions over disjoint clusters run in parallel.
type shardedTx struct {
	shards  [numClusterShards]sync.Mutex
	store   Store
	timeout time.Duration
}

// NewShardedTx locks at the granularity of the keys a resolution touches.
func NewShardedTx(store Store) ClusterTx {
	return &shardedTx{store: store}
}

func (t *shardedTx) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store Store, held KeySet) error) error {
	if err := CheckContext(ctx); err != nil {
		return err
	}
	ctx, cancel := WithTimeout(ctx, t.timeout)
	defer cancel()

	shards := shardsFor(keys)
	for _, i := range shards {
		t.shards[i].Lock()
	}
	defer func() {
		for j := len(shards) - 1; j >= 0; j-- {
			t.shards[shards[j]].Unlock()
		}
	}()

	if err := CheckContext(ctx); err != nil {
		return err
	}
	return fn(ctx, t.store, NewHeldKeys(keys))
}

func shardsFor(keys []string) []int {
	shards := make([]int, 0, len(keys))
	for _, k := range keys {
		shards = append(shards, int(hashKey(k)%numClusterShards))
	}
	slices.Sort(shards)
	return slices.Compact(shards)
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
