/*
Package locking provides the per-key writer locks used by the inventory ledger.

PURPOSE:
  Receive and retire rewrite a label's whole unit list. Two writers on the
  same label must not interleave their read-modify-write cycles, so every
  ledger mutation holds the label's lock for its duration.

IMPLEMENTATIONS:
  Local: in-process keyed mutex. Enough for a single server process.
  Redis: bsm/redislock over go-redis, for several processes sharing one
         database. Lock keys expire after TTL so a crashed holder cannot
         wedge a label forever.

Both honour context cancellation while waiting.
*/
package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// LOCAL - In-process keyed mutex
// =============================================================================

type Local struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{} // buffered(1); holding the token means holding the lock
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*localLock)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lk, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, lk, true) })
	}, nil
}

func (l *Local) release(key string, lk *localLock, held bool) {
	if held {
		<-lk.ch
	}
	l.mu.Lock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// =============================================================================
// REDIS - Distributed lock via bsm/redislock
// =============================================================================

type Redis struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	prefix  string
	log     logrus.FieldLogger
}

type RedisOption func(*Redis)

// WithTTL sets how long a lock survives without being released.
func WithTTL(d time.Duration) RedisOption { return func(r *Redis) { r.ttl = d } }

func WithBackoff(d time.Duration) RedisOption { return func(r *Redis) { r.backoff = d } }

func WithPrefix(p string) RedisOption { return func(r *Redis) { r.prefix = p } }

func WithLogger(log logrus.FieldLogger) RedisOption { return func(r *Redis) { r.log = log } }

func NewRedis(rdb redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  redislock.New(rdb),
		ttl:     30 * time.Second,
		backoff: 50 * time.Millisecond,
		prefix:  "lock:",
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock retries until the key is free or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := r.prefix + key
	lock, err := r.client.Obtain(ctx, lockKey, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("could not obtain lock %s: %w", lockKey, err)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", lockKey, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled; release anyway.
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.log.WithFields(logrus.Fields{"key": lockKey}).WithError(err).Warn("release redis lock")
			}
		})
	}, nil
}
