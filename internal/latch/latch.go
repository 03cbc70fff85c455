// Package latch guards a terminal session against submitting the same
// commit twice while the first one is still running.
package latch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrInFlight = errors.New("commit already in flight")

// Latch hands out one holder per key. The returned release func is safe to
// call more than once.
type Latch interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, ErrInFlight
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Redis shares the latch between server replicas. The TTL bounds how long a
// crashed holder can block its session.
type Redis struct {
	locker *redislock.Client
	ttl    time.Duration
	prefix string
	log    logrus.FieldLogger
}

func NewRedis(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		locker: redislock.New(client),
		ttl:    ttl,
		prefix: "lojapdv:latch:",
		log:    log.WithField("module", "latch"),
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := r.locker.Obtain(ctx, r.prefix+key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.log.WithError(err).WithField("key", key).Warn("failed to release commit latch")
			}
		})
	}, nil
}
