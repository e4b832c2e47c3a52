// Package synclock keeps two sync runs from writing the store at once.
package synclock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/zulandar/jobvalidator/internal/config"
)

// ErrHeld is returned when another run holds the lock.
var ErrHeld = errors.New("synclock: a sync run is already in progress")

// Release frees a held lock.
type Release func(ctx context.Context) error

// Locker grants exclusive sync runs.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

// New returns a Redis-backed Locker when cfg names a Redis address and an
// in-process one otherwise. The returned close func releases the connection.
func New(ctx context.Context, cfg config.LockConfig) (Locker, func() error, error) {
	if cfg.RedisAddr == "" {
		return &Local{}, func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("synclock: connect redis %s: %w", cfg.RedisAddr, err)
	}
	return NewRedis(rdb, cfg.Key, cfg.TTL), rdb.Close, nil
}

// Local is an in-process lock. Acquire never blocks.
type Local struct {
	mu   sync.Mutex
	held bool
}

func (l *Local) Acquire(context.Context) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, ErrHeld
	}
	l.held = true
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			l.held = false
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// Redis is a lock shared by every process pointed at the same Redis. A held
// lock is refreshed in the background until released, so a run may outlast
// the TTL; the TTL only bounds how long a crashed holder blocks others.
type Redis struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
}

// NewRedis wraps rdb in a redislock client.
func NewRedis(rdb redislock.RedisClient, key string, ttl time.Duration) *Redis {
	return &Redis{locker: redislock.New(rdb), key: key, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context) (Release, error) {
	lock, err := r.locker.Obtain(ctx, r.key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrHeld
	}
	if err != nil {
		return nil, fmt.Errorf("synclock: obtain %s: %w", r.key, err)
	}
	stop := keepAlive(refreshInterval(r.ttl), func(ctx context.Context) error {
		return lock.Refresh(ctx, r.ttl, nil)
	})
	return func(ctx context.Context) error {
		stop()
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("synclock: release %s: %w", r.key, err)
		}
		return nil
	}, nil
}

func refreshInterval(ttl time.Duration) time.Duration {
	return max(ttl/3, 10*time.Millisecond)
}

// keepAlive calls refresh every interval until stop is called or refresh
// fails. stop waits for the loop to exit and may be called more than once.
func keepAlive(interval time.Duration, refresh func(context.Context) error) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := refresh(ctx); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
