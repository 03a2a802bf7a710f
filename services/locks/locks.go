// Package locks serializes work on a key across API instances. The direct-charge path
// takes a lock per (subscriber, creator) pair before calling the payment provider; the
// database unique index stays the final guard.
package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the key is held by someone else.
var ErrBusy = errors.New("lock is held by another request")

type Locker interface {
	// Acquire takes the lock for key and returns the function releasing it.
	Acquire(ctx context.Context, key string) (func(), error)
}

const (
	defaultExpiry = 30 * time.Second
	defaultTries  = 1
)

// Redis is a redsync-backed Locker.
type Redis struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
	onErr  func(key string, err error)
}

func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func NewRedis(client *redis.Client, onUnlockErr func(key string, err error)) *Redis {
	return &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: defaultExpiry,
		tries:  defaultTries,
		onErr:  onUnlockErr,
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	mutex := r.rs.NewMutex("lock:"+key,
		redsync.WithExpiry(r.expiry),
		redsync.WithTries(r.tries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	return func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil && r.onErr != nil {
			r.onErr(key, err)
		}
	}, nil
}

// Local is an in-process Locker used when no Redis is configured. It only serializes
// requests served by the same instance.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocal() *Local {
	return &Local{held: map[string]bool{}}
}

func (l *Local) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrBusy
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

// PairKey is the lock key for a subscriber and a creator.
func PairKey(subscriberID, creatorID string) string {
	return "subscription:" + subscriberID + ":" + creatorID
}
