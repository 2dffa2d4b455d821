// Package userlock serializes work per conversation owner.
package userlock

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Locker hands out exclusive access per key. unlock must be called exactly once; extra calls are ignored.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
	Mode() string
	Close() error
}

// New returns a Redis-backed locker when redisURL is set, otherwise an in-process one.
func New(ctx context.Context, redisURL string, ttl time.Duration) (Locker, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewLocal(), nil
	}
	return NewRedis(ctx, redisURL, ttl)
}

// Local is an in-process keyed mutex. Idle keys are dropped so the map does not grow with every user.
type Local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{keys: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// held reports how many keys currently have holders or waiters.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

func (l *Local) Mode() string { return "local" }

func (l *Local) Close() error { return nil }
