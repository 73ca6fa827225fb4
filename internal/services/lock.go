package services

import (
	"context"
	"sync"
)

// GroupLocker serializes cycle transitions per group. The returned release
// function must be called once the transition finishes.
type GroupLocker interface {
	AcquireGroupLock(ctx context.Context, groupID uint) (release func(), err error)
}

// LocalGroupLocker is the in-process fallback used when Redis is not
// configured. Sufficient under the single-process request model.
type LocalGroupLocker struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewLocalGroupLocker() *LocalGroupLocker {
	return &LocalGroupLocker{locks: make(map[uint]*sync.Mutex)}
}

func (l *LocalGroupLocker) AcquireGroupLock(ctx context.Context, groupID uint) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[groupID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[groupID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
