package service

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// OwnerLocker serializes writers of one owner's chunk set. Lock blocks until
// the owner is free or ctx is done; the returned func releases the lock.
type OwnerLocker interface {
	Lock(ctx context.Context, owner domain.Owner) (func(), error)
}

// LocalOwnerLocker serializes owners within a single process. An owner's
// entry lives only while someone holds or waits for it.
type LocalOwnerLocker struct {
	locks cmap.ConcurrentMap[string, *ownerSlot]
}

// ownerSlot is guarded by its map shard: refs only changes inside cmap
// callbacks.
type ownerSlot struct {
	sem  chan struct{}
	refs int
}

func NewLocalOwnerLocker() *LocalOwnerLocker {
	return &LocalOwnerLocker{locks: cmap.New[*ownerSlot]()}
}

func (l *LocalOwnerLocker) Lock(ctx context.Context, owner domain.Owner) (func(), error) {
	key := owner.String()
	slot := l.locks.Upsert(key, nil, func(exists bool, current, _ *ownerSlot) *ownerSlot {
		if !exists {
			current = &ownerSlot{sem: make(chan struct{}, 1)}
		}
		current.refs++
		return current
	})

	select {
	case slot.sem <- struct{}{}:
		return func() {
			<-slot.sem
			l.release(key)
		}, nil
	case <-ctx.Done():
		l.release(key)
		return nil, ctx.Err()
	}
}

// release drops one reference and removes the entry once nobody holds or
// waits for it.
func (l *LocalOwnerLocker) release(key string) {
	l.locks.RemoveCb(key, func(_ string, slot *ownerSlot, exists bool) bool {
		if !exists {
			return false
		}
		slot.refs--
		return slot.refs == 0
	})
}

// Len reports how many owners are currently locked or waited for.
func (l *LocalOwnerLocker) Len() int {
	return l.locks.Count()
}
