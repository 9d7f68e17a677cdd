package lock

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Local is an in-process keyed lock. Each key owns a one-slot semaphore
// created on first use. Safe for concurrent use.
type Local struct {
	slots *xsync.MapOf[string, chan struct{}]
}

// NewLocal returns an empty Local locker.
func NewLocal() *Local {
	return &Local{slots: xsync.NewMapOf[string, chan struct{}]()}
}

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	slot, _ := l.slots.LoadOrCompute(key, func() chan struct{} {
		return make(chan struct{}, 1)
	})

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var released atomic.Bool
	return func(context.Context) error {
		if !released.CompareAndSwap(false, true) {
			return ErrNotHeld
		}
		<-slot
		return nil
	}, nil
}
