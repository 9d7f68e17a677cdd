// Package lock provides per-grouping mutual exclusion for reconciliation
// runs.
//
// Two runs of the same grouping must not interleave their delete and
// insert statements. Local serializes runs inside one process; Redis
// serializes them across processes sharing a Redis server.
package lock

import (
	"context"
	"errors"
	"strconv"
)

// ErrNotHeld is returned by an unlock whose lock expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// Locker acquires named locks. Lock blocks until the lock is held or ctx
// is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// GroupingKey returns the lock key for a grouping id.
func GroupingKey(groupingID int64) string {
	return "autocat:grouping:" + strconv.FormatInt(groupingID, 10)
}

// Noop is a Locker that never blocks.
type Noop struct{}

func (Noop) Lock(context.Context, string) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}
