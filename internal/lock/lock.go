// Package lock serializes work on a single order across concurrent requests.
package lock

import (
	"context"
	"errors"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive locks by key. Lock blocks until the lock is
// held or ctx is done; the returned func releases it and is safe to call
// more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// OrderKey is the lock key for an order handle.
func OrderKey(orderNumber string) string {
	return "order:" + orderNumber
}
