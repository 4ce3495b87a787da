package state

import (
	"context"
	"time"
)

const (
	lockKeyPrefix = "lock:worker:"
	lockValue     = "BUSY"
)

// AcquireWorkerLock atomically claims the execution slot for the named
// worker. It reports false when another task on the same worker identity is
// mid-execution or a stale lock has not yet expired. The TTL bounds how long
// a crashed worker can block future tasks on its name.
func (s *Store) AcquireWorkerLock(ctx context.Context, workerName string, ttl time.Duration) (bool, error) {
	return s.SetNX(ctx, lockKeyPrefix+workerName, lockValue, ttl)
}

// ReleaseWorkerLock drops the execution slot. It is safe to call on a lock
// that already expired.
func (s *Store) ReleaseWorkerLock(ctx context.Context, workerName string) error {
	return s.Del(ctx, lockKeyPrefix+workerName)
}
