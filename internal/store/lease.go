// internal/store/lease.go
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease key only when it still holds our token, so
// an expired lease reacquired by another sweep is never released by the old
// holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Lease provides per-entity mutual exclusion for sweeps. Sweeps for different
// organizations may run concurrently; sweeps for the same entity must not
// overlap.
type Lease struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLease(rdb *redis.Client, ttl time.Duration) *Lease {
	return &Lease{rdb: rdb, ttl: ttl}
}

// Acquire attempts to take the lease for key. Returns the release token and
// false when another holder owns it.
func (l *Lease) Acquire(ctx context.Context, key string) (string, bool, error) {
	token := uuid.New().String()
	ok, err := l.rdb.SetNX(ctx, "lease:"+key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release frees the lease if the token still owns it.
func (l *Lease) Release(ctx context.Context, key, token string) error {
	return l.rdb.Eval(ctx, releaseScript, []string{"lease:" + key}, token).Err()
}
