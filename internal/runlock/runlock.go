package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key is the lock key used by the pipeline.
const Key = "ethyields:run"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker keeps two pipeline runs from overlapping. It is opt-in: the store's
// check-then-insert sequence is unchanged whether or not a lock is held.
type Locker struct {
	rdb *redis.Client
}

// New creates a Locker backed by Redis.
func New(redisURL, password string) (*Locker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &Locker{rdb: rdb}, nil
}

// Close shuts down the Redis connection.
func (l *Locker) Close() error {
	return l.rdb.Close()
}

// Lease is a held lock.
type Lease struct {
	l     *Locker
	key   string
	token string
}

// Acquire takes key for ttl. It returns (nil, nil) when another holder has it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{l: l, key: key, token: token}, nil
}

// Release drops the lock if it is still ours. An expired lease is a no-op.
func (le *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, le.l.rdb, []string{le.key}, le.token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", le.key, err)
	}
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
