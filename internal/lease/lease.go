// Package lease provides per-invoice mutual exclusion for submission
// work. Sweeps may run on different worker instances, so the lease lives
// in redis with a TTL: a crashed worker's lease expires instead of
// wedging the invoice forever.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/facturia-app/facturia/internal/config"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker hands out TTL-bounded leases keyed by string. With a redis
// client it is safe across worker instances; without one it degrades to
// an in-process table for single-node deployments and tests.
type Locker struct {
	client *redis.Client
	script *redis.Script

	mu    sync.Mutex
	local map[string]localLease
}

type localLease struct {
	token   string
	expires time.Time
}

func NewLocker(client *redis.Client) *Locker {
	l := &Locker{local: make(map[string]localLease)}
	if client != nil {
		l.client = client
		l.script = redis.NewScript(releaseScript)
	}
	return l
}

// TryAcquire attempts to take the lease. It returns the release token and
// whether the lease was obtained. An unexpired lease held by someone else
// yields ok=false without error.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lease key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lease ttl must be positive")
	}
	token := uuid.NewString()

	if l.client != nil {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", false, err
		}
		return token, ok, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if held, ok := l.local[key]; ok && now.Before(held.expires) {
		return "", false, nil
	}
	l.local[key] = localLease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Release frees the lease if the token still owns it. Releasing an
// expired or stolen lease is a no-op.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	if l.client != nil {
		return l.script.Run(ctx, l.client, []string{key}, token).Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.local[key]; ok && held.token == token {
		delete(l.local, key)
	}
	return nil
}

// NewClient builds the optional redis client from configuration. A blank
// address means no redis: the Locker then runs in-process.
func NewClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

var Module = fx.Module("lease",
	fx.Provide(NewClient),
	fx.Provide(NewLocker),
)
