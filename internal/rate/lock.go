package rate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("rate: key is locked")

// Locker hands out short-lived exclusive keys. Acquire returns a release func;
// Claim marks a key as taken for ttl and reports whether this caller was first.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	k := l.prefix + key
	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// release even if the request context is already done
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client, []string{k}, token).Err()
	}, nil
}

func (l *RedisLocker) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, "1", ttl).Result()
}

// MemoryLocker is the single-process fallback for RedisLocker.
type MemoryLocker struct {
	store  *gocache.Cache
	prefix string
}

func NewMemoryLocker(prefix string) *MemoryLocker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &MemoryLocker{store: gocache.New(time.Minute, 5*time.Minute), prefix: prefix}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	k := l.prefix + key
	if err := l.store.Add(k, true, ttl); err != nil {
		return nil, ErrLocked
	}
	return func() { l.store.Delete(k) }, nil
}

func (l *MemoryLocker) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return l.store.Add(l.prefix+key, true, ttl) == nil, nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
