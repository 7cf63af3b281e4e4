package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 10 * time.Minute

// 只有持有者 (token 一致) 才能删除 key，避免误删别人在 TTL 过期后拿到的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	RedisURL string        // redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 持有者崩溃后锁自动过期的时间
}

// RedisLocker 是跨机器的锁，多个 CI runner 共享同一个 Redis 时使用
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(cfg RedisConfig) (*RedisLocker, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

func (l *RedisLocker) key(name string) string {
	return "mm:lock:" + name
}

func (l *RedisLocker) Lock(ctx context.Context, name string) (func() error, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	key := l.key(name)
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}

	return func() error {
		// 释放时不跟随调用方的 ctx，调用方可能已经被取消
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return releaseScript.Run(rctx, l.client, []string{key}, token).Err()
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
