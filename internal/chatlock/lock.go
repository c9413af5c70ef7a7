// Package chatlock serializes chat turns so that one chat never has two
// replies in flight.
package chatlock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"nexus/api/internal/util"
)

// ErrBusy is returned when another turn already holds the chat.
var ErrBusy = errors.New("chat turn already in progress")

// Locker grants exclusive access to a chat until release is called.
type Locker interface {
	Acquire(ctx context.Context, chatID string) (release func(), err error)
}

// releaseScript deletes the key only when it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements Locker across API replicas.
type RedisLock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLock connects to redisURL and verifies the connection.
func NewRedisLock(redisURL string, ttl time.Duration) (*RedisLock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLockWithClient(client, ttl), nil
}

func NewRedisLockWithClient(client *redis.Client, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLock{
		client: client,
		prefix: "chatturn:",
		ttl:    ttl,
	}
}

func (l *RedisLock) key(chatID string) string {
	return l.prefix + chatID
}

func (l *RedisLock) Acquire(ctx context.Context, chatID string) (func(), error) {
	token := util.NewID("turn")
	key := l.key(chatID)
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire chat lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				log.Printf("chatlock: release %s: %v", chatID, err)
			}
		})
	}, nil
}

func (l *RedisLock) Close() error {
	return l.client.Close()
}

func (l *RedisLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// LocalLock implements Locker for a single process.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]struct{})}
}

func (l *LocalLock) Acquire(_ context.Context, chatID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[chatID]; ok {
		return nil, ErrBusy
	}
	l.held[chatID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, chatID)
			l.mu.Unlock()
		})
	}, nil
}
