package storage

import (
	"arbiter/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CaseEventsChannel is the redis pubsub channel carrying CaseEvent JSON.
const CaseEventsChannel = "arbiter:case-events"

// ReleaseFunc releases a lock acquired through a Locker.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out short-lived exclusive locks by key.
type Locker interface {
	// TryLock acquires key for ttl. ok is false when someone else holds it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release ReleaseFunc, ok bool, err error)
}

// Publisher delivers case events to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt models.CaseEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.CaseEvent) error { return nil }

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisService carries the redis-backed lock and event plumbing.
type RedisService struct {
	Redis *redis.Client
}

func NewRedisService(rdb *redis.Client) *RedisService {
	return &RedisService{Redis: rdb}
}

// TryLock uses SET NX PX with a random token so only the owner can release.
func (s *RedisService) TryLock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	token := uuid.New().String()
	ok, err := s.Redis.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("storage: lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		err := unlockScript.Run(ctx, s.Redis, []string{"lock:" + key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("storage: unlock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

// Publish sends evt to CaseEventsChannel as JSON.
func (s *RedisService) Publish(ctx context.Context, evt models.CaseEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := s.Redis.Publish(ctx, CaseEventsChannel, string(payload)).Err(); err != nil {
		return fmt.Errorf("storage: publish %s: %w", evt.Type, err)
	}
	return nil
}

// SubscribeCaseEvents opens a subscription on CaseEventsChannel.
func (s *RedisService) SubscribeCaseEvents(ctx context.Context) *redis.PubSub {
	return s.Redis.Subscribe(ctx, CaseEventsChannel)
}

// MemoryLocker is an in-process Locker with the same expiry semantics.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLease
	now   func() time.Time
	count uint64
}

type memoryLease struct {
	token     uint64
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLease), now: time.Now}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, ok := l.held[key]; ok && now.Before(lease.expiresAt) {
		return nil, false, nil
	}
	l.count++
	token := l.count
	l.held[key] = memoryLease{token: token, expiresAt: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if lease, ok := l.held[key]; ok && lease.token == token {
			delete(l.held, key)
		}
		return nil
	}
	return release, true, nil
}
