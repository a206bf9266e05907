package answer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/internal/domain/scoring"
	"github.com/okian/ryno/pkg/logger"
	"github.com/okian/ryno/pkg/metrics"
)

const keyPrefix = "ryno:answer:"

// Cache stores reference answers by key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CacheKey hashes everything that determines a reference answer.
func CacheKey(q model.Query) string {
	h := sha256.New()
	write := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	write(q.Provider)
	write(q.Model)
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], uint64(q.Seed))
	h.Write(num[:])
	binary.BigEndian.PutUint64(num[:], math.Float64bits(q.Temperature))
	h.Write(num[:])
	for _, m := range q.Messages {
		write(m.Role)
		write(m.Content)
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Cached serves reference answers from a cache and computes misses with the
// wrapped answerer. Concurrent misses for the same key are computed once.
type Cached struct {
	next   scoring.AnsweringTask
	cache  Cache
	group  singleflight.Group
	logger logger.Logger
}

var _ scoring.AnsweringTask = (*Cached)(nil)

// NewCached wraps next with cache.
func NewCached(next scoring.AnsweringTask, cache Cache, opts ...Option) *Cached {
	o := newOptions(opts)
	return &Cached{next: next, cache: cache, logger: o.logger}
}

// Answer implements scoring.AnsweringTask.
func (c *Cached) Answer(ctx context.Context, workerID int, q model.Query, r *model.Response) (string, error) {
	key := CacheKey(q)
	v, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordAnswerCache("error")
		c.logger.Warn(ctx, "answer cache read failed", logger.Error(err))
	case ok:
		metrics.RecordAnswerCache("hit")
		return v, nil
	default:
		metrics.RecordAnswerCache("miss")
	}

	out, err, _ := c.group.Do(key, func() (any, error) {
		a, err := c.next.Answer(ctx, workerID, q, r)
		if err != nil {
			return "", err
		}
		if err := c.cache.Set(ctx, key, a); err != nil {
			c.logger.Warn(ctx, "answer cache write failed", logger.Error(err))
		}
		return a, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryCache is an in-process Cache with an optional TTL.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a cache whose entries live for ttl; ttl <= 0 keeps them forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

// Get implements Cache.
func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements Cache.
func (m *MemoryCache) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.entries[key] = e
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RedisClient is the part of a go-redis client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores answers in Redis with a TTL.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
}

// NewRedisCache creates a Redis backed cache; ttl <= 0 stores without expiry.
func NewRedisCache(client RedisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: max(ttl, 0)}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// ConnectRedis opens a client and pings it up to attempts times, doubling the
// wait between attempts starting at one second.
func ConnectRedis(ctx context.Context, addr, password string, attempts int, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})
	if log == nil {
		log = logger.Nop()
	}

	var err error
	for i := range max(attempts, 1) {
		if i > 0 {
			wait := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err = client.Ping(ctx).Err(); err == nil {
			log.Info(ctx, "redis connected", logger.String("addr", addr), logger.Int("attempts", i+1))
			return client, nil
		}
		log.Warn(ctx, "redis ping failed", logger.Int("attempt", i+1), logger.Error(err))
	}
	_ = client.Close()
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRedisPing, max(attempts, 1), err)
}
