package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is a cached response body with enough metadata to replay it.
type Entry struct {
	Status      int               `json:"status"`
	ContentType string            `json:"content_type"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body"`
	StoredAt    time.Time         `json:"stored_at"`
}

// Store persists cache entries. Implementations must expire entries after
// the TTL passed to Set and support glob-style key deletion.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	// DeleteMatching removes every key matching the glob pattern and
	// returns the number of entries removed.
	DeleteMatching(ctx context.Context, pattern string) (int64, error)
	// Flush removes every entry and returns the number removed.
	Flush(ctx context.Context) (int64, error)
	// Len reports the current number of live entries, or -1 when the
	// backend cannot answer cheaply.
	Len(ctx context.Context) (int64, error)
}

type memoryEntry struct {
	entry     *Entry
	expiresAt time.Time
}

// MemoryStore keeps entries in process memory. It serves single-instance
// deployments and tests; multi-instance deployments want the redis store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore constructs an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(item.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return item.entry, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	if entry == nil || ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{entry: entry, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) DeleteMatching(_ context.Context, pattern string) (int64, error) {
	needle := strings.Trim(pattern, "*")
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key := range s.entries {
		if matchesGlob(key, pattern, needle) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Flush(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := int64(len(s.entries))
	s.entries = make(map[string]memoryEntry)
	return removed, nil
}

func (s *MemoryStore) Len(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var live int64
	for key, item := range s.entries {
		if now.After(item.expiresAt) {
			delete(s.entries, key)
			continue
		}
		live++
	}
	return live, nil
}

// matchesGlob supports the limited patterns the invalidation API emits:
// "*substr*", "prefix*" and exact keys.
func matchesGlob(key, pattern, needle string) bool {
	switch {
	case pattern == "*" || pattern == "":
		return true
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(key, needle)
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(key, needle)
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(key, needle)
	default:
		return key == pattern
	}
}

// RedisStore keeps entries in redis under a shared key prefix so several
// gateway instances serve one cache.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a store on the given client. The prefix
// namespaces cache keys away from rate limiter counters.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":cache:" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, errGet := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errGet
	}
	var entry Entry
	if errUnmarshal := json.Unmarshal(raw, &entry); errUnmarshal != nil {
		// A corrupt entry is dropped rather than replayed.
		_ = s.client.Del(ctx, s.redisKey(key)).Err()
		return nil, false, nil
	}
	return &entry, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if entry == nil || ttl <= 0 {
		return nil
	}
	raw, errMarshal := json.Marshal(entry)
	if errMarshal != nil {
		return errMarshal
	}
	return s.client.Set(ctx, s.redisKey(key), raw, ttl).Err()
}

func (s *RedisStore) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	return s.deleteScan(ctx, s.prefix+":cache:"+pattern)
}

func (s *RedisStore) Flush(ctx context.Context) (int64, error) {
	return s.deleteScan(ctx, s.prefix+":cache:*")
}

func (s *RedisStore) Len(ctx context.Context) (int64, error) {
	var count int64
	iter := s.client.Scan(ctx, 0, s.prefix+":cache:*", 200).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if errScan := iter.Err(); errScan != nil {
		return -1, errScan
	}
	return count, nil
}

func (s *RedisStore) deleteScan(ctx context.Context, match string) (int64, error) {
	var removed int64
	iter := s.client.Scan(ctx, 0, match, 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			n, errDel := s.client.Del(ctx, batch...).Result()
			if errDel != nil {
				return removed, errDel
			}
			removed += n
			batch = batch[:0]
		}
	}
	if errScan := iter.Err(); errScan != nil {
		return removed, errScan
	}
	if len(batch) > 0 {
		n, errDel := s.client.Del(ctx, batch...).Result()
		if errDel != nil {
			return removed, errDel
		}
		removed += n
	}
	return removed, nil
}
