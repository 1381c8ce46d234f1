package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store はセッションデータの保存先。
type Store interface {
	// Load はセッションデータを返す。存在しないか期限切れの場合はnilを返す。
	Load(ctx context.Context, id string) (*Data, error)
	Save(ctx context.Context, id string, data Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// SessionRepository はPostgresStoreが使用する永続化操作。
// repository.SessionRepositoryの部分集合として定義する。
type SessionRepository interface {
	Save(ctx context.Context, id string, data []byte, expiresAt time.Time) error
	Find(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// PostgresStore はsessionsテーブルにJSONで保存するStore。
type PostgresStore struct {
	repo SessionRepository
	now  func() time.Time
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(repo SessionRepository) *PostgresStore {
	return &PostgresStore{repo: repo, now: time.Now}
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*Data, error) {
	raw, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return decode(raw)
}

func (s *PostgresStore) Save(ctx context.Context, id string, data Data, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.repo.Save(ctx, id, raw, s.now().Add(ttl))
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// redisClient はRedisStoreが使用するコマンド。*redis.Clientが満たす。
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore はRedisのTTL付きキーに保存するStore。
type RedisStore struct {
	client redisClient
}

// NewRedisStore はRedisStoreを生成する。
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(id string) string {
	return fmt.Sprintf("sipa:session:%s", id)
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Data, error) {
	raw, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session from redis: %w", err)
	}
	return decode(raw)
}

func (s *RedisStore) Save(ctx context.Context, id string, data Data, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(id), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

// MemoryStore はプロセス内に保存するStore。テストと開発用。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, id)
		return nil, nil
	}
	data := e.data
	data.Flashes = append(data.Flashes[:0:0], e.data.Flashes...)
	return &data, nil
}

func (s *MemoryStore) Save(ctx context.Context, id string, data Data, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data.Flashes = append(data.Flashes[:0:0], data.Flashes...)
	s.entries[id] = memoryEntry{data: data, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// Len は保存中のセッション数を返す。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func decode(raw []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &d, nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
