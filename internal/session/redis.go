package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewearify/rewearify/internal/identity"
)

// RedisStore keeps one session's snapshot in two Redis keys written in a
// single MULTI/EXEC so readers never observe one without the other.
type RedisStore struct {
	client *redis.Client
	id     string
	ttl    time.Duration
}

// NewRedisStore scopes a store to the given session id.
func NewRedisStore(client *redis.Client, id string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, id: id, ttl: ttl}
}

func (s *RedisStore) keys() (userKey, tokenKey string) {
	base := "session:" + s.id
	return base + ":user", base + ":token"
}

// Load reads both slots with one MGET.
func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	userKey, tokenKey := s.keys()
	vals, err := s.client.MGet(ctx, userKey, tokenKey).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("session: redis load: %w", err)
	}
	if len(vals) != 2 {
		return Snapshot{}, nil
	}
	rawUser, okUser := vals[0].(string)
	token, okToken := vals[1].(string)
	if !okUser || !okToken || token == "" {
		return Snapshot{}, nil
	}
	var user identity.Identity
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return Snapshot{}, nil
	}
	return Snapshot{Identity: &user, Credential: token}, nil
}

// Save writes both slots atomically with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	if !snap.Authenticated() {
		return ErrIncomplete
	}
	data, err := json.Marshal(snap.Identity)
	if err != nil {
		return fmt.Errorf("session: encode identity: %w", err)
	}
	userKey, tokenKey := s.keys()
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, userKey, data, s.ttl)
		p.Set(ctx, tokenKey, snap.Credential, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis save: %w", err)
	}
	return nil
}

// Clear deletes both slots.
func (s *RedisStore) Clear(ctx context.Context) error {
	userKey, tokenKey := s.keys()
	if err := s.client.Del(ctx, userKey, tokenKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: redis clear: %w", err)
	}
	return nil
}

// RedisProvider scopes RedisStores to session ids.
type RedisProvider struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProvider constructs a provider sharing one client.
func NewRedisProvider(client *redis.Client, ttl time.Duration) *RedisProvider {
	return &RedisProvider{client: client, ttl: ttl}
}

// StoreFor returns the store for id.
func (p *RedisProvider) StoreFor(id string) Store {
	return NewRedisStore(p.client, id, p.ttl)
}

var (
	_ Store    = (*RedisStore)(nil)
	_ Provider = (*RedisProvider)(nil)
)
