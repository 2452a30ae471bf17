// Package redis implements the persistence capability on a Redis
// instance. Keys are namespaced as tapkernel:<namespace>:<key>; SET is
// atomic, which satisfies the no-torn-writes contract.
package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/pkg/store"
)

const keyPrefix = "tapkernel"

// Store persists records in Redis.
type Store struct {
	client *goredis.Client
}

// Compile-time check that Store implements the persistence capability
var _ capability.Persistence = (*Store)(nil)

// New wraps a connected Redis store.
func New(r store.Redis) *Store {
	return &Store{client: r.Connection}
}

func redisKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, namespace, key)
}

// Write stores the payload.
func (s *Store) Write(ctx context.Context, namespace, key string, data []byte) error {
	return s.client.Set(ctx, redisKey(namespace, key), data, 0).Err()
}

// Read loads a payload.
func (s *Store) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if err == goredis.Nil {
		return nil, capability.ErrNotFound
	}
	return data, err
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	return s.client.Del(ctx, redisKey(namespace, key)).Err()
}

// List scans a namespace's keys.
func (s *Store) List(ctx context.Context, namespace string) ([]string, error) {
	pattern := redisKey(namespace, "*")
	prefix := redisKey(namespace, "")

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	return keys, iter.Err()
}
