// Package redisstore implements store.Store on Redis. Each item is a hash at
// <prefix>item:<id>; each secondary-index value is a sorted set at
// <prefix>idx:<index>:<value> whose members are primary keys (all scores are
// zero so ZRANGE returns them in key order).
//
// Writes run as Lua scripts so the item, its condition check and its index
// entries change atomically.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tonimelisma/velux-go/internal/store"
)

// DefaultPrefix namespaces all keys written by the store.
const DefaultPrefix = "velux:"

// pingTimeout bounds the connectivity check in Open.
const pingTimeout = 3 * time.Second

// putItemLua replaces an item and moves its userId index entry.
// KEYS[1] = item key
// ARGV[1] = userId index key prefix
// ARGV[2] = item id
// ARGV[3..] = field, value pairs
var putItemLua = redis.NewScript(`
local old = redis.call('HGET', KEYS[1], 'userId')
redis.call('DEL', KEYS[1])
for i = 3, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
local new = redis.call('HGET', KEYS[1], 'userId')
if old and old ~= new then
  redis.call('ZREM', ARGV[1] .. old, ARGV[2])
end
if new then
  redis.call('ZADD', ARGV[1] .. new, 0, ARGV[2])
end
return 1
`)

// updateItemLua merges fields into an item, optionally requiring it to exist.
// KEYS[1] = item key
// ARGV[1] = "1" when the item must already exist
// ARGV[2] = userId index key prefix
// ARGV[3] = item id
// ARGV[4..] = field, value pairs
//
// Returns 0 when the condition failed, 1 otherwise.
var updateItemLua = redis.NewScript(`
if ARGV[1] == '1' and redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local old = redis.call('HGET', KEYS[1], 'userId')
redis.call('HSET', KEYS[1], 'id', ARGV[3])
for i = 4, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
local new = redis.call('HGET', KEYS[1], 'userId')
if old ~= new then
  if old then
    redis.call('ZREM', ARGV[2] .. old, ARGV[3])
  end
  if new then
    redis.call('ZADD', ARGV[2] .. new, 0, ARGV[3])
  end
end
return 1
`)

// Store is a Redis-backed store.Store.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// Options configure Open.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redisstore: connecting to %s: %w", opts.Addr, err)
	}

	return New(rdb, opts.Prefix, logger), nil
}

// New wraps an existing client. An empty prefix uses DefaultPrefix.
func New(rdb redis.UniversalClient, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Store{rdb: rdb, prefix: prefix, logger: logger}
}

func (s *Store) itemKey(id string) string {
	return s.prefix + "item:" + id
}

func (s *Store) indexPrefix(index string) string {
	return s.prefix + "idx:" + index + ":"
}

// Get returns the item at key.
func (s *Store) Get(ctx context.Context, key string) (store.Item, error) {
	fields, err := s.rdb.HGetAll(ctx, s.itemKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: reading %s: %w", key, err)
	}

	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}

	return store.Item(fields), nil
}

// Put replaces the item at its key.
func (s *Store) Put(ctx context.Context, item store.Item) error {
	key := item.Key()
	if key == "" {
		return store.ErrMissingKey
	}

	args := append([]any{s.indexPrefix(store.UserIDIndex), key}, pairs(item)...)

	if err := putItemLua.Run(ctx, s.rdb, []string{s.itemKey(key)}, args...).Err(); err != nil {
		return fmt.Errorf("redisstore: writing %s: %w", key, err)
	}

	return nil
}

// Update merges fields into the item at key.
func (s *Store) Update(ctx context.Context, key string, fields map[string]string, cond store.Condition) error {
	if key == "" {
		return store.ErrMissingKey
	}

	mustExist := "0"
	if cond == store.MustExist {
		mustExist = "1"
	}

	args := append([]any{mustExist, s.indexPrefix(store.UserIDIndex), key}, pairs(fields)...)

	applied, err := updateItemLua.Run(ctx, s.rdb, []string{s.itemKey(key)}, args...).Int()
	if err != nil {
		return fmt.Errorf("redisstore: updating %s: %w", key, err)
	}

	if applied == 0 {
		return store.ErrConditionFailed
	}

	return nil
}

// Query returns the lexicographically first key indexed under value.
func (s *Store) Query(ctx context.Context, index, attribute, value string) (string, error) {
	if err := store.CheckQuery(index, attribute); err != nil {
		return "", err
	}

	keys, err := s.rdb.ZRange(ctx, s.indexPrefix(index)+value, 0, 0).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redisstore: querying %s: %w", index, err)
	}

	if len(keys) == 0 {
		return "", store.ErrNotFound
	}

	return keys[0], nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// pairs flattens a field map into script arguments. The id attribute is
// written by the scripts themselves on update, so callers may omit it.
func pairs(fields map[string]string) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}

	return out
}
