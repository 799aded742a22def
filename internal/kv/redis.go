package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SergeiKhy/link-registry/internal/config"
	"github.com/redis/go-redis/v9"
)

// Every entry is a hash with these two fields.
const (
	fieldValue    = "value"
	fieldMetadata = "metadata"
)

// NewRedisClient opens a client and checks the connection.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     100,
		MinIdleConns: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisStore implements Store on top of Redis hashes. Listing uses SCAN, so
// pages are approximately Limit keys, may be empty and may repeat keys.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	var cursor uint64
	if opts.Cursor != "" {
		c, err := strconv.ParseUint(opts.Cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", opts.Cursor, err)
		}
		cursor = c
	}

	match := escapePattern(opts.Prefix) + "*"
	names, next, err := s.client.ScanType(ctx, cursor, match, int64(listLimit(opts.Limit)), "hash").Result()
	if err != nil {
		return nil, fmt.Errorf("redis scan error: %w", err)
	}

	result := &ListResult{
		Keys:     make([]Key, 0, len(names)),
		Complete: next == 0,
	}
	if !result.Complete {
		result.Cursor = strconv.FormatUint(next, 10)
	}
	if len(names) == 0 {
		return result, nil
	}

	cmds := make([]*redis.StringCmd, len(names))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = p.HGet(ctx, name, fieldMetadata)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis metadata read error: %w", err)
	}

	for i, name := range names {
		key := Key{Name: name}
		if md, err := cmds[i].Bytes(); err == nil && hasMetadata(md) {
			key.Metadata = md
		}
		result.Keys = append(result.Keys, key)
	}

	return result, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.HGet(ctx, key, fieldValue).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	return data, nil
}

func (s *RedisStore) GetWithMetadata(ctx context.Context, key string) (*Entry, error) {
	vals, err := s.client.HMGet(ctx, key, fieldValue, fieldMetadata).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	value, ok := vals[0].(string)
	if !ok {
		return nil, ErrNotFound
	}

	entry := &Entry{Value: []byte(value)}
	if md, ok := vals[1].(string); ok && hasMetadata([]byte(md)) {
		entry.Metadata = []byte(md)
	}
	return entry, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, fieldValue, value)
		if hasMetadata(opts.Metadata) {
			p.HSet(ctx, key, fieldMetadata, []byte(opts.Metadata))
		} else {
			p.HDel(ctx, key, fieldMetadata)
		}
		if opts.Expiration.IsZero() {
			p.Persist(ctx, key)
		} else {
			p.ExpireAt(ctx, key, opts.Expiration)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put error: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// escapePattern quotes glob metacharacters for SCAN MATCH.
func escapePattern(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
