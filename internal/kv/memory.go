package kv

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value      []byte
	metadata   json.RawMessage
	expiration time.Time
}

// MemoryStore keeps entries in a map and lists them in lexical key order.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock overrides the clock used for expiration checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	after := ""
	if opts.Cursor != "" {
		raw, err := base64.RawURLEncoding.DecodeString(opts.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		after = string(raw)
	}

	s.mu.RLock()
	now := s.now()
	names := make([]string, 0, len(s.entries))
	for name, e := range s.entries {
		if !strings.HasPrefix(name, opts.Prefix) || e.expired(now) {
			continue
		}
		if after != "" && name <= after {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	limit := listLimit(opts.Limit)
	result := &ListResult{Complete: len(names) <= limit}
	if !result.Complete {
		names = names[:limit]
	}

	result.Keys = make([]Key, 0, len(names))
	for _, name := range names {
		key := Key{Name: name}
		if md := s.entries[name].metadata; hasMetadata(md) {
			key.Metadata = bytes.Clone(md)
		}
		result.Keys = append(result.Keys, key)
	}
	s.mu.RUnlock()

	if !result.Complete {
		result.Cursor = base64.RawURLEncoding.EncodeToString([]byte(names[len(names)-1]))
	}
	return result, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.GetWithMetadata(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

func (s *MemoryStore) GetWithMetadata(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return nil, ErrNotFound
	}

	entry := &Entry{Value: bytes.Clone(e.value)}
	if hasMetadata(e.metadata) {
		entry.Metadata = bytes.Clone(e.metadata)
	}
	return entry, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		value:      bytes.Clone(value),
		metadata:   bytes.Clone(opts.Metadata),
		expiration: opts.Expiration,
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	n := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && !now.Before(e.expiration)
}
