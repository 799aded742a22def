// Package kv defines the key-value capability the link registry is built on
// and provides memory, Redis and PostgreSQL implementations of it.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("kv: key not found")

// Key describes one listed entry. Metadata is nil when the entry has none.
type Key struct {
	Name     string
	Metadata json.RawMessage
}

type ListOptions struct {
	Prefix string
	Limit  int
	Cursor string // opaque; empty starts from the beginning
}

// ListResult is one page of a listing. More pages follow unless Complete is
// set. A page may be empty while not complete.
type ListResult struct {
	Keys     []Key
	Complete bool
	Cursor   string
}

type Entry struct {
	Value    []byte
	Metadata json.RawMessage
}

type PutOptions struct {
	Expiration time.Time // zero means no expiry
	Metadata   json.RawMessage
}

// Store is an eventually consistent key-value store with per-entry
// metadata and cursor based listing. Expired entries are invisible.
type Store interface {
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	GetWithMetadata(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, value []byte, opts PutOptions) error
	Delete(ctx context.Context, key string) error
}

// GetJSON reads key and decodes its value into dest.
func GetJSON(ctx context.Context, s Store, key string, dest any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// hasMetadata reports whether raw carries a metadata object at all.
func hasMetadata(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

const defaultListLimit = 1000

func listLimit(limit int) int {
	if limit <= 0 || limit > defaultListLimit {
		return defaultListLimit
	}
	return limit
}
