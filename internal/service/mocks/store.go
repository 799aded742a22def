package mocks

import (
	"context"
	"sync"

	"github.com/SergeiKhy/link-registry/internal/kv"
)

// CountingStore wraps a kv.Store, counts calls per key and injects faults.
type CountingStore struct {
	kv.Store

	mu        sync.Mutex
	listCalls int
	reads     map[string]int
	puts      map[string]int

	// ListErr is returned by the FailListOn-th List call (1-based, 0 = every call).
	ListErr    error
	FailListOn int
	// ReadErr is returned by reads of keys listed in FailReads.
	ReadErr   error
	FailReads map[string]bool
	// PutErr is returned by every Put when set.
	PutErr error
	// PanicOn makes reads of this key panic.
	PanicOn string
	// BeforeRead runs before every Get/GetWithMetadata.
	BeforeRead func(key string)
}

func NewCountingStore(inner kv.Store) *CountingStore {
	return &CountingStore{
		Store: inner,
		reads: make(map[string]int),
		puts:  make(map[string]int),
	}
}

func (s *CountingStore) List(ctx context.Context, opts kv.ListOptions) (*kv.ListResult, error) {
	s.mu.Lock()
	s.listCalls++
	call := s.listCalls
	s.mu.Unlock()

	if s.ListErr != nil && (s.FailListOn == 0 || s.FailListOn == call) {
		return nil, s.ListErr
	}
	return s.Store.List(ctx, opts)
}

func (s *CountingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.beforeRead(key); err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, key)
}

func (s *CountingStore) GetWithMetadata(ctx context.Context, key string) (*kv.Entry, error) {
	if err := s.beforeRead(key); err != nil {
		return nil, err
	}
	return s.Store.GetWithMetadata(ctx, key)
}

func (s *CountingStore) Put(ctx context.Context, key string, value []byte, opts kv.PutOptions) error {
	s.mu.Lock()
	s.puts[key]++
	s.mu.Unlock()

	if s.PutErr != nil {
		return s.PutErr
	}
	return s.Store.Put(ctx, key, value, opts)
}

func (s *CountingStore) beforeRead(key string) error {
	s.mu.Lock()
	s.reads[key]++
	s.mu.Unlock()

	if s.BeforeRead != nil {
		s.BeforeRead(key)
	}
	if s.PanicOn != "" && s.PanicOn == key {
		panic("corrupt entry " + key)
	}
	if s.FailReads[key] {
		return s.ReadErr
	}
	return nil
}

func (s *CountingStore) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// Reads returns the number of Get and GetWithMetadata calls for key.
func (s *CountingStore) Reads(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[key]
}

func (s *CountingStore) TotalReads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.reads {
		n += c
	}
	return n
}

func (s *CountingStore) Puts(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[key]
}

func (s *CountingStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls = 0
	s.reads = make(map[string]int)
	s.puts = make(map[string]int)
}
