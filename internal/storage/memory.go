package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemBlobStore is an in-memory BlobStore used in tests and local dry runs.
type MemBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemBlobStore) key(bucket, path string) string {
	return bucket + "/" + path
}

func (s *MemBlobStore) Put(bucket, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), data...)
	s.blobs[s.key(bucket, path)] = cp
	return nil
}

func (s *MemBlobStore) Get(bucket, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[s.key(bucket, path)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemBlobStore) List(bucket, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	full := bucket + "/" + prefix
	var out []string
	for k := range s.blobs {
		if strings.HasPrefix(k, full) {
			out = append(out, strings.TrimPrefix(k, bucket+"/"))
		}
	}
	sort.Strings(out)
	return out, nil
}
