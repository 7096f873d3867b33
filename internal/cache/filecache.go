package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore is a JSON-file-backed Store. The whole cache is held in memory
// and flushed atomically on every write, which is plenty for single-host
// deployments; use RedisStore or the Postgres store when verifiers share
// a cache.
type FileStore struct {
	mu      sync.Mutex
	path    string
	ttl     time.Duration
	entries map[string]Entry
}

// NewFileStore opens (or creates) a file-backed cache at path. Entries
// older than ttl are evicted lazily on Get and eagerly via ClearExpired.
func NewFileStore(path string, ttl time.Duration) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		ttl:     ttl,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read cache file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		// A corrupt cache file is not worth failing startup over.
		s.entries = make(map[string]Entry)
	}

	return s, nil
}

// Get returns the cached payload for key, or (nil, nil) when absent or
// expired. Expired entries are removed on the spot.
func (s *FileStore) Get(_ context.Context, key string) (*Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if time.Since(entry.Timestamp) > s.ttl {
		delete(s.entries, key)
		if err := s.save(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	payload := entry.Payload
	return &payload, nil
}

// Set stores the payload under key with the current timestamp.
func (s *FileStore) Set(_ context.Context, key string, payload Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{Timestamp: time.Now(), Payload: payload}
	return s.save()
}

// ClearExpired removes all entries older than the TTL and reports how
// many were dropped.
func (s *FileStore) ClearExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if time.Since(entry.Timestamp) > s.ttl {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		if err := s.save(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// ClearAll empties the cache.
func (s *FileStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
	return s.save()
}

// Stats reports the entry count and configuration.
func (s *FileStore) Stats(_ context.Context) (StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StoreStats{
		Entries: len(s.entries),
		TTL:     s.ttl,
		Backend: "file",
	}, nil
}

// save writes the cache through a temp file and rename so a crash mid-write
// never leaves a truncated cache behind. Caller holds the lock.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
