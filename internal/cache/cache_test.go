package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"certalign/internal/alignment"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func TestContentKeyNormalization(t *testing.T) {
	base := ContentKey(map[string]string{"name": "Ada Lovelace", "event": "GopherCon"})

	variants := []map[string]string{
		{"name": "  Ada Lovelace  ", "event": "GopherCon"},
		{"name": "ADA LOVELACE", "event": "gophercon"},
		{"event": "GopherCon", "name": "Ada Lovelace"},
	}
	for i, v := range variants {
		if got := ContentKey(v); got != base {
			t.Errorf("variant %d: key %s != %s", i, got, base)
		}
	}

	if ContentKey(map[string]string{"name": "Ada"}) == base {
		t.Error("different content must produce a different key")
	}
	if len(base) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(base))
	}
}

func testPayload() Payload {
	return Payload{
		MaxDifferencePx: 0.01,
		Attempts:        2,
		Fields: map[string]alignment.FieldPosition{
			"name": {Name: "name", YCenter: 180.5, XCenter: 400},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")

	s, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if got, err := s.Get(ctx, "absent"); err != nil || got != nil {
		t.Fatalf("miss = (%v, %v), want (nil, nil)", got, err)
	}

	if err := s.Set(ctx, "k1", testPayload()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Attempts != 2 {
		t.Fatalf("Get = %+v, want stored payload", got)
	}
	if pos := got.Fields["name"]; pos.YCenter != 180.5 {
		t.Errorf("YCenter = %g, want 180.5", pos.YCenter)
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")

	s, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Set(ctx, "k1", testPayload()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get(ctx, "k1")
	if err != nil || got == nil {
		t.Fatalf("Get after reopen = (%v, %v), want payload", got, err)
	}
}

func TestFileStoreTTLEviction(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")

	s, err := NewFileStore(path, time.Nanosecond)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Set(ctx, "k1", testPayload()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	time.Sleep(time.Millisecond)

	got, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatal("expired entry should be evicted on Get")
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("entries = %d, want 0 after eviction", stats.Entries)
	}
}

func TestFileStoreClearExpired(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")

	s, err := NewFileStore(path, time.Nanosecond)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for _, key := range []string{"a", "b", "c"} {
		if err := s.Set(ctx, key, testPayload()); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	time.Sleep(time.Millisecond)

	removed, err := s.ClearExpired(ctx)
	if err != nil {
		t.Fatalf("ClearExpired: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
}

func TestFileStoreClearAll(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")

	s, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Set(ctx, "k1", testPayload()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	got, err := s.Get(ctx, "k1")
	if err != nil || got != nil {
		t.Fatalf("Get after clear = (%v, %v), want (nil, nil)", got, err)
	}

	stats, _ := s.Stats(ctx)
	if stats.Backend != "file" {
		t.Errorf("backend = %s, want file", stats.Backend)
	}
}

func TestFileStoreToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := writeFile(path, "{not json"); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore on corrupt file: %v", err)
	}
	stats, _ := s.Stats(context.Background())
	if stats.Entries != 0 {
		t.Errorf("entries = %d, want 0 for corrupt file", stats.Entries)
	}
}
