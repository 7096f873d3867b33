// Package cache persists verified field positions keyed by certificate
// content, so re-renders of identical text can skip the full retry loop.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"certalign/internal/alignment"
)

// ContentKey derives a deterministic cache key from the certificate's text
// content. Values are whitespace-trimmed and lowercased before hashing, so
// cosmetic input variations map to the same entry. Go's JSON encoder sorts
// map keys, which makes the serialization order-independent.
func ContentKey(fields map[string]string) string {
	normalized := make(map[string]string, len(fields))
	for k, v := range fields {
		normalized[k] = strings.ToLower(strings.TrimSpace(v))
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		// A map[string]string cannot fail to marshal.
		panic(err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Payload is the cached result of a successful verification.
type Payload struct {
	MaxDifferencePx float64                            `json:"max_difference_px"`
	Attempts        int                                `json:"attempts"`
	Fields          map[string]alignment.FieldPosition `json:"fields"`
}

// Entry wraps a payload with its insertion time for TTL eviction.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// StoreStats describes a store's current contents.
type StoreStats struct {
	Entries int           `json:"entries"`
	TTL     time.Duration `json:"ttl"`
	Backend string        `json:"backend"`
}

// Store is a TTL-bounded position cache. Get returns (nil, nil) on a miss;
// a cached result is a hint to be confirmed, never a verdict, so callers
// must re-validate hits before trusting them.
type Store interface {
	Get(ctx context.Context, key string) (*Payload, error)
	Set(ctx context.Context, key string, payload Payload) error
	ClearExpired(ctx context.Context) (int, error)
	ClearAll(ctx context.Context) error
	Stats(ctx context.Context) (StoreStats, error)
}
