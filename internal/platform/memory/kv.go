package memory

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// KV is a least-recently-used key/value store whose entries expire a fixed TTL after
// they were last set. It is safe for concurrent use.
type KV struct {
	entries *expirable.LRU[string, string]
	ttl     time.Duration
}

// NewKV creates a KV holding at most size entries, each expiring ttl after it was
// set. A non-positive ttl disables expiry.
func NewKV(size int, ttl time.Duration) (*KV, error) {
	if size <= 0 {
		return nil, errors.New("size must be positive")
	}
	return &KV{
		entries: expirable.NewLRU[string, string](size, nil, ttl),
		ttl:     ttl,
	}, nil
}

// Get returns the value stored under key. Expired entries are reported as absent.
func (k *KV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := k.entries.Get(key)
	return v, ok, nil
}

// Set stores value under key. Entries expire after the TTL the KV was created with;
// the ttl argument is ignored.
func (k *KV) Set(_ context.Context, key, value string, _ time.Duration) error {
	k.entries.Add(key, value)
	return nil
}

// TTL returns the lifetime of every entry. Zero means entries never expire.
func (k *KV) TTL() time.Duration {
	if k.ttl < 0 {
		return 0
	}
	return k.ttl
}

// Len reports the number of stored entries, including expired ones not yet purged.
func (k *KV) Len() int {
	return k.entries.Len()
}
