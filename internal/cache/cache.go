package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// KeyPrefix is prepended to every answer fingerprint.
const KeyPrefix = "rag_cache:"

// metaSuffix names the sibling key holding the metadata of a cached answer.
const metaSuffix = ":meta"

// ErrUnavailable indicates the cache backend could not be reached.
var ErrUnavailable = errors.New("cache unavailable")

// KV is the key/value capability the answer cache needs from a backend.
// Get reports found=false for absent or expired keys. Backends created with a fixed
// entry lifetime may ignore the ttl passed to Set.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Entry is a cached answer together with the metadata produced alongside it.
type Entry struct {
	Answer   string
	Metadata json.RawMessage
}

// Fingerprint derives the cache key for a (documentRef, question) pair.
// The same question against the same document always yields the same key,
// independent of the submitting user.
//
// The key is the SHA-256 of documentRef and question joined by ":", so pairs that
// join to the same string share a key: ("a:", "b") and ("a", ":b") collide. The
// format matches existing cache entries and is kept for compatibility.
func Fingerprint(documentRef, question string) string {
	sum := sha256.Sum256([]byte(documentRef + ":" + question))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// AnswerCache stores generated answers under their fingerprint with a fixed TTL.
// Lookups never refresh the TTL.
type AnswerCache struct {
	kv  KV
	ttl time.Duration
}

// NewAnswerCache creates an AnswerCache on top of kv.
func NewAnswerCache(kv KV, ttl time.Duration) (*AnswerCache, error) {
	if kv == nil {
		return nil, errors.New("cache backend cannot be nil")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	return &AnswerCache{kv: kv, ttl: ttl}, nil
}

// TTL returns the expiry applied to new entries.
func (c *AnswerCache) TTL() time.Duration {
	return c.ttl
}

// Lookup returns the entry stored under key. Missing metadata is not an error;
// the entry is returned with nil Metadata.
func (c *AnswerCache) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	answer, found, err := c.kv.Get(ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	if !found {
		return Entry{}, false, nil
	}

	entry := Entry{Answer: answer}
	meta, ok, err := c.kv.Get(ctx, key+metaSuffix)
	if err == nil && ok && json.Valid([]byte(meta)) {
		entry.Metadata = json.RawMessage(meta)
	}
	return entry, true, nil
}

// Store writes entry under key with the cache TTL.
func (c *AnswerCache) Store(ctx context.Context, key string, entry Entry) error {
	if err := c.kv.Set(ctx, key, entry.Answer, c.ttl); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	if len(entry.Metadata) > 0 {
		if err := c.kv.Set(ctx, key+metaSuffix, string(entry.Metadata), c.ttl); err != nil {
			return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key+metaSuffix, err)
		}
	}
	return nil
}
