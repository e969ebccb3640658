package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Cache is the optional LLM-response memoization capability a caller
// may supply: opaque string values keyed by a caller-chosen string.
// Prompts must be hashed stably (normalized whitespace, explicit model
// identifier) so that a warm cache makes a run bit-for-bit
// reproducible; HashKey below is that stable hash. Concrete
// implementations (internal/store/duckstore) persist it; nothing in
// internal/* depends on a specific backing store.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// HashKey stably hashes a (model, prompt) pair into a cache key.
// Whitespace is normalized (runs of space/tab/newline collapse to a
// single space, and the result is trimmed) before hashing so that two
// prompts differing only in incidental formatting produce the same
// key.
func HashKey(model, prompt string) string {
	normalized := strings.Join(strings.Fields(prompt), " ")
	sum := sha256.Sum256([]byte(model + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}

// Cached wraps an Oracle with a Cache: a hit returns the memoized
// completion without invoking inner, so a warm-cache run replays
// completions it already knows.
type Cached struct {
	inner Oracle
	cache Cache
	model string
}

// NewCached builds a Cached oracle. model is the explicit model
// identifier folded into the cache key.
func NewCached(inner Oracle, cache Cache, model string) *Cached {
	return &Cached{inner: inner, cache: cache, model: model}
}

// Complete implements Oracle.
func (c *Cached) Complete(ctx context.Context, prompt string) (string, error) {
	key := HashKey(c.model, prompt)

	if v, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		return v, nil
	}

	out, err := c.inner.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	if err := c.cache.Put(ctx, key, out); err != nil {
		return out, fmt.Errorf("oracle: cache put: %w", err)
	}

	return out, nil
}
