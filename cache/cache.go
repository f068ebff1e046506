// Package cache provides a content-hash-keyed persistent store that makes
// expensive LLM- and embedding-backed stages idempotent. An entry is valid
// only while the stored hash matches the hash of the current inputs; any
// mismatch forces recomputation and overwrite. The hash is computed by the
// caller, over every input that can change the result.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/quiltlab/quilt/errors"
)

// Store is a key-value store with the two-artifact integrity contract:
// payload and hash are persisted separately, and a hash without a readable
// payload is an integrity error, never a miss.
type Store interface {
	// Get returns the stored payload and hash for key.
	// Returns errors.ErrNotFound when no entry exists and
	// errors.ErrCacheIntegrity when the hash exists but the payload is
	// missing or unreadable.
	Get(key string) (payload []byte, hash string, err error)

	// Put persists payload under key, overwriting any previous entry.
	// The payload must be durable before the hash: a crash between the
	// two writes must surface as a miss or an integrity failure on the
	// next read, never as a false hit.
	Put(key, hash string, payload []byte) error
}

// Hash returns a deterministic sha256 fingerprint of the given parts.
// Parts are JSON-marshaled in order, so any value that round-trips
// through encoding/json can contribute to a cache key's hash.
func Hash(parts ...interface{}) string {
	h := sha256.New()
	for _, p := range parts {
		data, err := json.Marshal(p)
		if err != nil {
			// Hash inputs are plain values by construction.
			panic(err)
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WithCache returns the cached value under key when the stored hash equals
// hash; otherwise it invokes producer, persists the result, and returns it.
// Concurrent callers computing the same (key, hash) may race; last write
// wins and is equivalent in content. Callers needing at-most-once
// computation must serialize externally.
func WithCache[T any](store Store, key, hash string, producer func() (T, error)) (T, error) {
	var zero T

	payload, storedHash, err := store.Get(key)
	switch {
	case err == nil:
		if storedHash == hash {
			var value T
			if uerr := json.Unmarshal(payload, &value); uerr != nil {
				return zero, errors.Wrapf(
					errors.WithSecondaryError(errors.ErrCacheIntegrity, uerr),
					"cache payload for %s is unparsable", key)
			}
			return value, nil
		}
		// Stale entry: inputs changed, recompute and overwrite below.
	case errors.IsNotFound(err):
		// Miss: compute below.
	default:
		// Integrity failures and I/O errors are surfaced, not recomputed:
		// silently discarding a corrupted-but-expensive result would hide
		// the corruption from the operator.
		return zero, err
	}

	value, err := producer()
	if err != nil {
		return zero, err
	}

	payload, err = json.Marshal(value)
	if err != nil {
		return zero, errors.Wrapf(err, "failed to marshal cache payload for %s", key)
	}
	if err := store.Put(key, hash, payload); err != nil {
		return zero, err
	}
	return value, nil
}
