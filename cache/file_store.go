package cache

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/quiltlab/quilt/errors"
)

// FileStore persists each entry as two sibling files under a root
// directory: <key>.json for the payload and <key>.hash for the content
// hash. Keys may contain '/' to namespace entries per run and stage.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache directory %s", dir)
	}
	return &FileStore{root: dir}, nil
}

// Get implements Store. A missing hash file is a miss; a hash file with a
// missing payload is an integrity error.
func (fs *FileStore) Get(key string) ([]byte, string, error) {
	hashData, err := os.ReadFile(fs.path(key, ".hash"))
	if os.IsNotExist(err) {
		return nil, "", errors.Wrapf(errors.ErrNotFound, "cache entry %s", key)
	}
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to read cache hash for %s", key)
	}

	payload, err := os.ReadFile(fs.path(key, ".json"))
	if err != nil {
		return nil, "", errors.Wrapf(
			errors.WithSecondaryError(errors.ErrCacheIntegrity, err),
			"cache payload for %s missing while hash exists", key)
	}
	return payload, strings.TrimSpace(string(hashData)), nil
}

// Put implements Store. The payload is written before the hash so a crash
// between the two writes reads back as a stale entry, never a false hit.
func (fs *FileStore) Put(key, hash string, payload []byte) error {
	payloadPath := fs.path(key, ".json")
	if err := os.MkdirAll(filepath.Dir(payloadPath), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create cache subdirectory for %s", key)
	}

	// Invalidate first: if the payload write below fails midway, the old
	// hash must not validate the new partial payload.
	hashPath := fs.path(key, ".hash")
	if err := os.Remove(hashPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to invalidate cache entry %s", key)
	}

	if err := os.WriteFile(payloadPath, payload, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write cache payload for %s", key)
	}
	if err := os.WriteFile(hashPath, []byte(hash), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write cache hash for %s", key)
	}
	return nil
}

func (fs *FileStore) path(key, ext string) string {
	// Keys namespace with '/'; any other separator-hostile runes are
	// flattened so a key can never escape the cache root.
	clean := strings.ReplaceAll(key, "..", "_")
	return filepath.Join(fs.root, filepath.FromSlash(clean)+ext)
}
