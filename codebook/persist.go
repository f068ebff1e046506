package codebook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/quiltlab/quilt/errors"
)

// Load reads a codebook from a JSON file. Two layouts are accepted: the
// full form ({"codes": ..., "categories": ...}) written by Save, and the
// bare form (a plain mapping of code-id to Code) that the external
// per-chunk coding step emits.
func Load(path string) (*Codebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read codebook %s", path)
	}
	return Decode(data)
}

// Decode parses codebook JSON in either accepted layout.
func Decode(data []byte) (*Codebook, error) {
	var full struct {
		Codes      map[string]*Code     `json:"codes"`
		Categories map[string]*Category `json:"categories"`
	}
	if err := json.Unmarshal(data, &full); err == nil && full.Codes != nil {
		cb := &Codebook{Codes: full.Codes, Categories: full.Categories}
		if cb.Categories == nil {
			cb.Categories = make(map[string]*Category)
		}
		normalize(cb)
		return cb, nil
	}

	var bare map[string]*Code
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, errors.Wrap(err, "failed to parse codebook JSON")
	}
	cb := &Codebook{Codes: bare, Categories: make(map[string]*Category)}
	normalize(cb)
	return cb, nil
}

// normalize backfills code ids from map keys so hand-written codebook
// files can omit the redundant "id" field.
func normalize(cb *Codebook) {
	for id, c := range cb.Codes {
		if c.ID == "" {
			c.ID = id
		}
	}
	for id, cat := range cb.Categories {
		if cat.ID == "" {
			cat.ID = id
		}
	}
}

// Save writes the codebook as indented JSON in the full layout.
func (cb *Codebook) Save(path string) error {
	data, err := json.MarshalIndent(cb, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal codebook")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write codebook %s", path)
	}
	return nil
}

// ContentHash returns a deterministic fingerprint of the codebook's
// semantic content. Embeddings are excluded: they are derived data and
// must not invalidate cache entries keyed on what the codes say.
func (cb *Codebook) ContentHash() string {
	shadow := cb.Clone()
	for _, c := range shadow.Codes {
		c.Embedding = nil
	}
	// encoding/json emits map keys in sorted order, so this is canonical.
	data, err := json.Marshal(shadow)
	if err != nil {
		// Marshal of plain structs and maps cannot fail in practice.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
