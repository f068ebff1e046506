// Package vecstore is a persistent embedding cache on SQLite + sqlite-vec.
// It wraps any embedding.Provider: each text is embedded at most once per
// model, served from the store on every later run.
package vecstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quiltlab/quilt/embedding"
	"github.com/quiltlab/quilt/errors"
)

// Record is a stored embedding row.
type Record struct {
	ID         string    `json:"id"`
	Model      string    `json:"model"`
	Text       string    `json:"text"`
	Embedding  []byte    `json:"-"` // FLOAT32_BLOB, little-endian
	Dimensions int       `json:"dimensions"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store caches provider output in SQLite and answers nearest-neighbor
// queries through the vec_embeddings virtual table.
type Store struct {
	db       *sql.DB
	provider embedding.Provider
	logger   *zap.SugaredLogger
}

// New creates a store wrapping provider. logger may be nil.
func New(conn *sql.DB, provider embedding.Provider, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{db: conn, provider: provider, logger: logger}
}

// Model implements embedding.Provider.
func (s *Store) Model() string { return s.provider.Model() }

// Embed implements embedding.Provider, serving from the store when the
// text was embedded before under the same model.
func (s *Store) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements embedding.Provider. Only texts absent from the
// store are forwarded to the wrapped provider; results are persisted
// before returning.
func (s *Store) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		vec, err := s.lookup(text)
		if err != nil {
			if errors.IsNotFound(err) {
				missing = append(missing, text)
				missingIdx = append(missingIdx, i)
				continue
			}
			return nil, err
		}
		vectors[i] = vec
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	s.logger.Debugw("embedding cache partial hit",
		"model", s.Model(), "hits", len(texts)-len(missing), "misses", len(missing))

	fresh, err := s.provider.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range fresh {
		if err := s.save(missing[j], vec); err != nil {
			return nil, err
		}
		vectors[missingIdx[j]] = vec
	}
	return vectors, nil
}

func (s *Store) lookup(text string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRow(
		`SELECT embedding FROM embeddings WHERE model = ? AND text = ?`,
		s.Model(), text,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "embedding for %q", text)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query embedding cache")
	}
	return Deserialize(blob)
}

func (s *Store) save(text string, vec []float32) error {
	blob, err := Serialize(vec)
	if err != nil {
		return err
	}

	// Reuse the existing row id on update so the vec_embeddings shadow row
	// below replaces the old vector instead of orphaning it.
	id := uuid.NewString()
	err = s.db.QueryRow(
		`SELECT id FROM embeddings WHERE model = ? AND text = ?`,
		s.Model(), text,
	).Scan(&id)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrapf(err, "failed to look up embedding row for %q", text)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(`
		INSERT INTO embeddings (id, model, text, embedding, dimensions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model, text) DO UPDATE SET
			embedding = excluded.embedding,
			dimensions = excluded.dimensions,
			updated_at = excluded.updated_at`,
		id, s.Model(), text, blob, len(vec), now, now)
	if err != nil {
		return errors.Wrapf(err, "failed to save embedding for %q", text)
	}

	// Virtual tables don't support UPSERT, so we delete then insert.
	if _, err := s.db.Exec(`DELETE FROM vec_embeddings WHERE embedding_id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to clear vec_embeddings row")
	}
	if _, err := s.db.Exec(
		`INSERT INTO vec_embeddings (embedding_id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return errors.Wrapf(err, "failed to save embedding %s to vec_embeddings", id)
	}

	s.logger.Debugw("saved embedding", "id", id, "model", s.Model(), "dimensions", len(vec))
	return nil
}

// Neighbor is one nearest-neighbor match.
type Neighbor struct {
	Text     string
	Distance float64
}

// Nearest returns the k stored texts closest to vec, using sqlite-vec's
// vector MATCH search.
func (s *Store) Nearest(vec []float32, k int) ([]Neighbor, error) {
	blob, err := Serialize(vec)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT e.text, v.distance
		FROM vec_embeddings v
		JOIN embeddings e ON e.id = v.embedding_id
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance`,
		blob, k)
	if err != nil {
		return nil, errors.Wrap(err, "vector search failed")
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.Text, &n.Distance); err != nil {
			return nil, errors.Wrap(err, "failed to scan neighbor row")
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
