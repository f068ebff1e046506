package db

import (
	"database/sql"
	"strconv"

	"github.com/quiltlab/quilt/errors"
)

// Migrate creates the embedding-cache schema if it does not exist.
// The embeddings table is the source of truth; vec_embeddings is a
// sqlite-vec virtual-table shadow used only for nearest-neighbor queries.
func Migrate(conn *sql.DB, dimensions int) error {
	if dimensions <= 0 {
		return errors.Newf("invalid embedding dimensions: %d", dimensions)
	}

	const embeddings = `
		CREATE TABLE IF NOT EXISTS embeddings (
			id          TEXT PRIMARY KEY,
			model       TEXT NOT NULL,
			text        TEXT NOT NULL,
			embedding   BLOB NOT NULL,
			dimensions  INTEGER NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`
	if _, err := conn.Exec(embeddings); err != nil {
		return errors.Wrap(err, "failed to create embeddings table")
	}

	const byModelText = `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_embeddings_model_text
		ON embeddings (model, text)`
	if _, err := conn.Exec(byModelText); err != nil {
		return errors.Wrap(err, "failed to create embeddings index")
	}

	vec := `
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(
			embedding_id TEXT PRIMARY KEY,
			embedding float[` + strconv.Itoa(dimensions) + `]
		)`
	if _, err := conn.Exec(vec); err != nil {
		return errors.Wrap(err, "failed to create vec_embeddings virtual table")
	}
	return nil
}
