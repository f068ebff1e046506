package vecstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiltlab/quilt/db"
	"github.com/quiltlab/quilt/internal/testutil"
)

func TestSave_UpdateReusesRowID(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "quilt.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn, 2))

	store := New(conn, testutil.NewStubProvider(nil), nil)

	require.NoError(t, store.save("teamwork", []float32{1, 0}))
	require.NoError(t, store.save("teamwork", []float32{0, 1}))

	var embRows, vecRows int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM embeddings`).Scan(&embRows))
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM vec_embeddings`).Scan(&vecRows))
	assert.Equal(t, 1, embRows)
	assert.Equal(t, 1, vecRows, "an update must replace the shadow vector row, not orphan it")

	// The searchable vector is the updated one.
	neighbors, err := store.Nearest([]float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "teamwork", neighbors[0].Text)
	assert.InDelta(t, 0, neighbors[0].Distance, 1e-6)
}
