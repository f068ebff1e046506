package embedding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiltlab/quilt/embedding"
)

func TestCosineSimilarity(t *testing.T) {
	sim, err := embedding.CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, err = embedding.CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)

	sim, err = embedding.CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-9)

	_, err = embedding.CosineSimilarity([]float32{1, 0}, []float32{1})
	assert.Error(t, err, "dimension mismatch must error")

	_, err = embedding.CosineSimilarity(nil, nil)
	assert.Error(t, err, "empty embeddings must error")
}

func TestDistance_NormalizedRange(t *testing.T) {
	identical, err := embedding.Distance([]float32{1, 0}, []float32{2, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, identical, 1e-9, "same direction = distance 0")

	orthogonal, err := embedding.Distance([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, orthogonal, 1e-9)

	opposite, err := embedding.Distance([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, opposite, 1e-9, "opposite direction = distance 1")
}

func TestCluster_GroupsWithinRadius(t *testing.T) {
	vectors := [][]float32{
		{1, 0},      // cluster 0
		{0.99, 0.1}, // near the first
		{0, 1},      // cluster 1
		{0.1, 0.99}, // near the third
	}
	result, err := embedding.Cluster(vectors, embedding.ClusterConfig{MaxDistance: 0.1})
	require.NoError(t, err)

	assert.Equal(t, 2, result.NClusters)
	assert.Equal(t, 4, result.NPoints)
	assert.Equal(t, 0, result.NNoise)
	assert.Equal(t, result.Labels[0], result.Labels[1], "nearby vectors share a cluster")
	assert.Equal(t, result.Labels[2], result.Labels[3])
	assert.NotEqual(t, result.Labels[0], result.Labels[2])
	assert.Len(t, result.Centroids, 2)
}

func TestCluster_MinSizeDemotesToNoise(t *testing.T) {
	vectors := [][]float32{
		{1, 0},
		{0.99, 0.1},
		{-1, 0}, // singleton
	}
	result, err := embedding.Cluster(vectors, embedding.ClusterConfig{
		MaxDistance:    0.1,
		MinClusterSize: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.NClusters)
	assert.Equal(t, 1, result.NNoise)
	assert.Equal(t, -1, result.Labels[2], "undersized clusters become noise")
	assert.GreaterOrEqual(t, result.Labels[0], 0, "surviving labels are compacted")
}

func TestCluster_Empty(t *testing.T) {
	_, err := embedding.Cluster(nil, embedding.ClusterConfig{MaxDistance: 0.1})
	assert.Error(t, err)
}
