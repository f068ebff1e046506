// Package embedding defines the embedding-provider boundary the
// consolidation engine depends on, plus the distance and clustering
// primitives computed over provider output.
package embedding

import (
	"context"
	"math"

	"github.com/quiltlab/quilt/errors"
)

// Provider maps text to fixed-length vectors. Implementations are
// collaborators (remote APIs, local models); failures propagate to the
// caller unchanged and are never retried here.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model name, used to namespace caches.
	Model() string
}

// CosineSimilarity calculates cosine similarity between two embeddings.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Newf("embedding dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, errors.New("embeddings cannot be empty")
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil // Zero vector
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Distance maps cosine similarity onto [0, 1], lower = more similar.
// Identical directions give 0, opposite directions give 1.
func Distance(a, b []float32) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return (1 - sim) / 2, nil
}
