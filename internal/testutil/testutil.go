// Package testutil provides deterministic stand-ins for the model and
// embedding collaborators so pipeline behavior can be tested without
// network access.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/quiltlab/quilt/errors"
)

// StubProvider is an embedding.Provider with a fixed text-to-vector map.
// Unmapped texts fall back to a deterministic hash-derived vector, which
// is effectively orthogonal to everything else.
type StubProvider struct {
	mu sync.Mutex
	// Vectors maps exact text to its embedding.
	Vectors map[string][]float32
	// Calls counts Embed and EmbedBatch texts served, for cache assertions.
	Calls int
}

// NewStubProvider builds a provider over the given text-to-vector map.
func NewStubProvider(vectors map[string][]float32) *StubProvider {
	return &StubProvider{Vectors: vectors}
}

// Embed implements embedding.Provider.
func (p *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements embedding.Provider.
func (p *StubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		p.Calls++
		if vec, ok := p.Vectors[text]; ok {
			out[i] = vec
			continue
		}
		out[i] = hashVector(text)
	}
	return out, nil
}

// Model implements embedding.Provider.
func (p *StubProvider) Model() string { return "stub-embedding" }

// hashVector derives a unit vector from the text's hash. Distinct texts
// land far apart with overwhelming probability.
func hashVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	var norm float64
	for i := range vec {
		bits := binary.LittleEndian.Uint32(sum[i*4 : i*4+4])
		v := float64(bits)/float64(math.MaxUint32) - 0.5
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// StubModel is an llm.Model that answers from a substring-matched script.
type StubModel struct {
	mu sync.Mutex
	// Responses maps a prompt substring to the canned response. The first
	// matching entry in Order wins; unmatched prompts get Default.
	Responses map[string]string
	Order     []string
	Default   string
	// Calls records every prompt received.
	Calls []string
	// Err, when set, fails every completion.
	Err error
}

// Complete implements llm.Model.
func (m *StubModel) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	for _, key := range m.Order {
		if strings.Contains(prompt, key) {
			return m.Responses[key], nil
		}
	}
	for key, response := range m.Responses {
		if strings.Contains(prompt, key) {
			return response, nil
		}
	}
	return m.Default, nil
}

// Name implements llm.Model.
func (m *StubModel) Name() string { return "stub-model" }
