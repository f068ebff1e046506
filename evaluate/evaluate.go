// Package evaluate scores candidate codebooks against a reference codebook
// using embedding-space clustering and coverage statistics.
package evaluate

import (
	"context"

	"github.com/quiltlab/quilt/codebook"
)

// Evaluator scores a batch of candidate codebooks against a reference.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, reference *codebook.Codebook, candidates []*codebook.Codebook, names []string, run codebook.RunContext) (Report, error)
}

// Report maps candidate name to its scores. It is written verbatim as the
// evaluation JSON artifact.
type Report map[string]*CandidateReport

// CandidateReport holds one candidate codebook's coverage of the reference.
type CandidateReport struct {
	// Coverage is Covered / Total: the fraction of reference concepts
	// matched by at least one candidate code.
	Coverage float64 `json:"coverage"`
	Covered  int     `json:"covered"`
	Total    int     `json:"total"`
	// Codes is the number of candidate codes that participated.
	Codes   int         `json:"codes"`
	Matches []CodeMatch `json:"matches"`
}

// CodeMatch records whether one reference concept was covered and by what.
type CodeMatch struct {
	ReferenceID    string   `json:"reference_id"`
	ReferenceLabel string   `json:"reference_label"`
	Covered        bool     `json:"covered"`
	MatchedBy      []string `json:"matched_by,omitempty"` // candidate code labels
}
