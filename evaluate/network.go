package evaluate

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/quiltlab/quilt/codebook"
	"github.com/quiltlab/quilt/embedding"
	"github.com/quiltlab/quilt/errors"
)

// NetworkConfig controls similarity-graph construction.
type NetworkConfig struct {
	// LinkMinimumDistance and LinkMaximumDistance bound the distance band
	// inside which a pair of codes is linked.
	LinkMinimumDistance float64
	LinkMaximumDistance float64
	// ClosestNeighbors links each code to its k nearest codes regardless
	// of the band, guaranteeing graph connectivity. Zero disables it.
	ClosestNeighbors int
}

// NetworkEvaluator builds a similarity graph over reference and candidate
// codes (nodes = codes, edges = pairs inside the distance band or among
// each node's nearest neighbors) and reports a reference code covered when
// a candidate code is adjacent to it. Near-neighbor context, not just raw
// pairwise distance, decides coverage.
type NetworkEvaluator struct {
	Provider embedding.Provider
	Config   NetworkConfig
	Logger   *zap.SugaredLogger
}

// Name implements Evaluator.
func (e *NetworkEvaluator) Name() string { return "network" }

// Evaluate implements Evaluator.
func (e *NetworkEvaluator) Evaluate(ctx context.Context, reference *codebook.Codebook, candidates []*codebook.Codebook, names []string, run codebook.RunContext) (Report, error) {
	if e.Provider == nil {
		return nil, errors.NewConfigurationError("network evaluator requires an embedding provider")
	}
	if len(candidates) != len(names) {
		return nil, errors.NewConfigurationError(
			"got %d candidate codebooks but %d names", len(candidates), len(names))
	}
	if e.Config.LinkMaximumDistance <= e.Config.LinkMinimumDistance {
		return nil, errors.NewConfigurationError(
			"link distance band [%v, %v] is empty",
			e.Config.LinkMinimumDistance, e.Config.LinkMaximumDistance)
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	refIDs := reference.SortedIDs()
	if len(refIDs) == 0 {
		return nil, errors.New("reference codebook is empty")
	}

	report := make(Report, len(candidates))
	for ci, candidate := range candidates {
		candIDs := candidate.SortedIDs()

		texts := make([]string, 0, len(refIDs)+len(candIDs))
		for _, id := range refIDs {
			texts = append(texts, reference.Codes[id].Label)
		}
		for _, id := range candIDs {
			texts = append(texts, candidate.Codes[id].Label)
		}
		vecs, err := e.Provider.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to embed labels for candidate %s", names[ci])
		}

		adj, err := e.buildGraph(vecs)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build similarity graph for candidate %s", names[ci])
		}

		cr := &CandidateReport{Total: len(refIDs), Codes: len(candIDs)}
		for ri, refID := range refIDs {
			match := CodeMatch{
				ReferenceID:    refID,
				ReferenceLabel: reference.Codes[refID].Label,
			}
			for _, nb := range adj[ri] {
				if nb >= len(refIDs) {
					match.Covered = true
					match.MatchedBy = append(match.MatchedBy, candidate.Codes[candIDs[nb-len(refIDs)]].Label)
				}
			}
			if match.Covered {
				cr.Covered++
			}
			cr.Matches = append(cr.Matches, match)
		}
		if cr.Total > 0 {
			cr.Coverage = float64(cr.Covered) / float64(cr.Total)
		}
		report[names[ci]] = cr

		logger.Infow("candidate evaluated",
			"evaluator", e.Name(),
			"candidate", names[ci],
			"coverage", cr.Coverage,
			"covered", cr.Covered,
			"total", cr.Total)
	}
	return report, nil
}

// buildGraph returns an adjacency list over the embedded nodes: every pair
// inside the distance band is linked, and each node is additionally linked
// to its ClosestNeighbors nearest nodes regardless of the band.
func (e *NetworkEvaluator) buildGraph(vecs [][]float32) ([][]int, error) {
	n := len(vecs)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, err := embedding.Distance(vecs[i], vecs[j])
			if err != nil {
				return nil, err
			}
			dist[i][j], dist[j][i] = d, d
		}
	}

	linked := make([]map[int]bool, n)
	for i := range linked {
		linked[i] = make(map[int]bool)
	}
	link := func(i, j int) {
		linked[i][j] = true
		linked[j][i] = true
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if dist[i][j] >= e.Config.LinkMinimumDistance && dist[i][j] <= e.Config.LinkMaximumDistance {
				link(i, j)
			}
		}
	}

	if k := e.Config.ClosestNeighbors; k > 0 {
		for i := 0; i < n; i++ {
			order := make([]int, 0, n-1)
			for j := 0; j < n; j++ {
				if j != i {
					order = append(order, j)
				}
			}
			sort.Slice(order, func(a, b int) bool {
				if dist[i][order[a]] != dist[i][order[b]] {
					return dist[i][order[a]] < dist[i][order[b]]
				}
				return order[a] < order[b]
			})
			for _, j := range order[:min(k, len(order))] {
				link(i, j)
			}
		}
	}

	adj := make([][]int, n)
	for i := range adj {
		for j := range linked[i] {
			adj[i] = append(adj[i], j)
		}
		sort.Ints(adj[i])
	}
	return adj, nil
}
