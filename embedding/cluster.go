package embedding

import (
	"github.com/quiltlab/quilt/errors"
)

// ClusterResult holds the output of greedy centroid clustering.
// Label -1 marks noise points (members of clusters below MinClusterSize).
type ClusterResult struct {
	Labels    []int       `json:"labels"`
	NClusters int         `json:"n_clusters"`
	NPoints   int         `json:"n_points"`
	NNoise    int         `json:"n_noise"`
	Centroids [][]float32 `json:"centroids"` // one centroid per cluster, indexed by label
}

// ClusterConfig controls Cluster.
type ClusterConfig struct {
	// MaxDistance is the assignment radius: a point joins the nearest
	// existing cluster only when its distance to that cluster's centroid
	// is at or below this bound; otherwise it seeds a new cluster.
	MaxDistance float64

	// MinClusterSize demotes smaller clusters to noise. Zero keeps all.
	MinClusterSize int
}

// Cluster groups vectors by greedy centroid assignment. Points are
// processed in input order; each joins the nearest cluster within
// MaxDistance or starts a new one. Centroids are running means, so the
// result is deterministic for a fixed input order.
func Cluster(vectors [][]float32, cfg ClusterConfig) (*ClusterResult, error) {
	if len(vectors) == 0 {
		return nil, errors.New("no vectors to cluster")
	}

	type cluster struct {
		centroid []float32
		members  []int
	}
	var clusters []*cluster

	labels := make([]int, len(vectors))
	for i, v := range vectors {
		best := -1
		bestDist := cfg.MaxDistance
		for ci, cl := range clusters {
			d, err := Distance(v, cl.centroid)
			if err != nil {
				return nil, errors.Wrapf(err, "clustering point %d", i)
			}
			if d <= bestDist {
				best = ci
				bestDist = d
			}
		}
		if best < 0 {
			clusters = append(clusters, &cluster{
				centroid: append([]float32(nil), v...),
				members:  []int{i},
			})
			labels[i] = len(clusters) - 1
			continue
		}
		cl := clusters[best]
		n := float32(len(cl.members))
		for j := range cl.centroid {
			cl.centroid[j] = (cl.centroid[j]*n + v[j]) / (n + 1)
		}
		cl.members = append(cl.members, i)
		labels[i] = best
	}

	// Demote undersized clusters to noise and compact labels.
	result := &ClusterResult{NPoints: len(vectors), Labels: labels}
	remap := make(map[int]int)
	for ci, cl := range clusters {
		if cfg.MinClusterSize > 0 && len(cl.members) < cfg.MinClusterSize {
			for _, m := range cl.members {
				labels[m] = -1
				result.NNoise++
			}
			continue
		}
		remap[ci] = len(result.Centroids)
		result.Centroids = append(result.Centroids, cl.centroid)
	}
	for i, l := range labels {
		if l >= 0 {
			labels[i] = remap[l]
		}
	}
	result.NClusters = len(result.Centroids)
	return result, nil
}
