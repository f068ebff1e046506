package consolidate

import (
	"github.com/quiltlab/quilt/codebook"
)

// survivor decides which of two codes absorbs the other: the one with more
// owners wins; on equal owner count the lexicographically first id wins.
// Stable and reproducible across runs.
func survivor(cb *codebook.Codebook, a, b string) (dst, src string) {
	ca, cbb := cb.Codes[a], cb.Codes[b]
	switch {
	case len(ca.Owners) > len(cbb.Owners):
		return a, b
	case len(ca.Owners) < len(cbb.Owners):
		return b, a
	case a < b:
		return a, b
	default:
		return b, a
	}
}

// unionFind tracks which code each merged id was folded into, so chained
// matches resolve to a single surviving code.
type unionFind struct {
	parent map[string]string
}

func newUnionFind(ids []string) *unionFind {
	parent := make(map[string]string, len(ids))
	for _, id := range ids {
		parent[id] = id
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(id string) string {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// Path compression keeps lookups cheap over long merge chains.
	for u.parent[id] != root {
		id, u.parent[id] = u.parent[id], root
	}
	return root
}

// union folds src's root into dst's root in the codebook and records the
// redirect. Returns true when a fold actually happened.
func (u *unionFind) union(cb *codebook.Codebook, a, b string) (bool, error) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false, nil
	}
	dst, src := survivor(cb, ra, rb)
	if err := cb.Fold(dst, src); err != nil {
		return false, err
	}
	u.parent[src] = dst
	return true, nil
}
