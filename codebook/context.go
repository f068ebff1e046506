package codebook

import "strings"

// RunContext carries the identifiers that namespace one pipeline run:
// which LLM and embedding model are active, plus a caller-chosen run id.
// It is immutable for the duration of a run; stages read it to build
// cache keys and content hashes, never to store state.
type RunContext struct {
	RunID          string
	LLMModel       string
	EmbeddingModel string
}

// CacheKey joins the run id with stage-chosen parts into a stable cache key.
func (rc RunContext) CacheKey(parts ...string) string {
	all := append([]string{rc.RunID}, parts...)
	return strings.Join(all, "/")
}
