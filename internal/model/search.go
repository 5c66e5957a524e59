package model

// SearchResult is one similarity hit. Similarity is the raw per-provider
// cosine score; Normalized is comparable across providers and only set once
// the orchestrator has rescaled the provider batch.
type SearchResult struct {
	Record           VectorRecord `json:"record"`
	Similarity       float64      `json:"similarity"`
	Normalized       float64      `json:"normalized"`
	RankWithinSource int          `json:"rank_within_source"`
}

type SearchStats struct {
	SourcesCovered  []string `json:"sources_covered"`
	ProvidersUsed   []string `json:"providers_used"`
	ProvidersFailed []string `json:"providers_failed"`
	DurationMs      int64    `json:"duration_ms"`
}
