package model

// QueryConfig represents configuration for a retrieval query.
type QueryConfig struct {
	// TopK is the number of results returned to the caller.
	TopK int `json:"top_k"`
	// CandidateLimit bounds the number of rows fetched for the brute-force
	// similarity scan. There is no relevance-preserving sampling behind this
	// cap; it is a latency and memory bound.
	CandidateLimit int `json:"candidate_limit,omitempty"`
}

// DefaultQueryConfig returns the default retrieval configuration.
// TopK of 7 balances context window size against answer grounding.
func DefaultQueryConfig() *QueryConfig {
	return &QueryConfig{
		TopK:           7,
		CandidateLimit: 500,
	}
}
