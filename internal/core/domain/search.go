package domain

// MatchType records which retrieval signal produced a result.
type MatchType string

const (
	MatchSemantic MatchType = "semantic"
	MatchKeyword  MatchType = "keyword"
	MatchHybrid   MatchType = "hybrid"
)

// SearchRequest is one hybrid search call. CampaignContext, when set, names a
// campaign record whose cross-referenced chunks get boosted.
type SearchRequest struct {
	Query           string
	Filter          ChunkFilter
	MaxResults      int
	CampaignContext string
}

// SearchResult is a ranked hit with its combined relevance in [0,1].
type SearchResult struct {
	Chunk     ContentChunk `json:"chunk"`
	Score     float64      `json:"score"`
	MatchType MatchType    `json:"match_type"`
	Highlight string       `json:"highlight,omitempty"`
}

// ResultSet is an ordered search response. Degraded is set when the embedding
// collaborator or one retrieval path was unavailable and the set was built
// from whatever completed.
type ResultSet struct {
	Results  []SearchResult `json:"results"`
	Degraded bool           `json:"degraded"`
}
