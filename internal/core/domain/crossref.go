package domain

// CrossReference is a weighted link between a campaign record and a content
// chunk. Links are many-to-many and idempotent: re-linking the same pair
// updates the weight.
type CrossReference struct {
	RecordID string  `json:"record_id"`
	ChunkID  string  `json:"chunk_id"`
	Weight   float64 `json:"weight"`
}
