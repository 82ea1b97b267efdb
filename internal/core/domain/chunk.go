package domain

// ContentType classifies what a rulebook fragment describes.
type ContentType string

const (
	ContentTypeRule    ContentType = "rule"
	ContentTypeSpell   ContentType = "spell"
	ContentTypeMonster ContentType = "monster"
	ContentTypeItem    ContentType = "item"
	ContentTypeOther   ContentType = "other"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeRule, ContentTypeSpell, ContentTypeMonster, ContentTypeItem, ContentTypeOther:
		return true
	}
	return false
}

// Table is a tabular payload extracted alongside a fragment.
type Table struct {
	Title      string     `json:"title"`
	Headers    []string   `json:"headers"`
	Rows       [][]string `json:"rows"`
	PageNumber int        `json:"page_number"`
}

// ContentChunk is the atomic indexed unit of rulebook text. The id is
// immutable once assigned; the embedding travels separately and must match
// the deployment's configured model dimension.
type ContentChunk struct {
	ID          string            `json:"id"`
	Rulebook    string            `json:"rulebook"`
	System      string            `json:"system"`
	ContentType ContentType       `json:"content_type"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	PageNumber  int               `json:"page_number"`
	SectionPath []string          `json:"section_path"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Tables      []Table           `json:"tables,omitempty"`
}

// ChunkFilter restricts retrieval to matching fragments. Empty fields match
// everything.
type ChunkFilter struct {
	Rulebook    string
	System      string
	ContentType ContentType
}

func (f ChunkFilter) Matches(chunk ContentChunk) bool {
	if f.Rulebook != "" && f.Rulebook != chunk.Rulebook {
		return false
	}
	if f.System != "" && f.System != chunk.System {
		return false
	}
	if f.ContentType != "" && f.ContentType != chunk.ContentType {
		return false
	}
	return true
}

// DuplicatePolicy decides what ingest does when the (rulebook, page, title)
// de-duplication key already exists.
type DuplicatePolicy string

const (
	DuplicateSkip    DuplicatePolicy = "skip"
	DuplicateReplace DuplicatePolicy = "replace"
	DuplicateError   DuplicatePolicy = "error"
)

// ScoredChunk is a raw retrieval hit from one index path, before fusion.
type ScoredChunk struct {
	Chunk ContentChunk
	Score float64
}

// IndexStats summarizes what the dual index currently holds.
type IndexStats struct {
	TotalChunks  int            `json:"total_chunks"`
	Rulebooks    map[string]int `json:"rulebooks"`
	Systems      map[string]int `json:"systems"`
	ContentTypes map[string]int `json:"content_types"`
}
