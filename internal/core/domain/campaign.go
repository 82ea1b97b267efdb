package domain

import "time"

// DataType classifies a campaign record.
type DataType string

const (
	DataTypeCharacter DataType = "character"
	DataTypeNPC       DataType = "npc"
	DataTypeLocation  DataType = "location"
	DataTypePlot      DataType = "plot"
	DataTypeSession   DataType = "session"
)

func (t DataType) Valid() bool {
	switch t {
	case DataTypeCharacter, DataTypeNPC, DataTypeLocation, DataTypePlot, DataTypeSession:
		return true
	}
	return false
}

// CampaignRecord is a mutable, versioned campaign entity. Version starts at 1
// and only ever grows; the version-history log is append-only. Deleted is a
// tombstone: the record is hidden from default reads but its history stays.
type CampaignRecord struct {
	ID         string         `json:"id"`
	CampaignID string         `json:"campaign_id"`
	DataType   DataType       `json:"data_type"`
	Name       string         `json:"name"`
	Content    map[string]any `json:"content"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Tags       []string       `json:"tags,omitempty"`
	Deleted    bool           `json:"deleted,omitempty"`
}

// VersionEntry is an immutable snapshot in a record's history log.
type VersionEntry struct {
	RecordID  string         `json:"record_id"`
	Version   int            `json:"version"`
	Name      string         `json:"name"`
	Content   map[string]any `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
}

// CopyContent returns a shallow copy of a record content map so stored
// snapshots cannot be mutated through caller-held references.
func CopyContent(content map[string]any) map[string]any {
	if content == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(content))
	for k, v := range content {
		out[k] = v
	}
	return out
}
