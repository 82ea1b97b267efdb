package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/grimlore/loremaster/internal/core/domain"
)

type searcherFake struct {
	gotReq domain.SearchRequest
	set    *domain.ResultSet
	err    error
}

func (f *searcherFake) Search(_ context.Context, req domain.SearchRequest) (*domain.ResultSet, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

type ingestorFake struct {
	gotChunk     domain.ContentChunk
	gotEmbedding []float32
	calls        int
	id           string
	err          error
	stats        domain.IndexStats
}

func (f *ingestorFake) IngestChunk(_ context.Context, chunk domain.ContentChunk, embedding []float32) (string, error) {
	f.calls++
	f.gotChunk = chunk
	f.gotEmbedding = embedding
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

func (f *ingestorFake) Stats(context.Context) (domain.IndexStats, error) {
	return f.stats, nil
}

type campaignFake struct {
	record *domain.CampaignRecord
	err    error
}

func (f *campaignFake) Create(_ context.Context, _ string, _ domain.DataType, _ string, _ map[string]any, _ []string) (*domain.CampaignRecord, error) {
	return f.record, f.err
}

func (f *campaignFake) Update(_ context.Context, _ string, _ int, _ string, _ map[string]any, _ []string) (*domain.CampaignRecord, error) {
	return f.record, f.err
}

func (f *campaignFake) Rollback(_ context.Context, _ string, _ int) (*domain.CampaignRecord, error) {
	return f.record, f.err
}

func (f *campaignFake) Delete(context.Context, string) error {
	return f.err
}

func (f *campaignFake) Get(_ context.Context, _ string, _ bool) (*domain.CampaignRecord, error) {
	return f.record, f.err
}

func (f *campaignFake) GetVersion(_ context.Context, _ string, version int) (*domain.VersionEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.VersionEntry{RecordID: f.record.ID, Version: version, Name: f.record.Name, Content: f.record.Content}, nil
}

func (f *campaignFake) List(_ context.Context, _ string, _ domain.DataType, _ bool) ([]domain.CampaignRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.CampaignRecord{*f.record}, nil
}

func (f *campaignFake) History(context.Context, string) ([]domain.VersionEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.VersionEntry{{RecordID: f.record.ID, Version: 1, Name: f.record.Name}}, nil
}

type linkerFake struct {
	gotRecordID string
	gotChunkID  string
	gotWeight   float64
	refs        []domain.CrossReference
	err         error
}

func (f *linkerFake) Link(_ context.Context, recordID, chunkID string, weight float64) error {
	f.gotRecordID = recordID
	f.gotChunkID = chunkID
	f.gotWeight = weight
	return f.err
}

func (f *linkerFake) Unlink(_ context.Context, recordID, chunkID string) error {
	f.gotRecordID = recordID
	f.gotChunkID = chunkID
	return f.err
}

func (f *linkerFake) Resolve(_ context.Context, recordID string) ([]domain.CrossReference, error) {
	f.gotRecordID = recordID
	return f.refs, f.err
}

func newTestServer(searcher *searcherFake, ingestor *ingestorFake, campaigns *campaignFake, linker *linkerFake) *Server {
	if searcher == nil {
		searcher = &searcherFake{set: &domain.ResultSet{}}
	}
	if ingestor == nil {
		ingestor = &ingestorFake{id: "chunk-1"}
	}
	if campaigns == nil {
		campaigns = &campaignFake{record: &domain.CampaignRecord{ID: "rec-1", Name: "Strahd"}}
	}
	if linker == nil {
		linker = &linkerFake{}
	}
	return New("loremaster-test", nil, searcher, ingestor, campaigns, linker)
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var request mcp.CallToolRequest
	request.Params.Arguments = args
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("expected content in tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestSearchRulebookForwardsRequest(t *testing.T) {
	searcher := &searcherFake{set: &domain.ResultSet{
		Results: []domain.SearchResult{{
			Chunk:     domain.ContentChunk{ID: "c1", Title: "Fireball", Rulebook: "phb", PageNumber: 241},
			Score:     0.92,
			MatchType: domain.MatchHybrid,
		}},
	}}
	s := newTestServer(searcher, nil, nil, nil)

	result, err := s.handleSearchRulebook(context.Background(), callRequest(map[string]any{
		"query":        "fireball damage",
		"rulebook":     "phb",
		"content_type": "spell",
		"max_results":  3,
	}))
	if err != nil {
		t.Fatalf("handleSearchRulebook: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if searcher.gotReq.Query != "fireball damage" {
		t.Fatalf("query not forwarded, got %q", searcher.gotReq.Query)
	}
	if searcher.gotReq.Filter.Rulebook != "phb" || searcher.gotReq.Filter.ContentType != domain.ContentTypeSpell {
		t.Fatalf("filter not forwarded, got %+v", searcher.gotReq.Filter)
	}
	if searcher.gotReq.MaxResults != 3 {
		t.Fatalf("max results not forwarded, got %d", searcher.gotReq.MaxResults)
	}
	if text := resultText(t, result); !strings.Contains(text, "Fireball") {
		t.Fatalf("expected result text to mention the hit, got %q", text)
	}
}

func TestSearchRulebookRequiresQuery(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	result, err := s.handleSearchRulebook(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handleSearchRulebook: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for missing query")
	}
}

func TestIndexChunkForwardsChunkAndEmbedding(t *testing.T) {
	ingestor := &ingestorFake{id: "phb:241:fireball"}
	s := newTestServer(nil, ingestor, nil, nil)

	result, err := s.handleIndexChunk(context.Background(), callRequest(map[string]any{
		"rulebook":     "phb",
		"system":       "dnd5e",
		"content_type": "spell",
		"title":        "Fireball",
		"content":      "A bright streak flashes to a point you choose.",
		"page_number":  241,
		"section_path": "Spells, Fireball",
		"embedding":    "[0.1, 0.2, 0.3]",
	}))
	if err != nil {
		t.Fatalf("handleIndexChunk: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if ingestor.gotChunk.Rulebook != "phb" || ingestor.gotChunk.PageNumber != 241 {
		t.Fatalf("chunk not forwarded, got %+v", ingestor.gotChunk)
	}
	if len(ingestor.gotChunk.SectionPath) != 2 {
		t.Fatalf("expected section path of 2 segments, got %v", ingestor.gotChunk.SectionPath)
	}
	if len(ingestor.gotEmbedding) != 3 {
		t.Fatalf("expected 3-element embedding, got %v", ingestor.gotEmbedding)
	}
	if text := resultText(t, result); !strings.Contains(text, "phb:241:fireball") {
		t.Fatalf("expected canonical id in text, got %q", text)
	}
}

func TestIndexChunkRejectsMalformedEmbedding(t *testing.T) {
	ingestor := &ingestorFake{}
	s := newTestServer(nil, ingestor, nil, nil)

	result, err := s.handleIndexChunk(context.Background(), callRequest(map[string]any{
		"rulebook":     "phb",
		"content_type": "spell",
		"title":        "Fireball",
		"content":      "text",
		"page_number":  241,
		"embedding":    "not json",
	}))
	if err != nil {
		t.Fatalf("handleIndexChunk: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for malformed embedding")
	}
	if ingestor.calls != 0 {
		t.Fatalf("ingestor should not be called on parse failure")
	}
}

func TestManageCampaignCreateFormatsRecord(t *testing.T) {
	campaigns := &campaignFake{record: &domain.CampaignRecord{
		ID:         "rec-1",
		CampaignID: "curse-of-strahd",
		DataType:   domain.DataTypeNPC,
		Name:       "Strahd von Zarovich",
		Version:    1,
	}}
	s := newTestServer(nil, nil, campaigns, nil)

	result, err := s.handleManageCampaign(context.Background(), callRequest(map[string]any{
		"action":      "create",
		"campaign_id": "curse-of-strahd",
		"data_type":   "npc",
		"name":        "Strahd von Zarovich",
		"content":     `{"cr": 15}`,
	}))
	if err != nil {
		t.Fatalf("handleManageCampaign: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if text := resultText(t, result); !strings.Contains(text, "Strahd von Zarovich") {
		t.Fatalf("expected record name in text, got %q", text)
	}
}

func TestManageCampaignSurfacesConflict(t *testing.T) {
	campaigns := &campaignFake{err: domain.WrapError(domain.ErrConflict, "campaign.update", errors.New("base version 2, current 5"))}
	s := newTestServer(nil, nil, campaigns, nil)

	result, err := s.handleManageCampaign(context.Background(), callRequest(map[string]any{
		"action":       "update",
		"record_id":    "rec-1",
		"base_version": 2,
	}))
	if err != nil {
		t.Fatalf("handleManageCampaign: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for version conflict")
	}
	if text := resultText(t, result); !strings.Contains(text, "version conflict") {
		t.Fatalf("expected conflict detail in text, got %q", text)
	}
}

func TestManageCampaignRejectsUnknownAction(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	result, err := s.handleManageCampaign(context.Background(), callRequest(map[string]any{
		"action": "upsert",
	}))
	if err != nil {
		t.Fatalf("handleManageCampaign: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for unknown action")
	}
}

func TestLinkRulesResolveFormatsReferences(t *testing.T) {
	linker := &linkerFake{refs: []domain.CrossReference{
		{RecordID: "rec-1", ChunkID: "chunk-a", Weight: 0.9},
		{RecordID: "rec-1", ChunkID: "chunk-b", Weight: 0.4},
	}}
	s := newTestServer(nil, nil, nil, linker)

	result, err := s.handleLinkRules(context.Background(), callRequest(map[string]any{
		"action":    "resolve",
		"record_id": "rec-1",
	}))
	if err != nil {
		t.Fatalf("handleLinkRules: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if linker.gotRecordID != "rec-1" {
		t.Fatalf("record id not forwarded, got %q", linker.gotRecordID)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "chunk-a") || !strings.Contains(text, "chunk-b") {
		t.Fatalf("expected both references in text, got %q", text)
	}
}

func TestLinkRulesLinkUsesDefaultWeight(t *testing.T) {
	linker := &linkerFake{}
	s := newTestServer(nil, nil, nil, linker)

	result, err := s.handleLinkRules(context.Background(), callRequest(map[string]any{
		"action":    "link",
		"record_id": "rec-1",
		"chunk_id":  "chunk-a",
	}))
	if err != nil {
		t.Fatalf("handleLinkRules: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if linker.gotWeight != 0.5 {
		t.Fatalf("expected default weight 0.5, got %v", linker.gotWeight)
	}
}

func TestRulebookStatsFormatsTotals(t *testing.T) {
	ingestor := &ingestorFake{stats: domain.IndexStats{
		TotalChunks: 12,
		Rulebooks:   map[string]int{"phb": 12},
	}}
	s := newTestServer(nil, ingestor, nil, nil)

	result, err := s.handleRulebookStats(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handleRulebookStats: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "12") || !strings.Contains(text, "phb") {
		t.Fatalf("expected totals in text, got %q", text)
	}
}
