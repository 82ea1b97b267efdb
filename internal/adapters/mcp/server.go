package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/grimlore/loremaster/internal/core/domain"
	"github.com/grimlore/loremaster/internal/core/ports"
	"github.com/grimlore/loremaster/internal/observability/metrics"
)

const serverVersion = "1.0.0"

// Server exposes search, indexing, campaign, and linking operations as MCP
// tools over stdio.
type Server struct {
	mcpServer *server.MCPServer
	service   string
	metrics   *metrics.ServerMetrics
	searcher  ports.RulebookSearcher
	ingestor  ports.ChunkIngestor
	campaigns ports.CampaignManager
	linker    ports.CrossReferencer
}

func New(
	name string,
	serverMetrics *metrics.ServerMetrics,
	searcher ports.RulebookSearcher,
	ingestor ports.ChunkIngestor,
	campaigns ports.CampaignManager,
	linker ports.CrossReferencer,
) *Server {
	s := &Server{
		service:   name,
		metrics:   serverMetrics,
		searcher:  searcher,
		ingestor:  ingestor,
		campaigns: campaigns,
		linker:    linker,
	}

	mcpServer := server.NewMCPServer(
		name,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	mcpServer.AddTool(searchRulebookTool(), s.handleSearchRulebook)
	mcpServer.AddTool(indexChunkTool(), s.handleIndexChunk)
	mcpServer.AddTool(manageCampaignTool(), s.handleManageCampaign)
	mcpServer.AddTool(linkRulesTool(), s.handleLinkRules)
	mcpServer.AddTool(rulebookStatsTool(), s.handleRulebookStats)

	s.mcpServer = mcpServer
	return s
}

// Serve blocks on stdio until the client disconnects.
func (s *Server) Serve() error {
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

func searchRulebookTool() mcp.Tool {
	return mcp.NewTool(
		"search_rulebook",
		mcp.WithDescription("Hybrid semantic and keyword search over indexed rulebook content"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language question or keywords"),
		),
		mcp.WithString("rulebook",
			mcp.Description("Restrict results to one rulebook"),
		),
		mcp.WithString("system",
			mcp.Description("Restrict results to one game system"),
		),
		mcp.WithString("content_type",
			mcp.Description("Restrict results to one content type"),
			mcp.Enum("rule", "spell", "monster", "item", "other"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to return"),
			mcp.Min(1),
		),
		mcp.WithString("campaign_context",
			mcp.Description("Campaign record id whose linked rules get boosted"),
		),
	)
}

func (s *Server) handleSearchRulebook(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}

	req := domain.SearchRequest{
		Query: query,
		Filter: domain.ChunkFilter{
			Rulebook:    request.GetString("rulebook", ""),
			System:      request.GetString("system", ""),
			ContentType: domain.ContentType(request.GetString("content_type", "")),
		},
		MaxResults:      request.GetInt("max_results", 0),
		CampaignContext: request.GetString("campaign_context", ""),
	}

	start := time.Now()
	set, err := s.searcher.Search(ctx, req)
	if err != nil {
		return toolError("search failed", err), nil
	}
	s.recordSearch(set, time.Since(start))
	return mcp.NewToolResultText(formatResults(query, set)), nil
}

func indexChunkTool() mcp.Tool {
	return mcp.NewTool(
		"index_chunk",
		mcp.WithDescription("Index one rulebook fragment with its pre-computed embedding"),
		mcp.WithString("rulebook",
			mcp.Required(),
			mcp.Description("Rulebook the fragment comes from"),
		),
		mcp.WithString("system",
			mcp.Description("Game system the rulebook belongs to"),
		),
		mcp.WithString("content_type",
			mcp.Required(),
			mcp.Description("What the fragment describes"),
			mcp.Enum("rule", "spell", "monster", "item", "other"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Fragment title"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Fragment text"),
		),
		mcp.WithNumber("page_number",
			mcp.Required(),
			mcp.Description("Page the fragment starts on"),
			mcp.Min(1),
		),
		mcp.WithString("section_path",
			mcp.Required(),
			mcp.Description("Comma-separated section headings from the book root"),
		),
		mcp.WithString("embedding",
			mcp.Required(),
			mcp.Description("Embedding vector as a JSON array of numbers"),
		),
	)
}

func (s *Server) handleIndexChunk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rulebook, err := request.RequireString("rulebook")
	if err != nil {
		return mcp.NewToolResultError("rulebook is required"), nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title is required"), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content is required"), nil
	}
	embedding, err := parseEmbedding(request.GetString("embedding", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	chunk := domain.ContentChunk{
		Rulebook:    rulebook,
		System:      request.GetString("system", ""),
		ContentType: domain.ContentType(request.GetString("content_type", "")),
		Title:       title,
		Content:     content,
		PageNumber:  request.GetInt("page_number", 0),
		SectionPath: parseTags(request.GetString("section_path", "")),
	}

	start := time.Now()
	id, err := s.ingestor.IngestChunk(ctx, chunk, embedding)
	s.recordIngest(err, time.Since(start))
	if err != nil {
		return toolError("index failed", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Indexed chunk %s (%s, p.%d).", id, chunk.Rulebook, chunk.PageNumber)), nil
}

func manageCampaignTool() mcp.Tool {
	return mcp.NewTool(
		"manage_campaign",
		mcp.WithDescription("Create, read, update, roll back, delete, and list versioned campaign records"),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum("create", "read", "update", "rollback", "delete", "list", "history"),
		),
		mcp.WithString("campaign_id",
			mcp.Description("Campaign the record belongs to (create, list)"),
		),
		mcp.WithString("record_id",
			mcp.Description("Record id (read, update, rollback, delete, history)"),
		),
		mcp.WithString("data_type",
			mcp.Description("Record kind"),
			mcp.Enum("character", "npc", "location", "plot", "session"),
		),
		mcp.WithString("name",
			mcp.Description("Record name (create, update)"),
		),
		mcp.WithString("content",
			mcp.Description("Record content as a JSON object (create, update)"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags (create, update)"),
		),
		mcp.WithNumber("base_version",
			mcp.Description("Version the update is based on (update)"),
			mcp.Min(1),
		),
		mcp.WithNumber("target_version",
			mcp.Description("Version to restore (rollback) or read (read)"),
			mcp.Min(1),
		),
		mcp.WithBoolean("include_deleted",
			mcp.Description("Include tombstoned records (read, list)"),
		),
	)
}

func (s *Server) handleManageCampaign(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	result, opErr := s.campaignAction(ctx, action, request)
	s.recordCampaignOp(action, opErr)
	return result, nil
}

func (s *Server) campaignAction(ctx context.Context, action string, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch action {
	case "create":
		content, err := parseContent(request.GetString("content", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), domain.ErrValidation
		}
		record, err := s.campaigns.Create(ctx,
			request.GetString("campaign_id", ""),
			domain.DataType(request.GetString("data_type", "")),
			request.GetString("name", ""),
			content,
			parseTags(request.GetString("tags", "")),
		)
		if err != nil {
			return toolError("create failed", err), err
		}
		return mcp.NewToolResultText(formatRecord(record)), nil

	case "read":
		recordID, err := request.RequireString("record_id")
		if err != nil {
			return mcp.NewToolResultError("record_id is required"), domain.ErrValidation
		}
		if version := request.GetInt("target_version", 0); version > 0 {
			entry, err := s.campaigns.GetVersion(ctx, recordID, version)
			if err != nil {
				return toolError("read failed", err), err
			}
			return mcp.NewToolResultText(formatRecord(&domain.CampaignRecord{
				ID:      entry.RecordID,
				Name:    entry.Name,
				Content: entry.Content,
				Version: entry.Version,
			})), nil
		}
		record, err := s.campaigns.Get(ctx, recordID, request.GetBool("include_deleted", false))
		if err != nil {
			return toolError("read failed", err), err
		}
		return mcp.NewToolResultText(formatRecord(record)), nil

	case "update":
		recordID, err := request.RequireString("record_id")
		if err != nil {
			return mcp.NewToolResultError("record_id is required"), domain.ErrValidation
		}
		content, err := parseContent(request.GetString("content", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), domain.ErrValidation
		}
		record, err := s.campaigns.Update(ctx, recordID,
			request.GetInt("base_version", 0),
			request.GetString("name", ""),
			content,
			parseTags(request.GetString("tags", "")),
		)
		if err != nil {
			return toolError("update failed", err), err
		}
		return mcp.NewToolResultText(formatRecord(record)), nil

	case "rollback":
		recordID, err := request.RequireString("record_id")
		if err != nil {
			return mcp.NewToolResultError("record_id is required"), domain.ErrValidation
		}
		record, err := s.campaigns.Rollback(ctx, recordID, request.GetInt("target_version", 0))
		if err != nil {
			return toolError("rollback failed", err), err
		}
		return mcp.NewToolResultText(formatRecord(record)), nil

	case "delete":
		recordID, err := request.RequireString("record_id")
		if err != nil {
			return mcp.NewToolResultError("record_id is required"), domain.ErrValidation
		}
		if err := s.campaigns.Delete(ctx, recordID); err != nil {
			return toolError("delete failed", err), err
		}
		return mcp.NewToolResultText(fmt.Sprintf("Record %s deleted. Its version history remains available.", recordID)), nil

	case "list":
		campaignID, err := request.RequireString("campaign_id")
		if err != nil {
			return mcp.NewToolResultError("campaign_id is required"), domain.ErrValidation
		}
		records, err := s.campaigns.List(ctx, campaignID,
			domain.DataType(request.GetString("data_type", "")),
			request.GetBool("include_deleted", false),
		)
		if err != nil {
			return toolError("list failed", err), err
		}
		return mcp.NewToolResultText(formatRecordList(records)), nil

	case "history":
		recordID, err := request.RequireString("record_id")
		if err != nil {
			return mcp.NewToolResultError("record_id is required"), domain.ErrValidation
		}
		entries, err := s.campaigns.History(ctx, recordID)
		if err != nil {
			return toolError("history failed", err), err
		}
		return mcp.NewToolResultText(formatHistory(entries)), nil

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), domain.ErrValidation
	}
}

func linkRulesTool() mcp.Tool {
	return mcp.NewTool(
		"link_rules",
		mcp.WithDescription("Manage weighted links between campaign records and rulebook chunks"),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum("link", "unlink", "resolve"),
		),
		mcp.WithString("record_id",
			mcp.Required(),
			mcp.Description("Campaign record id"),
		),
		mcp.WithString("chunk_id",
			mcp.Description("Rulebook chunk id (link, unlink)"),
		),
		mcp.WithNumber("weight",
			mcp.Description("Boost weight added to the chunk's search score"),
			mcp.Min(0),
			mcp.Max(1),
			mcp.DefaultNumber(0.5),
		),
	)
}

func (s *Server) handleLinkRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	result, opErr := s.linkAction(ctx, action, request)
	s.recordLinkOp(action, opErr)
	return result, nil
}

func (s *Server) linkAction(ctx context.Context, action string, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recordID, err := request.RequireString("record_id")
	if err != nil {
		return mcp.NewToolResultError("record_id is required"), domain.ErrValidation
	}

	switch action {
	case "link":
		chunkID := request.GetString("chunk_id", "")
		weight := request.GetFloat("weight", 0.5)
		if err := s.linker.Link(ctx, recordID, chunkID, weight); err != nil {
			return toolError("link failed", err), err
		}
		return mcp.NewToolResultText(fmt.Sprintf("Linked record %s to chunk %s with weight %.2f.", recordID, chunkID, weight)), nil

	case "unlink":
		chunkID := request.GetString("chunk_id", "")
		if err := s.linker.Unlink(ctx, recordID, chunkID); err != nil {
			return toolError("unlink failed", err), err
		}
		return mcp.NewToolResultText(fmt.Sprintf("Unlinked record %s from chunk %s.", recordID, chunkID)), nil

	case "resolve":
		refs, err := s.linker.Resolve(ctx, recordID)
		if err != nil {
			return toolError("resolve failed", err), err
		}
		return mcp.NewToolResultText(formatCrossReferences(recordID, refs)), nil

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), domain.ErrValidation
	}
}

func rulebookStatsTool() mcp.Tool {
	return mcp.NewTool(
		"rulebook_stats",
		mcp.WithDescription("Summarize what is currently indexed: chunk totals per rulebook, system, and content type"),
	)
}

func (s *Server) handleRulebookStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.ingestor.Stats(ctx)
	if err != nil {
		return toolError("stats failed", err), nil
	}
	return mcp.NewToolResultText(formatStats(stats)), nil
}

func toolError(prefix string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func (s *Server) recordSearch(set *domain.ResultSet, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	mode := "none"
	if len(set.Results) > 0 {
		mode = string(set.Results[0].MatchType)
	}
	s.metrics.RecordSearch(s.service, mode, len(set.Results), set.Degraded, elapsed)
}

func (s *Server) recordIngest(err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordIngest(s.service, ingestStatus(err), elapsed)
}

func (s *Server) recordCampaignOp(action string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCampaignOp(s.service, action, opStatus(err))
}

func (s *Server) recordLinkOp(action string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordLinkOp(s.service, action, opStatus(err))
}

func ingestStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsKind(err, domain.ErrBusy):
		return "busy"
	case domain.IsKind(err, domain.ErrDuplicate):
		return "duplicate"
	case domain.IsKind(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

func opStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsKind(err, domain.ErrValidation):
		return "invalid"
	case domain.IsKind(err, domain.ErrConflict):
		return "conflict"
	case domain.IsKind(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func parseContent(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var content map[string]any
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, fmt.Errorf("content must be a JSON object: %v", err)
	}
	return content, nil
}

func parseEmbedding(raw string) ([]float32, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("embedding must be a JSON array of numbers")
	}
	var vector []float32
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, fmt.Errorf("embedding must be a JSON array of numbers: %v", err)
	}
	return vector, nil
}

func parseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
