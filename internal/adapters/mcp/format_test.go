package mcp

import (
	"strings"
	"testing"

	"github.com/grimlore/loremaster/internal/core/domain"
)

func TestFormatResultsEmpty(t *testing.T) {
	got := formatResults("fireball", &domain.ResultSet{})
	if got != `No results found for "fireball".` {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestFormatResultsNumbersAndSections(t *testing.T) {
	set := &domain.ResultSet{
		Results: []domain.SearchResult{
			{
				Chunk: domain.ContentChunk{
					Title:       "Fireball",
					Rulebook:    "phb",
					PageNumber:  241,
					SectionPath: []string{"Spells", "3rd Level"},
				},
				Score:     0.93,
				MatchType: domain.MatchHybrid,
				Highlight: "Each creature takes 8d6 fire damage.",
			},
			{
				Chunk: domain.ContentChunk{
					Title:      "Scorching Ray",
					Rulebook:   "phb",
					PageNumber: 273,
				},
				Score:     0.81,
				MatchType: domain.MatchSemantic,
			},
		},
	}

	got := formatResults("fire spells", set)
	if !strings.Contains(got, "1. Fireball (phb, p.241) [hybrid, relevance 0.93]") {
		t.Fatalf("missing first entry header:\n%s", got)
	}
	if !strings.Contains(got, "Section: Spells > 3rd Level") {
		t.Fatalf("missing joined section path:\n%s", got)
	}
	if !strings.Contains(got, "2. Scorching Ray (phb, p.273)") {
		t.Fatalf("missing second entry:\n%s", got)
	}
	if !strings.Contains(got, "Each creature takes 8d6 fire damage.") {
		t.Fatalf("missing highlight:\n%s", got)
	}
}

func TestFormatResultsDegradedNotice(t *testing.T) {
	set := &domain.ResultSet{
		Results: []domain.SearchResult{
			{Chunk: domain.ContentChunk{Title: "Grappling", Rulebook: "phb", PageNumber: 195}, MatchType: domain.MatchKeyword},
		},
		Degraded: true,
	}
	got := formatResults("grappling", set)
	if !strings.Contains(got, "degraded: keyword matching only") {
		t.Fatalf("expected degraded notice:\n%s", got)
	}
}

func TestFormatRecord(t *testing.T) {
	record := &domain.CampaignRecord{
		ID:         "rec-1",
		CampaignID: "camp-1",
		DataType:   domain.DataTypeNPC,
		Name:       "Strahd",
		Version:    3,
		Tags:       []string{"villain", "vampire"},
		Content:    map[string]any{"hp": 144, "ac": 16},
	}
	got := formatRecord(record)
	if !strings.Contains(got, "Strahd (npc, version 3)") {
		t.Fatalf("missing header:\n%s", got)
	}
	if !strings.Contains(got, "tags: villain, vampire") {
		t.Fatalf("missing tags:\n%s", got)
	}
	if !strings.Contains(got, "ac: 16") || !strings.Contains(got, "hp: 144") {
		t.Fatalf("missing content keys:\n%s", got)
	}
}

func TestFormatStats(t *testing.T) {
	stats := domain.IndexStats{
		TotalChunks:  12,
		Rulebooks:    map[string]int{"phb": 10, "dmg": 2},
		Systems:      map[string]int{"dnd5e": 12},
		ContentTypes: map[string]int{"spell": 7, "rule": 5},
	}
	got := formatStats(stats)
	if !strings.Contains(got, "Indexed chunks: 12") {
		t.Fatalf("missing total:\n%s", got)
	}
	if !strings.Contains(got, "dmg: 2") || !strings.Contains(got, "phb: 10") {
		t.Fatalf("missing rulebook counts:\n%s", got)
	}
}

func TestFormatCrossReferences(t *testing.T) {
	refs := []domain.CrossReference{
		{RecordID: "rec-1", ChunkID: "chunk-a", Weight: 0.9},
		{RecordID: "rec-1", ChunkID: "chunk-b", Weight: 0.4},
	}
	got := formatCrossReferences("rec-1", refs)
	if !strings.Contains(got, "2 linked rule(s) for record rec-1") {
		t.Fatalf("missing header:\n%s", got)
	}
	if !strings.Contains(got, "chunk-a (weight 0.90)") {
		t.Fatalf("missing weighted entry:\n%s", got)
	}
	if empty := formatCrossReferences("rec-2", nil); !strings.Contains(empty, "No rule references") {
		t.Fatalf("unexpected empty output: %q", empty)
	}
}

func TestParseTags(t *testing.T) {
	got := parseTags(" villain, vampire ,,")
	if len(got) != 2 || got[0] != "villain" || got[1] != "vampire" {
		t.Fatalf("unexpected tags: %v", got)
	}
	if parseTags("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}
