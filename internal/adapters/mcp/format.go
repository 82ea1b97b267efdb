package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grimlore/loremaster/internal/core/domain"
)

func formatResults(query string, set *domain.ResultSet) string {
	if len(set.Results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s) for %q", len(set.Results), query)
	if set.Degraded {
		b.WriteString(" (degraded: keyword matching only)")
	}
	b.WriteString(":\n\n")

	for i, result := range set.Results {
		chunk := result.Chunk
		fmt.Fprintf(&b, "%d. %s (%s, p.%d) [%s, relevance %.2f]\n",
			i+1, chunk.Title, chunk.Rulebook, chunk.PageNumber, result.MatchType, result.Score)
		if len(chunk.SectionPath) > 0 {
			fmt.Fprintf(&b, "   Section: %s\n", strings.Join(chunk.SectionPath, " > "))
		}
		if result.Highlight != "" {
			fmt.Fprintf(&b, "   %s\n", result.Highlight)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRecord(record *domain.CampaignRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, version %d)\n", record.Name, record.DataType, record.Version)
	fmt.Fprintf(&b, "  id: %s\n", record.ID)
	fmt.Fprintf(&b, "  campaign: %s\n", record.CampaignID)
	if len(record.Tags) > 0 {
		fmt.Fprintf(&b, "  tags: %s\n", strings.Join(record.Tags, ", "))
	}
	if record.Deleted {
		b.WriteString("  status: deleted\n")
	}
	if len(record.Content) > 0 {
		keys := make([]string, 0, len(record.Content))
		for k := range record.Content {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("  content:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s: %v\n", k, record.Content[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRecordList(records []domain.CampaignRecord) string {
	if len(records) == 0 {
		return "No records found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d record(s):\n", len(records))
	for _, record := range records {
		fmt.Fprintf(&b, "  %s  %s (%s, v%d)\n", record.ID, record.Name, record.DataType, record.Version)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStats(stats domain.IndexStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Indexed chunks: %d\n", stats.TotalChunks)
	b.WriteString(formatCountMap("Rulebooks", stats.Rulebooks))
	b.WriteString(formatCountMap("Systems", stats.Systems))
	b.WriteString(formatCountMap("Content types", stats.ContentTypes))
	return strings.TrimRight(b.String(), "\n")
}

func formatCountMap(label string, counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", label)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %d\n", k, counts[k])
	}
	return b.String()
}

func formatHistory(entries []domain.VersionEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d version(s):\n", len(entries))
	for _, entry := range entries {
		fmt.Fprintf(&b, "  v%d  %s  (%s)\n", entry.Version, entry.Name, entry.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCrossReferences(recordID string, refs []domain.CrossReference) string {
	if len(refs) == 0 {
		return fmt.Sprintf("No rule references linked to record %s.", recordID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d linked rule(s) for record %s:\n", len(refs), recordID)
	for _, ref := range refs {
		fmt.Fprintf(&b, "  %s (weight %.2f)\n", ref.ChunkID, ref.Weight)
	}
	return strings.TrimRight(b.String(), "\n")
}
