package usecase

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/grimlore/loremaster/internal/core/domain"
)

type mergedCandidate struct {
	chunk    domain.ContentChunk
	score    float64
	semantic bool
	keyword  bool
}

// fuseCandidates merges the two retrieval paths by chunk id. Each path's
// scores are min-max normalized within its own result set (a constant or
// single-element set normalizes to 1.0), then combined as a weighted sum;
// a chunk seen by only one path contributes zero for the missing signal.
func fuseCandidates(semantic, keyword []domain.ScoredChunk, semanticWeight, keywordWeight float64) []mergedCandidate {
	semNorm := minMaxNormalize(semantic)
	kwNorm := minMaxNormalize(keyword)

	acc := make(map[string]*mergedCandidate, len(semantic)+len(keyword))
	for _, hit := range semantic {
		acc[hit.Chunk.ID] = &mergedCandidate{
			chunk:    hit.Chunk,
			score:    semanticWeight * semNorm[hit.Chunk.ID],
			semantic: true,
		}
	}
	for _, hit := range keyword {
		if cand, ok := acc[hit.Chunk.ID]; ok {
			cand.score += keywordWeight * kwNorm[hit.Chunk.ID]
			cand.keyword = true
			continue
		}
		acc[hit.Chunk.ID] = &mergedCandidate{
			chunk:   hit.Chunk,
			score:   keywordWeight * kwNorm[hit.Chunk.ID],
			keyword: true,
		}
	}

	out := make([]mergedCandidate, 0, len(acc))
	for _, cand := range acc {
		out = append(out, *cand)
	}
	sortCandidates(out)
	return out
}

// minMaxNormalize maps a result set's scores onto [0,1] keyed by chunk id.
func minMaxNormalize(hits []domain.ScoredChunk) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}
	for _, h := range hits {
		if hi == lo {
			out[h.Chunk.ID] = 1.0
			continue
		}
		out[h.Chunk.ID] = (h.Score - lo) / (hi - lo)
	}
	return out
}

// sortCandidates orders by combined score descending, then page ascending,
// then chunk id ascending, so rankings are reproducible across runs.
func sortCandidates(cands []mergedCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].chunk.PageNumber != cands[j].chunk.PageNumber {
			return cands[i].chunk.PageNumber < cands[j].chunk.PageNumber
		}
		return cands[i].chunk.ID < cands[j].chunk.ID
	})
}

func (c mergedCandidate) matchType() domain.MatchType {
	switch {
	case c.semantic && c.keyword:
		return domain.MatchHybrid
	case c.semantic:
		return domain.MatchSemantic
	default:
		return domain.MatchKeyword
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// highlightExcerpt returns the first sentence containing a query term,
// truncated for display.
func highlightExcerpt(content string, terms []string) string {
	if len(terms) == 0 {
		return ""
	}
	for _, sentence := range splitSentences(content) {
		lower := strings.ToLower(sentence)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return truncateRunes(sentence, 200)
			}
		}
	}
	return ""
}

// truncateRunes cuts on a rune boundary so multibyte text is never split
// mid-character.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func splitSentences(content string) []string {
	var sentences []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}
	for _, r := range content {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			flush()
		}
	}
	flush()
	return sentences
}
