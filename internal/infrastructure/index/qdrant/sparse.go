package qdrant

import (
	"hash/fnv"
	"math"
	"sort"

	"github.com/grimlore/loremaster/internal/infrastructure/index/memindex"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	docBM25K1      = 1.2
	queryBM25K     = 1.2
	titleBoost     = 2.0
	maxSparseTerms = 256
)

// encodeSparseDocument hashes a fragment's terms into a sparse vector with
// BM25-style saturation. Title terms carry extra weight, matching the
// in-process index's lexical scoring.
func encodeSparseDocument(title, content string) sparseVector {
	termFreq := make(map[uint32]float64, 64)
	appendTermFreq(termFreq, memindex.Tokenize(title), titleBoost)
	appendTermFreq(termFreq, memindex.Tokenize(content), 1.0)
	return termFreqToSparse(termFreq, docBM25K1)
}

func encodeSparseQuery(terms []string) sparseVector {
	termFreq := make(map[uint32]float64, 32)
	for _, term := range terms {
		appendTermFreq(termFreq, memindex.Tokenize(term), 1.0)
	}
	return termFreqToSparse(termFreq, queryBM25K)
}

func appendTermFreq(dst map[uint32]float64, tokens []string, tokenWeight float64) {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		dst[hashToken(token)] += tokenWeight
	}
}

func termFreqToSparse(tf map[uint32]float64, k float64) sparseVector {
	if len(tf) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if len(indices) > maxSparseTerms {
		indices = indices[:maxSparseTerms]
	}

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		tfValue := tf[idx]
		weight := (tfValue * (k + 1.0)) / (tfValue + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}

	return sparseVector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum32()
	if sum == 0 {
		return 1
	}
	return sum
}
