package vectorstore

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// SparseVector is a client-side encoded lexical vector.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

const (
	queryBM25K     = 1.2
	maxSparseTerms = 256
)

// EncodeSparseQuery builds a BM25-style sparse vector for a query string.
// Token indices are FNV hashes so no shared vocabulary is needed; the
// ingest side encodes documents with the same hashing scheme.
func EncodeSparseQuery(query string) SparseVector {
	tf := make(map[uint32]float64, 32)
	for _, token := range tokenize(query) {
		tf[hashToken(token)]++
	}
	if len(tf) == 0 {
		return SparseVector{}
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
		freq := tf[idx]
		weight := (freq * (queryBM25K + 1.0)) / (freq + queryBM25K)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}

	return SparseVector{Indices: indices, Values: values}
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

// tokenize lowercases, strips accents common in Portuguese legal text
// and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if folded, ok := accentFold[r]; ok {
			r = folded
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

var accentFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a',
	'é': 'e', 'ê': 'e', 'è': 'e',
	'í': 'i', 'î': 'i',
	'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ú': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c',
}
