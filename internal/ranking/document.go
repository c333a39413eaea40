// Package ranking holds the shared document model and the relevance
// signals used to order jurisprudence candidates: text normalization,
// intent detection, authority classification, recency decay and the
// keyword densities that feed the fused score.
package ranking

import "time"

// Document is one retrieved candidate flowing through the pipeline.
// Retrieval fills the payload and hybrid fields; reranking fills the
// scoring fields.
type Document struct {
	DocID      string
	Type       string
	Court      string
	Process    string
	Rapporteur string
	Organ      string
	Branch     string

	JudgmentDate time.Time
	SearchText   string
	FullText     string

	SourceID    string
	SourceLabel string
	SourceKind  string

	MetadataExtra map[string]string

	// Hybrid retrieval signals. Ranks are 1-based; zero means the
	// document was absent from that leg.
	DenseRank   int
	LexicalRank int
	RRFScore    float64
	HybridHits  int

	// Scoring signals filled during reranking.
	SemanticRaw     float64
	Semantic        float64
	SemanticBackend string
	Lexical         float64
	Recency         float64
	RecencyContrib  float64
	Thesis          float64
	Procedural      float64
	Role            Role
	Authority       Classification
	AgeYears        float64
	AgeKnown        bool
	SourcePriority  float64
	FinalScore      float64
}

// Key returns the identity used to merge hybrid legs. Documents with
// no stable ID fall back to their court/type/process triple.
func (d *Document) Key() string {
	if d.DocID != "" {
		return d.DocID
	}
	return d.Court + "|" + d.Type + "|" + d.Process
}

// DedupeKey collapses near-duplicate decisions of the same process so
// the final ranking does not return the same case twice.
func (d *Document) DedupeKey() string {
	processo := NormalizeText(d.Process)
	if processo != "" {
		return NormalizeText(d.Court) + "|" + NormalizeText(d.Type) + "|" + processo
	}
	if d.DocID != "" {
		return "id|" + d.DocID
	}
	return "fallback|" + CutAtRune(NormalizeText(d.SearchText), 120)
}
