package pipeline

import (
	"math"
	"time"

	"github.com/carlosvictorodrigues/ratio/internal/assembler"
	"github.com/carlosvictorodrigues/ratio/internal/ranking"
)

const (
	searchTextLimit         = 1500
	fullTextExcerptLimit    = 1800
	normativeStatementLimit = 260
)

// SerializedDoc is the API representation of one ranked document.
type SerializedDoc struct {
	Index               int     `json:"index"`
	DocID               string  `json:"doc_id,omitempty"`
	Type                string  `json:"tipo"`
	TypeLabel           string  `json:"tipo_label"`
	Process             string  `json:"processo,omitempty"`
	Court               string  `json:"tribunal,omitempty"`
	JudgmentDate        string  `json:"data_julgamento,omitempty"`
	Rapporteur          string  `json:"relator,omitempty"`
	Organ               string  `json:"orgao_julgador,omitempty"`
	AuthorityLevel      string  `json:"authority_level"`
	AuthorityLabel      string  `json:"authority_label"`
	FinalScore          float64 `json:"final_score"`
	SemanticBackend     string  `json:"semantic_backend,omitempty"`
	InteiroTeorURL      string  `json:"inteiro_teor_url,omitempty"`
	SearchText          string  `json:"texto_busca,omitempty"`
	FullTextExcerpt     string  `json:"texto_integral_excerpt,omitempty"`
	NormativeStatement  string  `json:"normative_statement,omitempty"`
	SourceID            string  `json:"source_id,omitempty"`
	SourceLabel         string  `json:"source_label,omitempty"`
	SourceKind          string  `json:"source_kind,omitempty"`
	Role                string  `json:"role,omitempty"`
	RoleLabel           string  `json:"role_label,omitempty"`
}

// SerializeDocs converts ranked documents into their API shape,
// preserving order. Index is 1-based so it matches the [DOC. n]
// citation labels in the answer.
func SerializeDocs(docs []*ranking.Document) []SerializedDoc {
	out := make([]SerializedDoc, 0, len(docs))
	for i, doc := range docs {
		out = append(out, serializeDoc(doc, i+1))
	}
	return out
}

func serializeDoc(doc *ranking.Document, index int) SerializedDoc {
	date := ""
	if !doc.JudgmentDate.IsZero() {
		date = doc.JudgmentDate.Format(time.DateOnly)
	}
	return SerializedDoc{
		Index:              index,
		DocID:              doc.DocID,
		Type:               doc.Type,
		TypeLabel:          ranking.TypeLabel(doc.Type),
		Process:            doc.Process,
		Court:              doc.Court,
		JudgmentDate:       date,
		Rapporteur:         doc.Rapporteur,
		Organ:              doc.Organ,
		AuthorityLevel:     string(doc.Authority.Level),
		AuthorityLabel:     doc.Authority.Level.Label(),
		FinalScore:         roundScore(doc.FinalScore),
		SemanticBackend:    doc.SemanticBackend,
		InteiroTeorURL:     doc.MetadataExtra["inteiro_teor_url"],
		SearchText:         ranking.TruncateText(ranking.CleanRetrievedText(doc.SearchText), searchTextLimit),
		FullTextExcerpt:    ranking.TruncateText(ranking.CleanRetrievedText(doc.FullText), fullTextExcerptLimit),
		NormativeStatement: assembler.NormativeStatement(doc, normativeStatementLimit),
		SourceID:           doc.SourceID,
		SourceLabel:        doc.SourceLabel,
		SourceKind:         doc.SourceKind,
		Role:               string(doc.Role),
		RoleLabel:          doc.Role.Label(),
	}
}

func roundScore(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
