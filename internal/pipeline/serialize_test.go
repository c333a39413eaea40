package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/carlosvictorodrigues/ratio/internal/ranking"
)

func TestSerializeDocs_Fields(t *testing.T) {
	doc := &ranking.Document{
		DocID:           "stf-123",
		Type:            "acordao",
		Process:         "RE 123456",
		Court:           "STF",
		Rapporteur:      "Min. Exemplo",
		Organ:           "Tribunal Pleno",
		JudgmentDate:    time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		SearchText:      "Ementa: responsabilidade civil objetiva do Estado.",
		FullText:        "Inteiro teor da decisao com a fundamentacao completa do voto condutor.",
		SourceID:        "corpus",
		SourceLabel:     "Acervo de jurisprudencia",
		SourceKind:      "corpus",
		SemanticBackend: "local",
		FinalScore:      0.8765432109,
		MetadataExtra:   map[string]string{"inteiro_teor_url": "https://example.org/teor/123"},
	}
	doc.Authority = ranking.Classify(doc)
	doc.Role = ranking.RoleApplication

	out := SerializeDocs([]*ranking.Document{doc})
	if len(out) != 1 {
		t.Fatalf("got %d docs", len(out))
	}
	s := out[0]

	if s.Index != 1 {
		t.Errorf("index = %d, want 1", s.Index)
	}
	if s.TypeLabel != "Acórdão" {
		t.Errorf("type label = %q", s.TypeLabel)
	}
	if s.JudgmentDate != "2024-05-10" {
		t.Errorf("judgment date = %q", s.JudgmentDate)
	}
	if s.AuthorityLevel == "" || s.AuthorityLabel == "" {
		t.Errorf("authority fields empty: %q / %q", s.AuthorityLevel, s.AuthorityLabel)
	}
	if s.FinalScore != 0.876543 {
		t.Errorf("final score = %v, want rounded to 6 places", s.FinalScore)
	}
	if s.InteiroTeorURL != "https://example.org/teor/123" {
		t.Errorf("inteiro teor URL = %q", s.InteiroTeorURL)
	}
	if s.SourceKind != "corpus" || s.SourceLabel != "Acervo de jurisprudencia" {
		t.Errorf("source fields = %q / %q", s.SourceKind, s.SourceLabel)
	}
	if s.Role == "" || s.RoleLabel == "" {
		t.Errorf("role fields empty: %q / %q", s.Role, s.RoleLabel)
	}
}

func TestSerializeDocs_ZeroDate(t *testing.T) {
	doc := &ranking.Document{DocID: "d1", Type: "sumula"}
	doc.Authority = ranking.Classify(doc)

	s := SerializeDocs([]*ranking.Document{doc})[0]
	if s.JudgmentDate != "" {
		t.Errorf("zero date must serialize empty, got %q", s.JudgmentDate)
	}
}

func TestSerializeDocs_TextLimits(t *testing.T) {
	doc := &ranking.Document{
		DocID:      "d1",
		Type:       "acordao",
		SearchText: strings.Repeat("palavra ", 400),
		FullText:   strings.Repeat("fundamento ", 400),
	}
	doc.Authority = ranking.Classify(doc)

	s := SerializeDocs([]*ranking.Document{doc})[0]
	if len(s.SearchText) > searchTextLimit {
		t.Errorf("search text length %d exceeds limit", len(s.SearchText))
	}
	if len(s.FullTextExcerpt) > fullTextExcerptLimit {
		t.Errorf("full text excerpt length %d exceeds limit", len(s.FullTextExcerpt))
	}
}

func TestSerializeDocs_IndexMatchesCitationLabels(t *testing.T) {
	docs := []*ranking.Document{
		{DocID: "a", Type: "sumula"},
		{DocID: "b", Type: "acordao"},
		{DocID: "c", Type: "monocratica"},
	}
	for _, d := range docs {
		d.Authority = ranking.Classify(d)
	}

	out := SerializeDocs(docs)
	for i, s := range out {
		if s.Index != i+1 {
			t.Errorf("docs[%d].Index = %d, want %d", i, s.Index, i+1)
		}
	}
}
