package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/carlosvictorodrigues/ratio/internal/vectorstore"
)

// fakeStore returns canned rows per source/mode and can fail selected legs.
type fakeStore struct {
	rows map[string]map[vectorstore.SearchMode][]vectorstore.Row
	fail map[string]map[vectorstore.SearchMode]error
}

func (f *fakeStore) Search(ctx context.Context, source vectorstore.Source, req vectorstore.SearchRequest) ([]vectorstore.Row, error) {
	if errs, ok := f.fail[source.ID]; ok {
		if err, ok := errs[req.Mode]; ok {
			return nil, err
		}
	}
	return f.rows[source.ID][req.Mode], nil
}

func (f *fakeStore) Close() error { return nil }

var testSources = []vectorstore.Source{
	{ID: "corpus", Label: "Acervo", Kind: "corpus", Collection: "jurisprudencia"},
	{ID: "user", Label: "Meu acervo", Kind: "user", Collection: "meu_acervo"},
}

func row(id string) vectorstore.Row {
	return vectorstore.Row{DocID: id, Type: "acordao", Court: "STF", SourceID: "corpus"}
}

func TestRetrieve_FusesLegsByDocument(t *testing.T) {
	store := &fakeStore{rows: map[string]map[vectorstore.SearchMode][]vectorstore.Row{
		"corpus": {
			vectorstore.ModeDense:   {row("a"), row("b"), row("c")},
			vectorstore.ModeLexical: {row("b"), row("a")},
		},
	}}
	r := New(store, testSources, nil)

	docs, failures, err := r.Retrieve(context.Background(), "dano moral", []float32{0.1}, Options{
		TopK:    10,
		RRFK:    60,
		Sources: []string{"corpus"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 merged documents, got %d", len(docs))
	}

	// a and b appear in both legs so they must outrank c.
	if docs[0].HybridHits != 2 || docs[1].HybridHits != 2 {
		t.Errorf("documents in both legs should lead: %+v", docs)
	}
	if docs[2].DocID != "c" {
		t.Errorf("single-leg document should rank last, got %q", docs[2].DocID)
	}
	for _, d := range docs[:2] {
		if d.DenseRank == 0 || d.LexicalRank == 0 {
			t.Errorf("doc %q should carry both leg ranks: %+v", d.DocID, d)
		}
		if d.RRFScore <= docs[2].RRFScore {
			t.Errorf("doc %q fused score should exceed single-leg score", d.DocID)
		}
	}
}

func TestRetrieve_RRFScoreValues(t *testing.T) {
	store := &fakeStore{rows: map[string]map[vectorstore.SearchMode][]vectorstore.Row{
		"corpus": {
			vectorstore.ModeDense: {row("a")},
		},
	}}
	r := New(store, testSources, nil)

	docs, _, err := r.Retrieve(context.Background(), "q", []float32{0.1}, Options{
		TopK: 10, RRFK: 60, Sources: []string{"corpus"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 1.0 / 61.0
	if diff := docs[0].RRFScore - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("RRFScore = %v, want %v", docs[0].RRFScore, want)
	}
}

func TestRetrieve_PartialFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{
		rows: map[string]map[vectorstore.SearchMode][]vectorstore.Row{
			"corpus": {vectorstore.ModeDense: {row("a")}},
		},
		fail: map[string]map[vectorstore.SearchMode]error{
			"corpus": {vectorstore.ModeLexical: errors.New("sparse index down")},
		},
	}
	r := New(store, testSources, nil)

	docs, failures, err := r.Retrieve(context.Background(), "q", []float32{0.1}, Options{
		TopK: 10, RRFK: 60, Sources: []string{"corpus"},
	})
	if err != nil {
		t.Fatalf("partial failure must not abort: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected surviving leg results, got %d docs", len(docs))
	}
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if failures[0].SourceID != "corpus" || failures[0].Leg != LegLexical {
		t.Errorf("unexpected failure record: %+v", failures[0])
	}
}

func TestRetrieve_AllLegsFailed(t *testing.T) {
	boom := errors.New("qdrant unreachable")
	store := &fakeStore{
		fail: map[string]map[vectorstore.SearchMode]error{
			"corpus": {vectorstore.ModeDense: boom, vectorstore.ModeLexical: boom},
			"user":   {vectorstore.ModeDense: boom, vectorstore.ModeLexical: boom},
		},
	}
	r := New(store, testSources, nil)

	_, failures, err := r.Retrieve(context.Background(), "q", []float32{0.1}, Options{TopK: 10, RRFK: 60})
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}
	if len(failures) != 4 {
		t.Errorf("expected 4 leg failures, got %d", len(failures))
	}
}

func TestRetrieve_UnknownSourceSelection(t *testing.T) {
	r := New(&fakeStore{}, testSources, nil)
	_, _, err := r.Retrieve(context.Background(), "q", []float32{0.1}, Options{Sources: []string{"nope"}})
	if err == nil {
		t.Fatal("expected error for unknown source selection")
	}
}

func TestRetrieve_DocumentsDoNotMergeAcrossSources(t *testing.T) {
	userRow := vectorstore.Row{DocID: "a", Type: "acervo_usuario", SourceID: "user", SourceKind: "user"}
	store := &fakeStore{rows: map[string]map[vectorstore.SearchMode][]vectorstore.Row{
		"corpus": {vectorstore.ModeDense: {row("a")}},
		"user":   {vectorstore.ModeDense: {userRow}},
	}}
	r := New(store, testSources, nil)

	docs, _, err := r.Retrieve(context.Background(), "q", []float32{0.1}, Options{TopK: 10, RRFK: 60})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("same doc ID in different sources must stay distinct, got %d docs", len(docs))
	}
}
