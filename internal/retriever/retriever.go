// Package retriever runs hybrid (dense plus lexical) retrieval across
// the configured corpus sources and merges the legs with reciprocal
// rank fusion.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/carlosvictorodrigues/ratio/internal/ranking"
	"github.com/carlosvictorodrigues/ratio/internal/vectorstore"
)

// ErrAllSourcesFailed is returned when no search leg produced results
// on any source.
var ErrAllSourcesFailed = errors.New("retriever: all sources failed")

// Leg names the half of a hybrid search that failed.
type Leg string

const (
	LegDense   Leg = "dense"
	LegLexical Leg = "lexical"
)

// SourceFailure records one failed search leg. Partial failures do not
// abort the query; the orchestrator surfaces them as warnings.
type SourceFailure struct {
	SourceID string
	Leg      Leg
	Err      error
}

func (f SourceFailure) String() string {
	return fmt.Sprintf("%s/%s: %v", f.SourceID, f.Leg, f.Err)
}

// Options bound one retrieval run.
type Options struct {
	// TopK is the per-leg candidate budget.
	TopK int

	// RRFK is the reciprocal rank fusion constant.
	RRFK int

	// Sources restricts the run to these source IDs. Empty means all
	// configured sources.
	Sources []string

	// Filter narrows corpus searches by payload fields. User-provided
	// collections are not filtered, their payloads do not carry the
	// corpus schema.
	Filter vectorstore.Filter
}

// Retriever fans hybrid searches out over the configured sources.
type Retriever struct {
	store   vectorstore.VectorStore
	sources []vectorstore.Source
	logger  *slog.Logger
}

// New creates a Retriever over the given sources.
func New(store vectorstore.VectorStore, sources []vectorstore.Source, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, sources: sources, logger: logger}
}

// Sources returns the configured sources.
func (r *Retriever) Sources() []vectorstore.Source {
	return r.sources
}

type legResult struct {
	source vectorstore.Source
	leg    Leg
	rows   []vectorstore.Row
}

// Retrieve runs both legs on every selected source, merges the hits by
// document identity and returns candidates ordered by fused RRF score.
// Failed legs are reported, not fatal; only a run where every leg
// failed returns an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, vector []float32, opts Options) ([]*ranking.Document, []SourceFailure, error) {
	selected := r.selectSources(opts.Sources)
	if len(selected) == 0 {
		return nil, nil, fmt.Errorf("retriever: no sources selected")
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 80
	}
	rrfK := opts.RRFK
	if rrfK <= 0 {
		rrfK = 60
	}

	var (
		mu       sync.Mutex
		results  []legResult
		failures []SourceFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, source := range selected {
		filter := opts.Filter
		if source.Kind == "user" {
			filter = vectorstore.Filter{}
		}

		for _, leg := range []Leg{LegDense, LegLexical} {
			g.Go(func() error {
				req := vectorstore.SearchRequest{
					Filter: filter,
					Limit:  topK,
				}
				switch leg {
				case LegDense:
					req.Mode = vectorstore.ModeDense
					req.Vector = vector
				case LegLexical:
					req.Mode = vectorstore.ModeLexical
					req.Text = query
				}

				rows, err := r.store.Search(gctx, source, req)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, SourceFailure{SourceID: source.ID, Leg: leg, Err: err})
					r.logger.Warn("search leg failed",
						"source", source.ID,
						"leg", string(leg),
						"error", err)
					return nil
				}
				results = append(results, legResult{source: source, leg: leg, rows: rows})
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, failures, err
	}

	if len(results) == 0 {
		return nil, failures, fmt.Errorf("%w: %d legs failed", ErrAllSourcesFailed, len(failures))
	}

	docs := fuse(results, rrfK)
	return docs, failures, nil
}

func (r *Retriever) selectSources(ids []string) []vectorstore.Source {
	if len(ids) == 0 {
		return r.sources
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	selected := make([]vectorstore.Source, 0, len(ids))
	for _, s := range r.sources {
		if _, ok := wanted[s.ID]; ok {
			selected = append(selected, s)
		}
	}
	return selected
}

// rrf is the reciprocal rank fusion contribution of one leg rank.
func rrf(rank, k int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / float64(k+rank)
}

// fuse merges leg results per source by document key, assigns
// per-leg ranks and computes the fused RRF score. Documents never
// cross sources, distinct sources cannot hold the same doc ID.
func fuse(results []legResult, rrfK int) []*ranking.Document {
	merged := make(map[string]*ranking.Document)
	order := make([]string, 0, 64)

	for _, res := range results {
		for i, row := range res.rows {
			rank := i + 1
			key := res.source.ID + "\x00" + rowKey(row)
			doc, ok := merged[key]
			if !ok {
				doc = docFromRow(row)
				merged[key] = doc
				order = append(order, key)
			}
			switch res.leg {
			case LegDense:
				if doc.DenseRank == 0 || rank < doc.DenseRank {
					doc.DenseRank = rank
				}
			case LegLexical:
				if doc.LexicalRank == 0 || rank < doc.LexicalRank {
					doc.LexicalRank = rank
				}
			}
			// Prefer the richer payload when both legs return the doc.
			if doc.FullText == "" && row.FullText != "" {
				doc.FullText = row.FullText
			}
		}
	}

	docs := make([]*ranking.Document, 0, len(merged))
	for _, key := range order {
		doc := merged[key]
		doc.RRFScore = rrf(doc.DenseRank, rrfK) + rrf(doc.LexicalRank, rrfK)
		doc.HybridHits = 0
		if doc.DenseRank > 0 {
			doc.HybridHits++
		}
		if doc.LexicalRank > 0 {
			doc.HybridHits++
		}
		docs = append(docs, doc)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if a.HybridHits != b.HybridHits {
			return a.HybridHits > b.HybridHits
		}
		ra, rb := bestRank(a), bestRank(b)
		if ra != rb {
			return ra < rb
		}
		return a.DocID < b.DocID
	})

	return docs
}

func bestRank(d *ranking.Document) int {
	best := 1 << 30
	if d.DenseRank > 0 && d.DenseRank < best {
		best = d.DenseRank
	}
	if d.LexicalRank > 0 && d.LexicalRank < best {
		best = d.LexicalRank
	}
	return best
}

func rowKey(row vectorstore.Row) string {
	if row.DocID != "" {
		return row.DocID
	}
	return row.Court + "|" + row.Type + "|" + row.Process
}

func docFromRow(row vectorstore.Row) *ranking.Document {
	return &ranking.Document{
		DocID:         row.DocID,
		Type:          row.Type,
		Court:         row.Court,
		Process:       row.Process,
		Rapporteur:    row.Rapporteur,
		Organ:         row.Organ,
		Branch:        row.Branch,
		JudgmentDate:  row.JudgmentDate,
		SearchText:    row.SearchText,
		FullText:      row.FullText,
		SourceID:      row.SourceID,
		SourceLabel:   row.SourceLabel,
		SourceKind:    row.SourceKind,
		MetadataExtra: row.MetadataExtra,
	}
}
