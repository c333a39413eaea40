// Package reranker re-orders hybrid retrieval candidates. A backend
// supplies raw semantic relevance scores (a local cross-encoder or a
// Gemini judge); the package then fuses those scores with lexical
// overlap, recency, authority and intent signals into the final
// ranking.
package reranker

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/carlosvictorodrigues/ratio/internal/config"
	"github.com/carlosvictorodrigues/ratio/internal/ranking"
)

// Backend scores query-document pairs. Implementations must return
// one score per document, in input order.
type Backend interface {
	Scores(ctx context.Context, query string, docs []*ranking.Document) ([]float64, error)
	Name() string
}

// ModelSelector is implemented by backends whose judge model can be
// switched per request via the gemini_rerank_model tuning knob.
type ModelSelector interface {
	WithModel(model string) Backend
}

// Preferences are the per-request ranking toggles.
type Preferences struct {
	// PreferRecent allows recency to contribute to the final score.
	PreferRecent bool

	// PreferUserSources applies the source priority boost to documents
	// from user-provided collections.
	PreferUserSources bool
}

// Outcome reports which backend produced the semantic scores and
// whether the ranking had to degrade.
type Outcome struct {
	Backend        string
	Degraded       bool
	DegradedReason string
}

// Reranker fuses semantic scores with the remaining relevance signals.
type Reranker struct {
	primary  Backend
	fallback Backend
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithFallback sets the backend used when the primary one fails.
func WithFallback(b Backend) Option {
	return func(r *Reranker) { r.fallback = b }
}

// WithClock overrides the time source, recency decays against it.
func WithClock(now func() time.Time) Option {
	return func(r *Reranker) { r.now = now }
}

// New creates a Reranker over the given primary backend.
func New(primary Backend, logger *slog.Logger, opts ...Option) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reranker{primary: primary, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank scores and orders candidates, returning at most tuning.TopKRerank
// documents. Backend failures degrade to the fallback backend and then
// to lexical-overlap scoring; Rank itself never fails.
func (r *Reranker) Rank(ctx context.Context, query string, docs []*ranking.Document, tuning config.Tuning, prefs Preferences) ([]*ranking.Document, Outcome) {
	if len(docs) == 0 {
		return nil, Outcome{Backend: r.primary.Name()}
	}

	semanticRaw, outcome := r.semanticScores(ctx, query, docs, tuning.GeminiRerankModel)
	semanticNorm := ranking.MinMaxScale(semanticRaw)

	intents := ranking.DetectIntents(query)

	recencyWeight := tuning.RecencyWeight
	if intents.Recency {
		recencyWeight *= tuning.RecencyIntentMultiplier
	} else if intents.Dominant {
		recencyWeight *= tuning.RecencyDominantMultiplier
	}
	proceduralPenalty := tuning.ProceduralPenaltyWeight
	if intents.Procedural {
		proceduralPenalty *= tuning.ProceduralIntentPenaltyMultiplier
	}
	authorityWeight := tuning.AuthorityBonusWeight
	if intents.Binding {
		authorityWeight *= tuning.AuthorityIntentMultiplier
	}

	now := r.now()
	for i, doc := range docs {
		cleanBusca := ranking.CleanRetrievedText(doc.SearchText)
		cleanIntegral := ranking.CutAtRune(ranking.CleanRetrievedText(doc.FullText), 2500)
		docText := doc.Process + "\n" + cleanBusca + "\n" + cleanIntegral

		doc.SemanticRaw = semanticRaw[i]
		doc.Semantic = semanticNorm[i]
		doc.SemanticBackend = outcome.Backend
		doc.Lexical = ranking.LexicalOverlap(query, docText)
		doc.Recency, doc.AgeYears, doc.AgeKnown = ranking.RecencyScore(
			doc.JudgmentDate, now, tuning.RecencyUnknownScore, tuning.RecencyHalfLifeYears)
		doc.Thesis = ranking.KeywordDensity(docText, ranking.ThesisSignalTerms, 4.0)
		doc.Procedural = ranking.KeywordDensity(docText, ranking.ProceduralSignalTerms, 4.0)
		doc.Role = ranking.InferRole(doc.Thesis, doc.Procedural)
		doc.Authority = ranking.Classify(doc)

		final := tuning.SemanticWeight*doc.Semantic + tuning.LexicalWeight*doc.Lexical

		doc.RecencyContrib = 0
		if prefs.PreferRecent {
			if intents.Recency {
				doc.RecencyContrib = recencyWeight * doc.Recency
			} else if doc.Semantic >= tuning.RecencyMinSemanticGate {
				doc.RecencyContrib = recencyWeight * doc.Recency
				if doc.RecencyContrib > tuning.RecencyMaxContribution {
					doc.RecencyContrib = tuning.RecencyMaxContribution
				}
			}
		}
		final += doc.RecencyContrib
		final += tuning.ThesisBonusWeight * doc.Thesis
		final += authorityWeight * doc.Authority.Score
		final += tuning.RRFWeight * doc.RRFScore

		doc.SourcePriority = 0
		if prefs.PreferUserSources && doc.SourceKind == "user" {
			doc.SourcePriority = tuning.UserSourcePriorityBoost
			final += doc.SourcePriority
		}

		final += levelBoost(tuning, doc.Authority.Level)

		if intents.Binding {
			switch doc.Type {
			case "acordao", "acordao_sv", "sumula", "sumula_stj", "sumula_vinculante", "tema_repetitivo_stj":
				final += tuning.CollegialBindingBonus
			case "monocratica", "monocratica_sv":
				final -= tuning.MonocraticBindingPenalty
			}
		}
		if !intents.Procedural {
			final -= proceduralPenalty * doc.Procedural
		}

		doc.FinalScore = final
	}

	ordered := make([]*ranking.Document, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return lessRanked(ordered[j], ordered[i])
	})

	topK := tuning.TopKRerank
	if topK <= 0 || topK > len(ordered) {
		topK = len(ordered)
	}
	if tuning.RerankDedupProcess {
		return dedupe(ordered, topK), outcome
	}
	return ordered[:topK], outcome
}

// lessRanked orders a below b. The score tuple mirrors the fused
// signals; remaining ties fall to authority rank, newer judgment date
// and finally doc ID so the ordering is deterministic.
func lessRanked(a, b *ranking.Document) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore < b.FinalScore
	}
	if a.Authority.Score != b.Authority.Score {
		return a.Authority.Score < b.Authority.Score
	}
	if a.Thesis != b.Thesis {
		return a.Thesis < b.Thesis
	}
	if a.Semantic != b.Semantic {
		return a.Semantic < b.Semantic
	}
	if a.Lexical != b.Lexical {
		return a.Lexical < b.Lexical
	}
	if ra, rb := a.Authority.Level.Rank(), b.Authority.Level.Rank(); ra != rb {
		return ra > rb
	}
	if !a.JudgmentDate.Equal(b.JudgmentDate) {
		return a.JudgmentDate.Before(b.JudgmentDate)
	}
	return a.DocID > b.DocID
}

func (r *Reranker) semanticScores(ctx context.Context, query string, docs []*ranking.Document, model string) ([]float64, Outcome) {
	primary := selectModel(r.primary, model)
	scores, err := primary.Scores(ctx, query, docs)
	if err == nil && len(scores) == len(docs) {
		return scores, Outcome{Backend: primary.Name()}
	}
	if err != nil {
		r.logger.Warn("primary reranker backend failed", "backend", primary.Name(), "error", err)
	}

	if r.fallback != nil {
		fallback := selectModel(r.fallback, model)
		scores, fbErr := fallback.Scores(ctx, query, docs)
		if fbErr == nil && len(scores) == len(docs) {
			return scores, Outcome{
				Backend:        fallback.Name(),
				Degraded:       true,
				DegradedReason: degradedReason(err),
			}
		}
		if fbErr != nil {
			r.logger.Warn("fallback reranker backend failed", "backend", fallback.Name(), "error", fbErr)
		}
	}

	// Last resort: lexical overlap against each document.
	scores = make([]float64, len(docs))
	for i, doc := range docs {
		scores[i] = ranking.Clip01(ranking.LexicalOverlap(query, doc.SearchText))
	}
	return scores, Outcome{
		Backend:        "lexical",
		Degraded:       true,
		DegradedReason: degradedReason(err),
	}
}

// selectModel re-targets a backend at the requested judge model when
// the backend supports that.
func selectModel(b Backend, model string) Backend {
	if b == nil || model == "" {
		return b
	}
	if sel, ok := b.(ModelSelector); ok {
		return sel.WithModel(model)
	}
	return b
}

func degradedReason(err error) string {
	if err == nil {
		return "backend returned a short score vector"
	}
	return err.Error()
}

func levelBoost(t config.Tuning, level ranking.Level) float64 {
	switch level {
	case ranking.LevelA:
		return t.AuthorityLevelABoost
	case ranking.LevelB:
		return t.AuthorityLevelBBoost
	case ranking.LevelC:
		return t.AuthorityLevelCBoost
	case ranking.LevelE:
		return t.AuthorityLevelEBoost
	default:
		return t.AuthorityLevelDBoost
	}
}

// dedupe keeps the first document per process key, refilling from the
// remainder if the cut came up short.
func dedupe(ordered []*ranking.Document, topK int) []*ranking.Document {
	selected := make([]*ranking.Document, 0, topK)
	picked := make(map[int]struct{}, topK)
	seen := make(map[string]struct{}, topK)

	for idx, doc := range ordered {
		key := doc.DedupeKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		selected = append(selected, doc)
		picked[idx] = struct{}{}
		if len(selected) >= topK {
			return selected
		}
	}

	for idx, doc := range ordered {
		if len(selected) >= topK {
			break
		}
		if _, ok := picked[idx]; ok {
			continue
		}
		selected = append(selected, doc)
	}
	return selected
}
