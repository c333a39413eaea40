// Package assembler turns ranked documents into the numbered context
// block handed to generation. Passages are selected by query and
// thesis signal, clipped to per-document and total budgets and
// rendered with provenance headers under stable [DOC. n] indices.
package assembler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/carlosvictorodrigues/ratio/internal/ranking"
)

// Budgets cap the rendered context. MaxTotalChars bounds the whole
// block across documents; zero means unbounded.
type Budgets struct {
	MaxPassagesPerDoc int
	MaxPassageChars   int
	MaxDocChars       int
	MaxTotalChars     int
}

// DefaultBudgets mirror the ingestion-side passage sizes.
var DefaultBudgets = Budgets{
	MaxPassagesPerDoc: 5,
	MaxPassageChars:   1000,
	MaxDocChars:       2500,
	MaxTotalChars:     12000,
}

var (
	paragraphSplitRe = regexp.MustCompile(`\n{2,}`)
	sentenceSplitRe  = regexp.MustCompile(`(?:[.!?;])\s+`)
	labeledLineRe    = regexp.MustCompile(`(?im)\b(enunciado|tese fixada|tese firmada|tese|ementa|tema)\s*:\s*(.+)`)
	numberPrefixRe   = regexp.MustCompile(`(?i)^(sumula(?:\s+stj)?\s*\d+|sumula vinculante\s*\d+|tema repetitivo\s*\d+|tema\s*\d+)\s*[:\-]\s*`)
	themeNumberRe    = regexp.MustCompile(`\btema\s+\d+\b`)
)

// Render builds the full context block for generation. Index i in the
// output corresponds to docs[i-1]; generation cites by that index.
// When MaxTotalChars is set, lower-ranked documents whose block would
// push the running total over it are dropped from the tail; indices of
// the documents that remain are unchanged.
func Render(docs []*ranking.Document, query string, b Budgets) string {
	var sb strings.Builder
	for i, doc := range docs {
		block := renderDoc(doc, i+1, query, b)
		if b.MaxTotalChars > 0 && sb.Len()+len(block) > b.MaxTotalChars {
			break
		}
		sb.WriteString(block)
	}
	return sb.String()
}

func renderDoc(doc *ranking.Document, index int, query string, b Budgets) string {
	passages := extractPassages(query, doc, b)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[DOC. %d]\n", index)
	fmt.Fprintf(&sb, "Origem: %s - %s\n", doc.Court, ranking.TypeLabel(doc.Type))
	fmt.Fprintf(&sb, "Qualificacao do precedente: %s\n", doc.Authority.Level.Label())
	fmt.Fprintf(&sb, "Fundamento da qualificacao: %s\n", authorityReason(doc))
	fmt.Fprintf(&sb, "Processo/Informativo: %s (ID: %s)\n", doc.Process, doc.DocID)
	fmt.Fprintf(&sb, "Ramo: %s\n", doc.Branch)
	fmt.Fprintf(&sb, "Data: %s\n", judgmentDate(doc))
	fmt.Fprintf(&sb, "Relator/Orgao: %s / %s\n", doc.Rapporteur, OrganLabel(doc.Organ))

	if statement := NormativeStatement(doc, 260); statement != "" {
		fmt.Fprintf(&sb, "Enunciado/Tese-chave: %s\n", statement)
	}

	sb.WriteString("TRECHOS SELECIONADOS:\n")
	if len(passages) == 0 {
		sb.WriteString("- [Trecho] Sem texto util extraido.\n")
	}
	for pIdx, passage := range passages {
		fmt.Fprintf(&sb, "- [Trecho %d] %s\n", pIdx+1, passage)
	}
	sb.WriteString(strings.Repeat("-", 50))
	sb.WriteString("\n\n")
	return sb.String()
}

func authorityReason(doc *ranking.Document) string {
	if doc.Authority.Reason != "" {
		return doc.Authority.Reason
	}
	return "Nao classificado."
}

func judgmentDate(doc *ranking.Document) string {
	if doc.JudgmentDate.IsZero() {
		return ""
	}
	return doc.JudgmentDate.Format("2006-01-02")
}

// OrganLabel cleans up raw judging-organ strings for display.
func OrganLabel(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "-"
	}
	return value
}

type scoredPassage struct {
	score   float64
	passage string
}

// extractPassages chooses the passages for one document: the stored
// summary first, then full-text fragments ordered by query hits and
// thesis density, all under the budgets. Over-budget passages are
// skipped, never reordered back in.
func extractPassages(query string, doc *ranking.Document, b Budgets) []string {
	busca := ranking.CleanRetrievedText(doc.SearchText)
	integral := ranking.CleanRetrievedText(doc.FullText)

	queryTokens := ranking.Tokens(query)
	tokenSet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		tokenSet[t] = struct{}{}
	}

	var selected []string
	seen := make(map[string]struct{})
	totalChars := 0

	if busca != "" {
		resumo := ranking.TruncateText(busca, b.MaxPassageChars)
		selected = append(selected, resumo)
		seen[passageKey(resumo)] = struct{}{}
		totalChars += len(resumo)
	}

	scored := make([]scoredPassage, 0, 16)
	for _, p := range splitPassages(integral) {
		pNorm := ranking.NormalizeText(p)
		hits := 0
		for t := range tokenSet {
			if strings.Contains(pNorm, t) {
				hits++
			}
		}
		thesis := ranking.KeywordDensity(p, ranking.ThesisSignalTerms, 4.0)
		procedural := ranking.KeywordDensity(p, ranking.ProceduralSignalTerms, 4.0)
		score := 1.20*float64(hits) + 1.80*thesis + 0.80*procedural
		if score > 0 {
			scored = append(scored, scoredPassage{score: score, passage: p})
		}
	}
	if len(scored) == 0 && integral != "" {
		head := ranking.CutAtRune(integral, b.MaxDocChars)
		for _, p := range splitPassages(head) {
			scored = append(scored, scoredPassage{score: 0.01, passage: p})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return len(scored[i].passage) > len(scored[j].passage)
	})

	for _, sp := range scored {
		key := passageKey(sp.passage)
		if _, dup := seen[key]; dup {
			continue
		}
		clipped := ranking.TruncateText(sp.passage, b.MaxPassageChars)
		if clipped == "" {
			continue
		}
		if totalChars+len(clipped) > b.MaxDocChars {
			continue
		}
		selected = append(selected, clipped)
		seen[key] = struct{}{}
		totalChars += len(clipped)
		if len(selected) >= b.MaxPassagesPerDoc {
			break
		}
	}

	return selected
}

func passageKey(passage string) string {
	return ranking.CutAtRune(ranking.NormalizeText(passage), 140)
}

// splitPassages prefers paragraph boundaries, falling back to
// sentences for wall-of-text documents.
func splitPassages(text string) []string {
	base := strings.TrimSpace(text)
	if base == "" {
		return nil
	}

	var paragraphs []string
	for _, p := range paragraphSplitRe.Split(base, -1) {
		p = strings.TrimSpace(p)
		if len(p) >= 80 {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) >= 3 {
		return paragraphs
	}

	var sentences []string
	for _, s := range sentenceSplitRe.Split(base, -1) {
		s = strings.TrimSpace(s)
		if len(s) >= 80 {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) > 0 {
		return sentences
	}
	return []string{base}
}

// NormativeStatement extracts the fixed thesis or enunciado of
// structural precedents (sumulas, repetitive themes, general
// repercussion acordaos). Ordinary case law returns empty.
func NormativeStatement(doc *ranking.Document, maxChars int) string {
	tipo := strings.ToLower(strings.TrimSpace(doc.Type))
	busca := ranking.CleanRetrievedText(doc.SearchText)
	integral := ranking.CleanRetrievedText(doc.FullText)
	joined := strings.TrimSpace(busca + "\n" + integral)
	corpusNorm := ranking.NormalizeText(doc.Process + "\n" + joined)

	structural := false
	switch tipo {
	case "sumula", "sumula_stj", "sumula_vinculante", "tema_repetitivo_stj":
		structural = true
	case "acordao", "acordao_sv":
		structural = strings.Contains(corpusNorm, "repercussao geral") ||
			themeNumberRe.MatchString(corpusNorm) ||
			isTrueish(doc.MetadataExtra["is_repercussao_geral"])
	}
	if !structural {
		return ""
	}

	var candidates []string
	for _, key := range []string{"tese_tema", "tema", "assunto", "titulo"} {
		if txt := ranking.CleanRetrievedText(doc.MetadataExtra[key]); len(txt) >= 26 {
			candidates = append(candidates, txt)
		}
	}
	if m := labeledLineRe.FindStringSubmatch(joined); m != nil {
		if labeled := ranking.CleanRetrievedText(m[2]); labeled != "" {
			candidates = append(candidates, labeled)
		}
	}
	for _, line := range strings.Split(joined, "\n") {
		item := ranking.CleanRetrievedText(line)
		if len(item) < 28 {
			continue
		}
		itemNorm := ranking.NormalizeText(item)
		if strings.HasPrefix(itemNorm, "origem:") || strings.HasPrefix(itemNorm, "processo:") ||
			strings.HasPrefix(itemNorm, "relator:") || strings.HasPrefix(itemNorm, "orgao julgador:") ||
			strings.HasPrefix(itemNorm, "ramo:") || strings.HasPrefix(itemNorm, "data:") {
			continue
		}
		candidates = append(candidates, item)
		break
	}

	seen := make(map[string]struct{})
	for _, candidate := range candidates {
		compact := strings.Trim(ranking.CompactWhitespace(candidate), " -:")
		compact = numberPrefixRe.ReplaceAllString(compact, "")
		if len(compact) < 24 {
			continue
		}
		norm := ranking.NormalizeText(compact)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		return ranking.TruncateText(compact, maxChars)
	}
	return ""
}

func isTrueish(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "sim":
		return true
	}
	return false
}
