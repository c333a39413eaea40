// Package auditor checks generated answers against the citation
// contract: every [DOC. n] must reference a real context index and
// every substantive paragraph must carry at least one citation. The
// audit normalizes citation labels and reports findings; it never
// rejects an answer.
package auditor

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/carlosvictorodrigues/ratio/internal/ranking"
)

var (
	// citationRe matches any bracketed reference that names a
	// document number, in all the spellings generation produces.
	citationRe = regexp.MustCompile(`(?i)\[[^\]]*(?:DOC(?:UMENTO)?\.?)\s*\d+[^\]]*\]`)

	// docNumRe extracts the document number from a citation.
	docNumRe = regexp.MustCompile(`(?i)(?:DOC(?:UMENTO)?\.?)\s*(\d+)`)

	// labelRe matches loose citation spellings for normalization.
	labelRe = regexp.MustCompile(`(?i)\[\s*(?:DOC(?:UMENTO)?\.?)\s*(\d+)\s*\]`)

	paragraphRe = regexp.MustCompile(`\n\s*\n`)
)

// FindingKind enumerates audit findings.
type FindingKind string

const (
	// FindingUnknownReference flags a citation pointing outside the
	// context block.
	FindingUnknownReference FindingKind = "unknown_reference"

	// FindingUncitedParagraphs flags substantive paragraphs with no
	// citation.
	FindingUncitedParagraphs FindingKind = "uncited_paragraphs"

	// FindingNoCitations flags an answer with no citations at all.
	FindingNoCitations FindingKind = "no_citations"
)

// Finding is one audit observation.
type Finding struct {
	Kind    FindingKind `json:"kind"`
	Message string      `json:"message"`
	Count   int         `json:"count,omitempty"`
}

// Report is the outcome of auditing one answer.
type Report struct {
	// Answer is the audited text with citation labels normalized to
	// the canonical [DOC. n] form.
	Answer string

	// CitedIndices are the in-range document numbers the answer
	// cites, ascending.
	CitedIndices []int

	Findings []Finding
}

// Passed reports whether the audit produced no findings.
func (r Report) Passed() bool {
	return len(r.Findings) == 0
}

// Config bounds the audit strictness.
type Config struct {
	// ParagraphMinChars is the minimum citation-free paragraph length
	// that counts as substantive.
	ParagraphMinChars int
}

// Audit validates the answer against a context of docCount documents.
func Audit(answer string, docCount int, cfg Config) Report {
	normalized := NormalizeCitationLabels(answer)

	report := Report{Answer: normalized}

	cited, unknown := citedNumbers(normalized, docCount)
	report.CitedIndices = cited

	if len(cited) == 0 && len(unknown) == 0 {
		report.Findings = append(report.Findings, Finding{
			Kind:    FindingNoCitations,
			Message: "a resposta nao cita nenhum documento do contexto",
		})
	}
	if len(unknown) > 0 {
		report.Findings = append(report.Findings, Finding{
			Kind:    FindingUnknownReference,
			Message: fmt.Sprintf("citacoes fora do contexto: %v", unknown),
			Count:   len(unknown),
		})
	}

	minChars := cfg.ParagraphMinChars
	if minChars <= 0 {
		minChars = 120
	}
	if uncited := countUncitedParagraphs(normalized, minChars); uncited > 0 {
		report.Findings = append(report.Findings, Finding{
			Kind:    FindingUncitedParagraphs,
			Message: fmt.Sprintf("%d paragrafos analiticos sem citacao", uncited),
			Count:   uncited,
		})
	}

	return report
}

// NormalizeCitationLabels rewrites every citation spelling to the
// canonical [DOC. n].
func NormalizeCitationLabels(answer string) string {
	return labelRe.ReplaceAllStringFunc(answer, func(match string) string {
		m := labelRe.FindStringSubmatch(match)
		return "[DOC. " + m[1] + "]"
	})
}

// IsRefusal detects the model's no-evidence refusal phrasing.
func IsRefusal(answer string) bool {
	return strings.Contains(ranking.NormalizeText(answer), "nao encontrei")
}

func citedNumbers(answer string, docCount int) (cited, unknown []int) {
	seenCited := make(map[int]struct{})
	seenUnknown := make(map[int]struct{})
	for _, m := range docNumRe.FindAllStringSubmatch(answer, -1) {
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if num >= 1 && num <= docCount {
			if _, dup := seenCited[num]; !dup {
				seenCited[num] = struct{}{}
				cited = append(cited, num)
			}
		} else if _, dup := seenUnknown[num]; !dup {
			seenUnknown[num] = struct{}{}
			unknown = append(unknown, num)
		}
	}
	sort.Ints(cited)
	sort.Ints(unknown)
	return cited, unknown
}

// countUncitedParagraphs counts substantive paragraphs lacking any
// citation. Headings (ending with a colon) and blockquotes are
// exempt, as is any paragraph whose citation-free body is below the
// threshold.
func countUncitedParagraphs(answer string, minChars int) int {
	uncited := 0
	for _, p := range paragraphRe.Split(answer, -1) {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasSuffix(p, ":") || strings.HasPrefix(p, ">") {
			continue
		}
		body := strings.TrimSpace(docNumRe.ReplaceAllString(p, ""))
		if len(body) < minChars {
			continue
		}
		if !citationRe.MatchString(p) {
			uncited++
		}
	}
	return uncited
}
