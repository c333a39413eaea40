package ranking

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	tokenRe      = regexp.MustCompile(`[a-z0-9]{3,}`)
	brTagRe      = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockCloseRe = regexp.MustCompile(`(?i)</(p|div|li|tr|h\d|section|article)>`)
	listItemRe   = regexp.MustCompile(`(?i)<li[^>]*>`)
	anyTagRe     = regexp.MustCompile(`(?i)<[^>]+>`)
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
	spaceRunsRe  = regexp.MustCompile(`\s+`)
)

// legalStopTokens are generic legal terms with no discriminative value
// for lexical overlap.
var legalStopTokens = map[string]struct{}{
	"art": {}, "arts": {}, "lei": {}, "leis": {}, "tema": {},
	"stf": {}, "stj": {}, "cpc": {}, "cpp": {}, "cf": {},
	"tribunal": {}, "jurisprudencia": {}, "processo": {},
	"sumula": {}, "sumulas": {}, "acordao": {}, "acordaos": {},
	"decisao": {}, "decisoes": {}, "recurso": {}, "direito": {},
}

// NormalizeText lowercases and strips combining marks so accented and
// unaccented spellings compare equal.
func NormalizeText(text string) string {
	decomposed := norm.NFKD.String(strings.ToLower(text))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Tokens extracts normalized alphanumeric tokens of three or more
// characters.
func Tokens(text string) []string {
	return tokenRe.FindAllString(NormalizeText(text), -1)
}

// CleanRetrievedText strips the HTML residue that ingestion leaves in
// stored passages.
func CleanRetrievedText(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = html.UnescapeString(text)
	text = brTagRe.ReplaceAllString(text, "\n")
	text = blockCloseRe.ReplaceAllString(text, "\n")
	text = listItemRe.ReplaceAllString(text, "- ")
	text = anyTagRe.ReplaceAllString(text, "")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// KeywordDensity counts how many of the given terms appear in text,
// saturating at saturationHits so long documents do not dominate.
func KeywordDensity(text string, terms []string, saturationHits float64) float64 {
	base := NormalizeText(text)
	if base == "" {
		return 0
	}
	if saturationHits < 1 {
		saturationHits = 1
	}
	hits := 0.0
	for _, term := range terms {
		t := NormalizeText(term)
		if t != "" && strings.Contains(base, t) {
			hits++
		}
	}
	density := hits / saturationHits
	if density > 1 {
		return 1
	}
	return density
}

// LexicalOverlap scores the share of non-stopword query tokens that
// appear in the document text.
func LexicalOverlap(query, docText string) float64 {
	queryTokens := make([]string, 0, 16)
	for _, t := range Tokens(query) {
		if _, stop := legalStopTokens[t]; !stop {
			queryTokens = append(queryTokens, t)
		}
	}
	if len(queryTokens) == 0 {
		queryTokens = Tokens(query)
	}
	if len(queryTokens) == 0 {
		return 0
	}

	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}
	docSet := make(map[string]struct{}, 64)
	for _, t := range Tokens(docText) {
		docSet[t] = struct{}{}
	}
	if len(docSet) == 0 {
		return 0
	}

	hits := 0
	for t := range querySet {
		if _, ok := docSet[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(querySet))
}

// CompactWhitespace collapses all whitespace runs to single spaces.
func CompactWhitespace(text string) string {
	return strings.TrimSpace(spaceRunsRe.ReplaceAllString(text, " "))
}

// CutAtRune clips text to at most maxBytes bytes without splitting a
// multi-byte rune.
func CutAtRune(text string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// TruncateText clips text to roughly maxChars bytes on a rune boundary,
// appending an ellipsis marker.
func TruncateText(value string, maxChars int) string {
	text := strings.TrimSpace(value)
	if len(text) <= maxChars {
		return text
	}
	if maxChars <= 3 {
		return CutAtRune(text, maxChars)
	}
	return strings.TrimRight(CutAtRune(text, maxChars-3), " ") + "..."
}
