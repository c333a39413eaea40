package ranking

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Súmula Vinculante", "sumula vinculante"},
		{"REPERCUSSÃO GERAL", "repercussao geral"},
		{"ação rescisória", "acao rescisoria"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("O réu, em 2024, foi absolvido.")
	want := []string{"reu", "2024", "foi", "absolvido"}
	if len(got) != len(want) {
		t.Fatalf("Tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCleanRetrievedText(t *testing.T) {
	raw := "<p>EMENTA: dano moral.</p><br/><li>ponto um</li>&nbsp;fim"
	got := CleanRetrievedText(raw)
	if strings.Contains(got, "<") || strings.Contains(got, ">") {
		t.Errorf("tags survived cleaning: %q", got)
	}
	if !strings.Contains(got, "EMENTA: dano moral.") {
		t.Errorf("content lost: %q", got)
	}
	if !strings.Contains(got, "- ponto um") {
		t.Errorf("list items should become dashes: %q", got)
	}
	if strings.Contains(got, "&nbsp;") {
		t.Errorf("entities should be unescaped: %q", got)
	}
}

func TestKeywordDensity(t *testing.T) {
	text := "fixou-se a tese em repercussão geral"
	if got := KeywordDensity(text, ThesisSignalTerms, 3); got <= 0 {
		t.Errorf("thesis text should have positive density, got %v", got)
	}
	if got := KeywordDensity("texto neutro qualquer", ThesisSignalTerms, 3); got != 0 {
		t.Errorf("neutral text should have zero density, got %v", got)
	}
	if got := KeywordDensity(text, ThesisSignalTerms, 1); got > 1 {
		t.Errorf("density must saturate at 1, got %v", got)
	}
}

func TestLexicalOverlap(t *testing.T) {
	full := LexicalOverlap("dano moral estético", "indenização por dano moral e estético")
	if full < 0.99 {
		t.Errorf("all content tokens present, want ~1, got %v", full)
	}

	none := LexicalOverlap("usucapião extraordinária", "contrato de locação comercial")
	if none != 0 {
		t.Errorf("disjoint texts should overlap 0, got %v", none)
	}

	partial := LexicalOverlap("dano moral estético", "apenas dano material")
	if partial <= none || partial >= full {
		t.Errorf("partial overlap should sit between 0 and 1, got %v", partial)
	}
}

func TestLexicalOverlap_StopwordsOnlyQuery(t *testing.T) {
	// A query made purely of generic legal tokens falls back to raw tokens.
	got := LexicalOverlap("sumula stf", "sumula 473 do stf")
	if got < 0.99 {
		t.Errorf("fallback tokens should still match, got %v", got)
	}
}

func TestTruncateText(t *testing.T) {
	if got := TruncateText("curto", 100); got != "curto" {
		t.Errorf("short text should pass through, got %q", got)
	}
	long := strings.Repeat("a", 50)
	got := TruncateText(long, 10)
	if len(got) != 10 {
		t.Errorf("truncated length = %d, want 10", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncation should end in ellipsis, got %q", got)
	}
}

func TestTruncateText_RuneBoundary(t *testing.T) {
	accented := strings.Repeat("ç", 60)
	got := TruncateText(accented, 100)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got)
	}
	if len(got) > 100 {
		t.Errorf("truncated length = %d, want at most 100", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncation should end in ellipsis, got %q", got)
	}
}

func TestCutAtRune(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxBytes int
		want     string
	}{
		{"short text passes through", "ação", 10, "ação"},
		{"cut mid-rune walks back", "ação", 2, "a"},
		{"cut on boundary", "ação", 3, "aç"},
		{"ascii exact", "abc", 2, "ab"},
		{"zero budget", "abc", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CutAtRune(tt.text, tt.maxBytes)
			if got != tt.want {
				t.Errorf("CutAtRune(%q, %d) = %q, want %q", tt.text, tt.maxBytes, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("CutAtRune produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestDedupeKey(t *testing.T) {
	a := &Document{Court: "STF", Type: "acordao", Process: "RE 123456"}
	b := &Document{Court: "stf", Type: "ACORDAO", Process: "re 123456"}
	if a.DedupeKey() != b.DedupeKey() {
		t.Error("same process in different casing should collapse")
	}

	c := &Document{DocID: "abc"}
	d := &Document{DocID: "def"}
	if c.DedupeKey() == d.DedupeKey() {
		t.Error("distinct doc IDs must not collapse")
	}
}
