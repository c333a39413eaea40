package ranking

import "testing"

func TestClassify_Tiers(t *testing.T) {
	tests := []struct {
		name      string
		doc       Document
		wantScore float64
		wantLevel Level
	}{
		{
			name:      "sumula vinculante is the strongest tier",
			doc:       Document{Type: "sumula_vinculante", Court: "STF"},
			wantScore: 1.00,
			wantLevel: LevelA,
		},
		{
			name:      "STF concentrated control",
			doc:       Document{Type: "acordao", Court: "STF", Process: "ADI 4277"},
			wantScore: 0.97,
			wantLevel: LevelA,
		},
		{
			name:      "STJ repetitive theme",
			doc:       Document{Type: "tema_repetitivo_stj", Court: "STJ"},
			wantScore: 0.92,
			wantLevel: LevelB,
		},
		{
			name:      "monocratic applying a theme stays non-binding",
			doc:       Document{Type: "monocratica", Court: "STF", SearchText: "aplica-se o tema 1234 de repercussão geral"},
			wantScore: 0.56,
			wantLevel: LevelD,
		},
		{
			name:      "plain monocratic",
			doc:       Document{Type: "monocratica", Court: "TJSP", SearchText: "decisao isolada"},
			wantScore: 0.52,
			wantLevel: LevelD,
		},
		{
			name:      "IRDR incident",
			doc:       Document{Type: "acordao", Court: "TJMG", SearchText: "tese fixada em IRDR sobre honorarios"},
			wantScore: 0.90,
			wantLevel: LevelB,
		},
		{
			name:      "STF general repercussion via metadata flag",
			doc:       Document{Type: "acordao", Court: "STF", MetadataExtra: map[string]string{"is_repercussao_geral": "true"}},
			wantScore: 0.89,
			wantLevel: LevelB,
		},
		{
			name:      "sumula of qualified observance",
			doc:       Document{Type: "sumula_stj", Court: "STJ"},
			wantScore: 0.78,
			wantLevel: LevelC,
		},
		{
			name:      "informativo is editorial",
			doc:       Document{Type: "informativo", Court: "STJ"},
			wantScore: 0.18,
			wantLevel: LevelE,
		},
		{
			name:      "plenary acordao gets the collegial bump",
			doc:       Document{Type: "acordao", Court: "TJSP", Organ: "Tribunal Pleno"},
			wantScore: 0.68,
			wantLevel: LevelD,
		},
		{
			name:      "ordinary acordao",
			doc:       Document{Type: "acordao", Court: "TJRS", Organ: "Quarta Camara Civel"},
			wantScore: 0.64,
			wantLevel: LevelD,
		},
		{
			name:      "unknown type gets the default tier",
			doc:       Document{Type: "parecer"},
			wantScore: 0.45,
			wantLevel: LevelD,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(&tt.doc)
			if got.Score != tt.wantScore {
				t.Errorf("score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.Level != tt.wantLevel {
				t.Errorf("level = %v, want %v", got.Level, tt.wantLevel)
			}
			if got.Reason == "" {
				t.Error("expected a non-empty reason")
			}
		})
	}
}

func TestClassify_AccentInsensitiveMarkers(t *testing.T) {
	doc := Document{Type: "acordao", Court: "STF", SearchText: "Repercussão Geral reconhecida"}
	got := Classify(&doc)
	if got.Level != LevelB {
		t.Errorf("expected level B for accented repercussao geral marker, got %v", got.Level)
	}
}

func TestLevelRankOrdering(t *testing.T) {
	levels := []Level{LevelA, LevelB, LevelC, LevelD, LevelE}
	for i := 1; i < len(levels); i++ {
		if levels[i-1].Rank() >= levels[i].Rank() {
			t.Errorf("rank of %v should be below %v", levels[i-1], levels[i])
		}
	}
}

func TestTypeLabel(t *testing.T) {
	if got := TypeLabel("sumula_vinculante"); got != "Súmula Vinculante" {
		t.Errorf("TypeLabel(sumula_vinculante) = %q", got)
	}
	if got := TypeLabel(" ACORDAO "); got != "Acórdão" {
		t.Errorf("TypeLabel should be case and space insensitive, got %q", got)
	}
	if got := TypeLabel(""); got != "Documento" {
		t.Errorf("TypeLabel(empty) = %q", got)
	}
	if got := TypeLabel("despacho"); got != "despacho" {
		t.Errorf("unknown types pass through, got %q", got)
	}
}
