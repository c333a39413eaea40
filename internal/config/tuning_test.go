package config

import "testing"

func defaults() Tuning {
	return Tuning{
		TopKHybrid:               80,
		TopKRerank:               11,
		HybridRRFK:               60,
		SemanticWeight:           0.45,
		LexicalWeight:            0.20,
		RecencyWeight:            0.35,
		RRFWeight:                0.08,
		RecencyHalfLifeYears:     7,
		ContextMaxPassagesPerDoc:  5,
		ContextMaxPassageChars:    1000,
		ContextMaxDocChars:        2500,
		ContextMaxTotalChars:      12000,
		ParagraphCitationMinChars: 120,
		GenerationTemperature:     0.1,
		GenerationMaxOutputToken:  3600,
	}
}

func TestClamped_Bounds(t *testing.T) {
	tuning := defaults()
	tuning.TopKHybrid = 5000
	tuning.TopKRerank = 1
	tuning.SemanticWeight = -3
	tuning.RecencyHalfLifeYears = 0.01
	tuning.GenerationMaxOutputToken = 10
	tuning.ContextMaxTotalChars = 100

	got := tuning.Clamped()
	if got.TopKHybrid != 400 {
		t.Errorf("TopKHybrid = %d, want 400", got.TopKHybrid)
	}
	if got.TopKRerank != 2 {
		t.Errorf("TopKRerank = %d, want 2", got.TopKRerank)
	}
	if got.SemanticWeight != 0 {
		t.Errorf("SemanticWeight = %v, want 0", got.SemanticWeight)
	}
	if got.RecencyHalfLifeYears != 0.5 {
		t.Errorf("RecencyHalfLifeYears = %v, want 0.5", got.RecencyHalfLifeYears)
	}
	if got.GenerationMaxOutputToken != 300 {
		t.Errorf("GenerationMaxOutputToken = %d, want 300", got.GenerationMaxOutputToken)
	}
	if got.ContextMaxTotalChars != 2000 {
		t.Errorf("ContextMaxTotalChars = %d, want lower bound 2000", got.ContextMaxTotalChars)
	}
}

func TestClamped_RerankNeverExceedsHybrid(t *testing.T) {
	tuning := defaults()
	tuning.TopKHybrid = 12
	tuning.TopKRerank = 50

	got := tuning.Clamped()
	if got.TopKRerank > got.TopKHybrid {
		t.Errorf("TopKRerank %d exceeds TopKHybrid %d", got.TopKRerank, got.TopKHybrid)
	}
	if got.TopKRerank != 12 {
		t.Errorf("TopKRerank = %d, want 12", got.TopKRerank)
	}
}

func TestResolve_Overrides(t *testing.T) {
	got := defaults().Resolve(map[string]any{
		"topk_rerank":     float64(20), // JSON numbers decode as float64
		"semantic_weight": "0.9",
		"recency_weight":  0.5,
		"unknown_key":     123,
	})
	if got.TopKRerank != 20 {
		t.Errorf("TopKRerank = %d, want 20", got.TopKRerank)
	}
	if got.SemanticWeight != 0.9 {
		t.Errorf("SemanticWeight = %v, want 0.9 (string coercion)", got.SemanticWeight)
	}
	if got.RecencyWeight != 0.5 {
		t.Errorf("RecencyWeight = %v, want 0.5", got.RecencyWeight)
	}
}

func TestResolve_ClampsOverrides(t *testing.T) {
	got := defaults().Resolve(map[string]any{
		"topk_hybrid":     1,
		"topk_rerank":     999,
		"semantic_weight": 50.0,
	})
	if got.TopKHybrid != 10 {
		t.Errorf("TopKHybrid = %d, want lower bound 10", got.TopKHybrid)
	}
	if got.TopKRerank != 10 {
		t.Errorf("TopKRerank = %d, want capped at TopKHybrid", got.TopKRerank)
	}
	if got.SemanticWeight != 2 {
		t.Errorf("SemanticWeight = %v, want upper bound 2", got.SemanticWeight)
	}
}

func TestResolve_IgnoresBadValues(t *testing.T) {
	base := defaults()
	got := base.Resolve(map[string]any{
		"semantic_weight":  "not-a-number",
		"generation_model": "   ",
	})
	if got.SemanticWeight != base.SemanticWeight {
		t.Errorf("bad float should be ignored, got %v", got.SemanticWeight)
	}
	if got.GenerationModel != base.GenerationModel {
		t.Errorf("blank model override should be ignored, got %q", got.GenerationModel)
	}
}

func TestResolve_BoolCoercion(t *testing.T) {
	base := defaults()
	base.RerankDedupProcess = true

	got := base.Resolve(map[string]any{"rerank_dedup_process": "nao"})
	if got.RerankDedupProcess {
		t.Error("string 'nao' should disable dedup")
	}
	got = got.Resolve(map[string]any{"rerank_dedup_process": 1})
	if !got.RerankDedupProcess {
		t.Error("numeric 1 should enable dedup")
	}
}
