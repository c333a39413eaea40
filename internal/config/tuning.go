package config

import (
	"strconv"
	"strings"
)

// Tuning holds the ranking, context and generation knobs. Every field
// can be overridden per request; overrides are clamped to the same
// bounds as the environment values.
type Tuning struct {
	// Retrieval
	TopKHybrid int `env:"TOPK_HYBRID" envDefault:"80" json:"topk_hybrid"`
	TopKRerank int `env:"TOPK_RERANK" envDefault:"11" json:"topk_rerank"`
	HybridRRFK int `env:"HYBRID_RRF_K" envDefault:"60" json:"hybrid_rrf_k"`

	// Ranking weights
	SemanticWeight                    float64 `env:"SEMANTIC_WEIGHT" envDefault:"0.45" json:"semantic_weight"`
	LexicalWeight                     float64 `env:"LEXICAL_WEIGHT" envDefault:"0.20" json:"lexical_weight"`
	RecencyWeight                     float64 `env:"RECENCY_WEIGHT" envDefault:"0.35" json:"recency_weight"`
	RRFWeight                         float64 `env:"RRF_WEIGHT" envDefault:"0.08" json:"rrf_weight"`
	ThesisBonusWeight                 float64 `env:"THESIS_BONUS_WEIGHT" envDefault:"0.16" json:"thesis_bonus_weight"`
	ProceduralPenaltyWeight           float64 `env:"PROCEDURAL_PENALTY_WEIGHT" envDefault:"0.14" json:"procedural_penalty_weight"`
	AuthorityBonusWeight              float64 `env:"AUTHORITY_BONUS_WEIGHT" envDefault:"0.22" json:"authority_bonus_weight"`
	AuthorityIntentMultiplier         float64 `env:"AUTHORITY_INTENT_MULTIPLIER" envDefault:"1.20" json:"authority_intent_multiplier"`
	ProceduralIntentPenaltyMultiplier float64 `env:"PROCEDURAL_INTENT_PENALTY_MULTIPLIER" envDefault:"0.30" json:"procedural_intent_penalty_multiplier"`
	UserSourcePriorityBoost           float64 `env:"USER_SOURCE_PRIORITY_BOOST" envDefault:"0.08" json:"user_source_priority_boost"`

	// Recency behavior
	RecencyHalfLifeYears      float64 `env:"RECENCY_HALFLIFE_YEARS" envDefault:"7.0" json:"recency_half_life_years"`
	RecencyIntentMultiplier   float64 `env:"RECENCY_INTENT_MULTIPLIER" envDefault:"1.35" json:"recency_intent_multiplier"`
	RecencyDominantMultiplier float64 `env:"RECENCY_DOMINANT_MULTIPLIER" envDefault:"0.45" json:"recency_dominant_multiplier"`
	RecencyMinSemanticGate    float64 `env:"RECENCY_MIN_SEMANTIC_GATE" envDefault:"0.60" json:"recency_min_semantic_gate"`
	RecencyMaxContribution    float64 `env:"RECENCY_MAX_CONTRIBUTION" envDefault:"0.14" json:"recency_max_contribution"`
	RecencyUnknownScore       float64 `env:"RECENCY_UNKNOWN_SCORE" envDefault:"0.05" json:"recency_unknown_score"`

	// Authority bonuses by level
	AuthorityLevelABoost     float64 `env:"AUTHORITY_A_LEVEL_BOOST" envDefault:"0.14" json:"authority_level_a_boost"`
	AuthorityLevelBBoost     float64 `env:"AUTHORITY_B_LEVEL_BOOST" envDefault:"0.08" json:"authority_level_b_boost"`
	AuthorityLevelCBoost     float64 `env:"AUTHORITY_C_LEVEL_BOOST" envDefault:"0.03" json:"authority_level_c_boost"`
	AuthorityLevelDBoost     float64 `env:"AUTHORITY_D_LEVEL_BOOST" envDefault:"-0.05" json:"authority_level_d_boost"`
	AuthorityLevelEBoost     float64 `env:"AUTHORITY_E_LEVEL_BOOST" envDefault:"-0.12" json:"authority_level_e_boost"`
	CollegialBindingBonus    float64 `env:"COLLEGIAL_BINDING_BONUS" envDefault:"0.06" json:"collegial_binding_bonus"`
	MonocraticBindingPenalty float64 `env:"MONOCRATIC_BINDING_PENALTY" envDefault:"0.12" json:"monocratic_binding_penalty"`

	// Context assembly
	ContextMaxPassagesPerDoc int `env:"CONTEXT_MAX_PASSAGES_PER_DOC" envDefault:"5" json:"context_max_passages_per_doc"`
	ContextMaxPassageChars   int `env:"CONTEXT_MAX_PASSAGE_CHARS" envDefault:"1000" json:"context_max_passage_chars"`
	ContextMaxDocChars       int `env:"CONTEXT_MAX_DOC_CHARS" envDefault:"2500" json:"context_max_doc_chars"`
	ContextMaxTotalChars     int `env:"CONTEXT_MAX_TOTAL_CHARS" envDefault:"12000" json:"context_max_total_chars"`

	// Validation strictness
	ParagraphCitationMinChars int  `env:"PARAGRAPH_CITATION_MIN_CHARS" envDefault:"120" json:"paragraph_citation_min_chars"`
	RerankDedupProcess        bool `env:"RERANK_DEDUP_PROCESS" envDefault:"true" json:"rerank_dedup_process"`

	// Generation model controls
	GenerationModel          string  `env:"GENERATION_MODEL" envDefault:"gemini-3-flash-preview" json:"generation_model"`
	GenerationFallbackModel  string  `env:"GENERATION_FALLBACK_MODEL" envDefault:"gemini-2.5-flash" json:"generation_fallback_model"`
	GeminiRerankModel        string  `env:"GEMINI_RERANK_MODEL" envDefault:"gemini-3-pro-preview" json:"gemini_rerank_model"`
	GenerationTemperature    float64 `env:"GENERATION_TEMPERATURE" envDefault:"0.1" json:"generation_temperature"`
	GenerationMaxOutputToken int     `env:"GENERATION_MAX_OUTPUT_TOKENS" envDefault:"3600" json:"generation_max_output_tokens"`
	GenerationThinkingBudget int     `env:"GENERATION_THINKING_BUDGET" envDefault:"128" json:"generation_thinking_budget"`
}

type bounds struct{ low, high float64 }

var tuningBounds = map[string]bounds{
	"topk_hybrid":                          {10, 400},
	"topk_rerank":                          {2, 80},
	"hybrid_rrf_k":                         {10, 400},
	"semantic_weight":                      {0, 2},
	"lexical_weight":                       {0, 2},
	"recency_weight":                       {0, 2},
	"rrf_weight":                           {0, 1},
	"thesis_bonus_weight":                  {0, 1},
	"procedural_penalty_weight":            {0, 1},
	"authority_bonus_weight":               {0, 1.5},
	"authority_intent_multiplier":          {0, 3},
	"procedural_intent_penalty_multiplier": {0, 2},
	"user_source_priority_boost":           {0, 0.8},
	"recency_half_life_years":              {0.5, 30},
	"recency_intent_multiplier":            {0, 3},
	"recency_dominant_multiplier":          {0, 2},
	"recency_min_semantic_gate":            {0, 1},
	"recency_max_contribution":             {0, 1},
	"recency_unknown_score":                {0, 1},
	"authority_level_a_boost":              {-0.5, 0.8},
	"authority_level_b_boost":              {-0.5, 0.8},
	"authority_level_c_boost":              {-0.5, 0.8},
	"authority_level_d_boost":              {-0.5, 0.8},
	"authority_level_e_boost":              {-0.5, 0.8},
	"collegial_binding_bonus":              {-0.5, 0.8},
	"monocratic_binding_penalty":           {-0.5, 0.8},
	"context_max_passages_per_doc":         {1, 8},
	"context_max_passage_chars":            {200, 2500},
	"context_max_doc_chars":                {600, 6000},
	"context_max_total_chars":              {2000, 60000},
	"paragraph_citation_min_chars":         {40, 500},
	"generation_temperature":               {0, 1},
	"generation_max_output_tokens":         {300, 12000},
	"generation_thinking_budget":           {0, 8192},
}

// Bounds returns the [low, high] clamp range per tuning key, for
// clients that render override controls.
func Bounds() map[string][2]float64 {
	out := make(map[string][2]float64, len(tuningBounds))
	for key, b := range tuningBounds {
		out[key] = [2]float64{b.low, b.high}
	}
	return out
}

func clip(key string, value float64) float64 {
	b, ok := tuningBounds[key]
	if !ok {
		return value
	}
	if value < b.low {
		return b.low
	}
	if value > b.high {
		return b.high
	}
	return value
}

func clipInt(key string, value int) int {
	return int(clip(key, float64(value)))
}

// Clamped returns a copy with every numeric field forced into its
// bounds and the rerank cut never above the hybrid cut.
func (t Tuning) Clamped() Tuning {
	t.TopKHybrid = clipInt("topk_hybrid", t.TopKHybrid)
	t.TopKRerank = clipInt("topk_rerank", t.TopKRerank)
	t.HybridRRFK = clipInt("hybrid_rrf_k", t.HybridRRFK)
	t.SemanticWeight = clip("semantic_weight", t.SemanticWeight)
	t.LexicalWeight = clip("lexical_weight", t.LexicalWeight)
	t.RecencyWeight = clip("recency_weight", t.RecencyWeight)
	t.RRFWeight = clip("rrf_weight", t.RRFWeight)
	t.ThesisBonusWeight = clip("thesis_bonus_weight", t.ThesisBonusWeight)
	t.ProceduralPenaltyWeight = clip("procedural_penalty_weight", t.ProceduralPenaltyWeight)
	t.AuthorityBonusWeight = clip("authority_bonus_weight", t.AuthorityBonusWeight)
	t.AuthorityIntentMultiplier = clip("authority_intent_multiplier", t.AuthorityIntentMultiplier)
	t.ProceduralIntentPenaltyMultiplier = clip("procedural_intent_penalty_multiplier", t.ProceduralIntentPenaltyMultiplier)
	t.UserSourcePriorityBoost = clip("user_source_priority_boost", t.UserSourcePriorityBoost)
	t.RecencyHalfLifeYears = clip("recency_half_life_years", t.RecencyHalfLifeYears)
	t.RecencyIntentMultiplier = clip("recency_intent_multiplier", t.RecencyIntentMultiplier)
	t.RecencyDominantMultiplier = clip("recency_dominant_multiplier", t.RecencyDominantMultiplier)
	t.RecencyMinSemanticGate = clip("recency_min_semantic_gate", t.RecencyMinSemanticGate)
	t.RecencyMaxContribution = clip("recency_max_contribution", t.RecencyMaxContribution)
	t.RecencyUnknownScore = clip("recency_unknown_score", t.RecencyUnknownScore)
	t.AuthorityLevelABoost = clip("authority_level_a_boost", t.AuthorityLevelABoost)
	t.AuthorityLevelBBoost = clip("authority_level_b_boost", t.AuthorityLevelBBoost)
	t.AuthorityLevelCBoost = clip("authority_level_c_boost", t.AuthorityLevelCBoost)
	t.AuthorityLevelDBoost = clip("authority_level_d_boost", t.AuthorityLevelDBoost)
	t.AuthorityLevelEBoost = clip("authority_level_e_boost", t.AuthorityLevelEBoost)
	t.CollegialBindingBonus = clip("collegial_binding_bonus", t.CollegialBindingBonus)
	t.MonocraticBindingPenalty = clip("monocratic_binding_penalty", t.MonocraticBindingPenalty)
	t.ContextMaxPassagesPerDoc = clipInt("context_max_passages_per_doc", t.ContextMaxPassagesPerDoc)
	t.ContextMaxPassageChars = clipInt("context_max_passage_chars", t.ContextMaxPassageChars)
	t.ContextMaxDocChars = clipInt("context_max_doc_chars", t.ContextMaxDocChars)
	t.ContextMaxTotalChars = clipInt("context_max_total_chars", t.ContextMaxTotalChars)
	t.ParagraphCitationMinChars = clipInt("paragraph_citation_min_chars", t.ParagraphCitationMinChars)
	t.GenerationTemperature = clip("generation_temperature", t.GenerationTemperature)
	t.GenerationMaxOutputToken = clipInt("generation_max_output_tokens", t.GenerationMaxOutputToken)
	t.GenerationThinkingBudget = clipInt("generation_thinking_budget", t.GenerationThinkingBudget)

	if t.TopKRerank > t.TopKHybrid {
		t.TopKRerank = t.TopKHybrid
	}
	return t
}

// Resolve applies request overrides on top of the defaults. Unknown
// keys and unparseable values are ignored; the result is clamped.
func (t Tuning) Resolve(overrides map[string]any) Tuning {
	out := t
	for key, raw := range overrides {
		switch key {
		case "topk_hybrid":
			setInt(&out.TopKHybrid, raw)
		case "topk_rerank":
			setInt(&out.TopKRerank, raw)
		case "hybrid_rrf_k":
			setInt(&out.HybridRRFK, raw)
		case "semantic_weight":
			setFloat(&out.SemanticWeight, raw)
		case "lexical_weight":
			setFloat(&out.LexicalWeight, raw)
		case "recency_weight":
			setFloat(&out.RecencyWeight, raw)
		case "rrf_weight":
			setFloat(&out.RRFWeight, raw)
		case "thesis_bonus_weight":
			setFloat(&out.ThesisBonusWeight, raw)
		case "procedural_penalty_weight":
			setFloat(&out.ProceduralPenaltyWeight, raw)
		case "authority_bonus_weight":
			setFloat(&out.AuthorityBonusWeight, raw)
		case "authority_intent_multiplier":
			setFloat(&out.AuthorityIntentMultiplier, raw)
		case "procedural_intent_penalty_multiplier":
			setFloat(&out.ProceduralIntentPenaltyMultiplier, raw)
		case "user_source_priority_boost":
			setFloat(&out.UserSourcePriorityBoost, raw)
		case "recency_half_life_years":
			setFloat(&out.RecencyHalfLifeYears, raw)
		case "recency_intent_multiplier":
			setFloat(&out.RecencyIntentMultiplier, raw)
		case "recency_dominant_multiplier":
			setFloat(&out.RecencyDominantMultiplier, raw)
		case "recency_min_semantic_gate":
			setFloat(&out.RecencyMinSemanticGate, raw)
		case "recency_max_contribution":
			setFloat(&out.RecencyMaxContribution, raw)
		case "recency_unknown_score":
			setFloat(&out.RecencyUnknownScore, raw)
		case "authority_level_a_boost":
			setFloat(&out.AuthorityLevelABoost, raw)
		case "authority_level_b_boost":
			setFloat(&out.AuthorityLevelBBoost, raw)
		case "authority_level_c_boost":
			setFloat(&out.AuthorityLevelCBoost, raw)
		case "authority_level_d_boost":
			setFloat(&out.AuthorityLevelDBoost, raw)
		case "authority_level_e_boost":
			setFloat(&out.AuthorityLevelEBoost, raw)
		case "collegial_binding_bonus":
			setFloat(&out.CollegialBindingBonus, raw)
		case "monocratic_binding_penalty":
			setFloat(&out.MonocraticBindingPenalty, raw)
		case "context_max_passages_per_doc":
			setInt(&out.ContextMaxPassagesPerDoc, raw)
		case "context_max_passage_chars":
			setInt(&out.ContextMaxPassageChars, raw)
		case "context_max_doc_chars":
			setInt(&out.ContextMaxDocChars, raw)
		case "context_max_total_chars":
			setInt(&out.ContextMaxTotalChars, raw)
		case "paragraph_citation_min_chars":
			setInt(&out.ParagraphCitationMinChars, raw)
		case "rerank_dedup_process":
			setBool(&out.RerankDedupProcess, raw)
		case "generation_model":
			setString(&out.GenerationModel, raw)
		case "generation_fallback_model":
			setString(&out.GenerationFallbackModel, raw)
		case "gemini_rerank_model":
			setString(&out.GeminiRerankModel, raw)
		case "generation_temperature":
			setFloat(&out.GenerationTemperature, raw)
		case "generation_max_output_tokens":
			setInt(&out.GenerationMaxOutputToken, raw)
		case "generation_thinking_budget":
			setInt(&out.GenerationThinkingBudget, raw)
		}
	}
	return out.Clamped()
}

func setFloat(dst *float64, raw any) {
	if v, ok := asFloat(raw); ok {
		*dst = v
	}
}

func setInt(dst *int, raw any) {
	if v, ok := asFloat(raw); ok {
		*dst = int(v)
	}
}

func setBool(dst *bool, raw any) {
	switch v := raw.(type) {
	case bool:
		*dst = v
	case float64:
		*dst = v != 0
	case int:
		*dst = v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "sim", "on":
			*dst = true
		case "0", "false", "no", "nao", "off":
			*dst = false
		}
	}
}

func setString(dst *string, raw any) {
	if v, ok := raw.(string); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			*dst = trimmed
		}
	}
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
