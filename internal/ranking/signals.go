package ranking

import "strings"

// ThesisSignalTerms mark passages that state a fixed thesis rather
// than merely applying one.
var ThesisSignalTerms = []string{
	"tese",
	"tema",
	"repercussao geral",
	"repercussão geral",
	"fixa-se",
	"fixou-se",
	"fixou entendimento",
	"firmou entendimento",
	"assentou",
	"vinculante",
}

// ProceduralSignalTerms mark passages dominated by admissibility
// barriers instead of merits.
var ProceduralSignalTerms = []string{
	"sumula 279",
	"súmula 279",
	"ofensa reflexa",
	"reexame de fatos",
	"reexame do conjunto fatico",
	"inadmiss",
	"não conhecimento",
	"nao conhecimento",
	"legislação infraconstitucional",
	"legislacao infraconstitucional",
	"pressupostos recursais",
}

var proceduralIntentTerms = []string{
	"admissibilidade",
	"pressuposto recursal",
	"sumula 279",
	"súmula 279",
	"ofensa reflexa",
	"recurso extraordinario",
	"recurso extraordinário",
	"agravo interno",
	"agravo regimental",
}

var bindingIntentTerms = []string{
	"vinculante",
	"obrigatorio",
	"obrigatoria",
	"precedente",
	"art 927",
	"cpc 927",
	"tema repetitivo",
	"repercussao geral",
	"controle concentrado",
	"sumula vinculante",
}

var dominantIntentTerms = []string{
	"jurisprudencia dominante",
	"entendimento dominante",
	"jurisprudencia consolidada",
	"consolidado",
	"pacifico",
	"pacificada",
	"pacificado",
	"majoritario",
	"majoritaria",
	"precedente dominante",
}

var recencyIntentTerms = []string{
	"mais recente",
	"recente",
	"ultim",
	"atual",
	"novo",
	"ultima",
	"ultimas",
	"recentes",
}

// Intents capture what the query is asking for; they modulate the
// fused score weights.
type Intents struct {
	// Recency: the user asked for the latest understanding.
	Recency bool

	// Dominant: the user asked for settled case law, which dampens
	// the recency weight.
	Dominant bool

	// Procedural: the question is about admissibility itself, so the
	// procedural penalty is relaxed.
	Procedural bool

	// Binding: the question is about binding force, which amplifies
	// the authority weight.
	Binding bool
}

// DetectIntents inspects the normalized query for intent markers.
func DetectIntents(query string) Intents {
	q := NormalizeText(query)
	return Intents{
		Recency:    containsAny(q, recencyIntentTerms),
		Dominant:   containsAny(q, dominantIntentTerms),
		Procedural: containsAny(q, proceduralIntentTerms),
		Binding:    containsAny(q, bindingIntentTerms),
	}
}

func containsAny(normalized string, terms []string) bool {
	for _, term := range terms {
		t := NormalizeText(term)
		if t != "" && strings.Contains(normalized, t) {
			return true
		}
	}
	return false
}
