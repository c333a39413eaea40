package ranking

import (
	"regexp"
	"strings"
)

// Level is the ordinal authority tier of a precedent, from binding
// (A) to editorial material (E).
type Level string

const (
	LevelA Level = "A"
	LevelB Level = "B"
	LevelC Level = "C"
	LevelD Level = "D"
	LevelE Level = "E"
)

// Rank returns the ordinal position of the level, lower is stronger.
func (l Level) Rank() int {
	switch l {
	case LevelA:
		return 0
	case LevelB:
		return 1
	case LevelC:
		return 2
	case LevelD:
		return 3
	case LevelE:
		return 4
	}
	return 3
}

// Label returns the human-readable description of the level.
func (l Level) Label() string {
	switch l {
	case LevelA:
		return "Vinculante forte"
	case LevelB:
		return "Precedente qualificado (tese/tema)"
	case LevelC:
		return "Observancia qualificada"
	case LevelE:
		return "Editorial/consulta"
	default:
		return "Nao vinculante (orientativo)"
	}
}

// Classification is the inferred normative force of a document.
type Classification struct {
	Score  float64
	Level  Level
	Reason string
}

var (
	concentratedControlRe = regexp.MustCompile(`\b(adi|adc|adpf)\b`)
	qualifiedIncidentRe   = regexp.MustCompile(`\b(irdr|iac)\b`)
)

var typeLabels = map[string]string{
	"acordao":             "Acórdão",
	"acordao_sv":          "Acórdão (SV)",
	"sumula":              "Súmula",
	"sumula_stj":          "Súmula STJ",
	"sumula_vinculante":   "Súmula Vinculante",
	"informativo":         "Informativo",
	"monocratica":         "Decisão Monocrática",
	"monocratica_sv":      "Decisão Monocrática (SV)",
	"tema_repetitivo_stj": "Tema Repetitivo STJ",
	"acervo_usuario":      "Documento do Meu Acervo",
}

// TypeLabel maps a raw document type to its display label.
func TypeLabel(tipo string) string {
	if label, ok := typeLabels[strings.ToLower(strings.TrimSpace(tipo))]; ok {
		return label
	}
	t := strings.TrimSpace(tipo)
	if t == "" {
		return "Documento"
	}
	return t
}

// Classify infers the authority tier of a document from its type,
// court and text markers. The rules are ordered from strongest to
// weakest claim.
func Classify(d *Document) Classification {
	tipo := strings.ToLower(strings.TrimSpace(d.Type))
	tribunal := strings.ToUpper(strings.TrimSpace(d.Court))
	orgao := NormalizeText(d.Organ)

	busca := CleanRetrievedText(d.SearchText)
	integral := CutAtRune(CleanRetrievedText(d.FullText), 3000)
	corpus := NormalizeText(d.Process) + "\n" + NormalizeText(busca+"\n"+integral)

	isAcordao := tipo == "acordao" || tipo == "acordao_sv"

	if tipo == "sumula_vinculante" {
		return Classification{1.00, LevelA, "Sumula vinculante do STF."}
	}

	if tribunal == "STF" && isAcordao && concentratedControlRe.MatchString(corpus) {
		return Classification{0.97, LevelA, "Controle concentrado no STF."}
	}

	if tipo == "tema_repetitivo_stj" {
		return Classification{0.92, LevelB, "Tema repetitivo do STJ."}
	}

	if tipo == "monocratica" || tipo == "monocratica_sv" {
		if strings.Contains(corpus, "repercussao geral") || strings.Contains(corpus, "tema ") {
			return Classification{0.56, LevelD, "Decisao monocratica que aplica tema; nao fixa tese obrigatoria."}
		}
		return Classification{0.52, LevelD, "Decisao monocratica, util como indicio."}
	}

	if qualifiedIncidentRe.MatchString(corpus) {
		return Classification{0.90, LevelB, "Precedente qualificado (IRDR/IAC)."}
	}

	if tribunal == "STF" && isAcordao && (isTrueish(d.MetadataExtra["is_repercussao_geral"]) || strings.Contains(corpus, "repercussao geral")) {
		return Classification{0.89, LevelB, "Acordao com tema de repercussao geral do STF."}
	}

	if tipo == "sumula" || tipo == "sumula_stj" {
		return Classification{0.78, LevelC, "Sumula de observancia qualificada."}
	}

	if tipo == "informativo" || strings.Contains(corpus, "jurisprudencia em teses") {
		return Classification{0.18, LevelE, "Informativo/compilacao editorial nao vinculante."}
	}

	if isAcordao {
		if strings.Contains(orgao, "corte especial") || strings.Contains(orgao, "plenario") || strings.Contains(orgao, "tribunal pleno") {
			return Classification{0.68, LevelD, "Acordao colegiado de referencia nao vinculante."}
		}
		return Classification{0.64, LevelD, "Acordao colegiado nao vinculante."}
	}

	return Classification{0.45, LevelD, "Forca nao vinculante padrao."}
}

func isTrueish(value string) bool {
	switch NormalizeText(strings.TrimSpace(value)) {
	case "1", "true", "yes", "sim":
		return true
	}
	return false
}
