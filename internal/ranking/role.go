package ranking

// Role classifies what a document contributes to the answer.
type Role string

const (
	// RoleThesis marks documents that state the material thesis.
	RoleThesis Role = "tese_material"

	// RoleProceduralBarrier marks documents dominated by
	// admissibility obstacles.
	RoleProceduralBarrier Role = "barreira_processual"

	// RoleApplication marks ordinary case applications.
	RoleApplication Role = "aplicacao"
)

// Label returns the display name of the role.
func (r Role) Label() string {
	switch r {
	case RoleThesis:
		return "Tese material"
	case RoleProceduralBarrier:
		return "Barreira processual"
	default:
		return "Aplicação/caso"
	}
}

// InferRole derives the document role from its thesis and procedural
// keyword densities.
func InferRole(thesisSignal, proceduralSignal float64) Role {
	if thesisSignal >= 0.35 && thesisSignal >= proceduralSignal+0.08 {
		return RoleThesis
	}
	if proceduralSignal >= 0.35 && proceduralSignal > thesisSignal {
		return RoleProceduralBarrier
	}
	return RoleApplication
}
