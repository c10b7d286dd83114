package model

// Phase is the user-facing stage of a batch, shown in a fixed display order.
type Phase string

const (
	PhaseUploading          Phase = "uploading"
	PhaseParsing            Phase = "parsing"
	PhaseDocumentAnalysis   Phase = "document_analysis"
	PhaseQuestionExtraction Phase = "question_extraction"
	PhaseKnowledgeRetrieval Phase = "knowledge_retrieval"
	PhaseAnswerGeneration   Phase = "answer_generation"
	PhaseAnswerValidation   Phase = "answer_validation"
	PhaseComplianceCheck    Phase = "compliance_check"
	PhaseClarification      Phase = "clarification"
	PhaseQualityReview      Phase = "quality_review"
	PhaseBuildingSections   Phase = "building_sections"
	PhaseComplete           Phase = "complete"
	PhaseError              Phase = "error"
)

var phaseOrder = []Phase{
	PhaseUploading,
	PhaseParsing,
	PhaseDocumentAnalysis,
	PhaseQuestionExtraction,
	PhaseKnowledgeRetrieval,
	PhaseAnswerGeneration,
	PhaseAnswerValidation,
	PhaseComplianceCheck,
	PhaseClarification,
	PhaseQualityReview,
	PhaseBuildingSections,
	PhaseComplete,
	PhaseError,
}

var phaseLabels = map[Phase]string{
	PhaseUploading:          "Uploading",
	PhaseParsing:            "Parsing",
	PhaseDocumentAnalysis:   "Document Analysis",
	PhaseQuestionExtraction: "Question Extraction",
	PhaseKnowledgeRetrieval: "Knowledge Retrieval",
	PhaseAnswerGeneration:   "Answer Generation",
	PhaseAnswerValidation:   "Answer Validation",
	PhaseComplianceCheck:    "Compliance Check",
	PhaseClarification:      "Clarification",
	PhaseQualityReview:      "Quality Review",
	PhaseBuildingSections:   "Building Sections",
	PhaseComplete:           "Complete",
	PhaseError:              "Error",
}

// Phases returns all phases in display order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Index returns the display position of p, or -1 for an unknown phase.
func (p Phase) Index() int {
	for i, v := range phaseOrder {
		if v == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is one of the defined phases.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Label returns the human-readable name of the phase.
func (p Phase) Label() string {
	if l, ok := phaseLabels[p]; ok {
		return l
	}
	return string(p)
}

// Terminal reports whether p ends a batch.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}
