package ingest

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/rfp-ingest/internal/model"
)

// DefaultStepPhase is returned for step labels the table does not know.
const DefaultStepPhase = model.PhaseDocumentAnalysis

// stepSynonyms lists the backend step labels known for each analysis phase.
// Labels are stored normalized (folded, underscores).
var stepSynonyms = map[model.Phase][]string{
	model.PhaseDocumentAnalysis:   {"document_analysis", "analyzing", "analysis", "document_analyzer"},
	model.PhaseQuestionExtraction: {"question_extraction", "extracting", "extraction", "question_extractor"},
	model.PhaseKnowledgeRetrieval: {"knowledge_retrieval", "retrieving", "retrieval", "knowledge_base"},
	model.PhaseAnswerGeneration:   {"answer_generation", "generating", "generation", "answer_generator"},
	model.PhaseAnswerValidation:   {"answer_validation", "validating", "validation", "answer_validator"},
	model.PhaseComplianceCheck:    {"compliance_check", "compliance", "checking_compliance", "compliance_checker"},
	model.PhaseClarification:      {"clarification", "clarifying", "clarification_questions"},
	model.PhaseQualityReview:      {"quality_review", "reviewing", "review", "quality_reviewer"},
}

var stepIndex = buildStepIndex(stepSynonyms)

func buildStepIndex(table map[model.Phase][]string) map[string]model.Phase {
	idx := make(map[string]model.Phase)
	for phase, labels := range table {
		for _, l := range labels {
			idx[normalizeStep(l)] = phase
		}
	}
	return idx
}

var separatorReplacer = strings.NewReplacer("-", "_", " ", "_")

func normalizeStep(step string) string {
	s := cases.Fold().String(strings.TrimSpace(step))
	return separatorReplacer.Replace(s)
}

// MapStepToPhase maps a free-form backend step label to a display phase.
// Matching ignores case and treats "-" and spaces as "_". Unknown labels map
// to DefaultStepPhase.
func MapStepToPhase(step string) model.Phase {
	if p, ok := stepIndex[normalizeStep(step)]; ok {
		return p
	}
	return DefaultStepPhase
}

// StepSynonyms returns the known labels for phase.
func StepSynonyms(phase model.Phase) []string {
	labels := stepSynonyms[phase]
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}
