package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/rfp-ingest/internal/model"
)

func TestMapStepToPhase_AllSynonymsAnyCasing(t *testing.T) {
	casings := map[string]func(string) string{
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"title": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"hyphen": func(s string) string { return strings.ReplaceAll(s, "_", "-") },
		"spaced": func(s string) string { return " " + strings.ReplaceAll(strings.ToUpper(s), "_", " ") + " " },
	}

	for phase, labels := range stepSynonyms {
		for _, label := range labels {
			for name, transform := range casings {
				in := transform(label)
				assert.Equal(t, phase, MapStepToPhase(in), "%s label %q", name, in)
			}
		}
	}
}

func TestMapStepToPhase_TableCoversAnalysisPhases(t *testing.T) {
	want := []model.Phase{
		model.PhaseDocumentAnalysis,
		model.PhaseQuestionExtraction,
		model.PhaseKnowledgeRetrieval,
		model.PhaseAnswerGeneration,
		model.PhaseAnswerValidation,
		model.PhaseComplianceCheck,
		model.PhaseClarification,
		model.PhaseQualityReview,
	}
	assert.Len(t, stepSynonyms, len(want))
	for _, p := range want {
		assert.NotEmpty(t, StepSynonyms(p), "phase %s", p)
	}
}

func TestMapStepToPhase_Examples(t *testing.T) {
	tests := []struct {
		step string
		want model.Phase
	}{
		{"Extracting", model.PhaseQuestionExtraction},
		{"KNOWLEDGE_BASE", model.PhaseKnowledgeRetrieval},
		{"answer-generator", model.PhaseAnswerGeneration},
		{"Checking Compliance", model.PhaseComplianceCheck},
		{"clarification_questions", model.PhaseClarification},
		{"Quality Review", model.PhaseQualityReview},
		{"VALIDATING", model.PhaseAnswerValidation},
	}
	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			assert.Equal(t, tt.want, MapStepToPhase(tt.step))
		})
	}
}

func TestMapStepToPhase_UnknownDefaultsToDocumentAnalysis(t *testing.T) {
	for _, step := range []string{"", "   ", "warming_up", "uploading", "complete", "building_sections"} {
		assert.Equal(t, model.PhaseDocumentAnalysis, MapStepToPhase(step), "step %q", step)
	}
}

func TestStepSynonyms_ReturnsCopy(t *testing.T) {
	labels := StepSynonyms(model.PhaseQualityReview)
	labels[0] = "mutated"
	assert.Equal(t, "quality_review", StepSynonyms(model.PhaseQualityReview)[0])
	assert.Empty(t, StepSynonyms(model.PhaseComplete))
}
