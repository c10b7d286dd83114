package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhases_DisplayOrder(t *testing.T) {
	phases := Phases()
	assert.Len(t, phases, 13)
	assert.Equal(t, PhaseUploading, phases[0])
	assert.Equal(t, PhaseBuildingSections, phases[10])
	assert.Equal(t, PhaseError, phases[len(phases)-1])

	for i, p := range phases {
		assert.Equal(t, i, p.Index(), "phase %s", p)
	}
}

func TestPhases_ReturnsCopy(t *testing.T) {
	phases := Phases()
	phases[0] = PhaseError
	assert.Equal(t, PhaseUploading, Phases()[0])
}

func TestPhase_Index_Unknown(t *testing.T) {
	assert.Equal(t, -1, Phase("nope").Index())
	assert.False(t, Phase("nope").Valid())
	assert.True(t, PhaseComplianceCheck.Valid())
}

func TestPhase_Label(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseDocumentAnalysis, "Document Analysis"},
		{PhaseQualityReview, "Quality Review"},
		{PhaseComplete, "Complete"},
		{Phase("custom"), "custom"},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.phase.Label())
		})
	}
}

func TestPhase_Terminal(t *testing.T) {
	assert.True(t, PhaseComplete.Terminal())
	assert.True(t, PhaseError.Terminal())
	assert.False(t, PhaseBuildingSections.Terminal())
}
