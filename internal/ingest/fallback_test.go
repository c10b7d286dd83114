package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rfp-ingest/internal/model"
	"github.com/sells-group/rfp-ingest/pkg/proposal"
	"github.com/sells-group/rfp-ingest/pkg/proposal/mocks"
)

func TestFallback_Run(t *testing.T) {
	client := mocks.NewMockClient(t)
	want := &proposal.AnalysisResult{QuestionsExtracted: 12}
	client.On("AnalyzeDocument", mock.Anything, "doc-1").Return(want, nil).Once()

	var phases []model.Phase
	var percents []int
	got, err := NewFallback(client, 0).Run(t.Context(), "doc-1", model.TriggerTimeout, func(p model.Phase, pct int) {
		phases = append(phases, p)
		percents = append(percents, pct)
	})
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, []model.Phase{model.PhaseDocumentAnalysis}, phases)
	assert.Equal(t, []int{50}, percents)
}

func TestFallback_Run_Error(t *testing.T) {
	client := mocks.NewMockClient(t)
	cause := errors.New("analysis exploded")
	client.On("AnalyzeDocument", mock.Anything, "doc-1").Return(nil, cause).Once()

	_, err := NewFallback(client, 0).Run(t.Context(), "doc-1", model.TriggerSubmitError, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFallback)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "analysis exploded")
}

func TestFallback_Run_EmptyResult(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("AnalyzeDocument", mock.Anything, "doc-1").Return(nil, nil).Once()

	_, err := NewFallback(client, 0).Run(t.Context(), "doc-1", model.TriggerTimeout, nil)
	assert.ErrorIs(t, err, ErrFallback)
}

func TestFallback_Run_AppliesTimeout(t *testing.T) {
	client := mocks.NewMockClient(t)
	var deadline time.Time
	var hasDeadline bool
	client.On("AnalyzeDocument", mock.Anything, "doc-1").
		Run(func(args mock.Arguments) {
			deadline, hasDeadline = args.Get(0).(context.Context).Deadline()
		}).
		Return(&proposal.AnalysisResult{}, nil).Once()

	start := time.Now()
	_, err := NewFallback(client, 2*time.Minute).Run(t.Context(), "doc-1", model.TriggerTimeout, nil)
	require.NoError(t, err)
	require.True(t, hasDeadline)
	assert.WithinDuration(t, start.Add(2*time.Minute), deadline, 5*time.Second)
}

func TestChainer_PopulateQA(t *testing.T) {
	opts := proposal.PopulateQAOptions{CreateQASection: true, InjectIntoSections: false}

	client := mocks.NewMockClient(t)
	client.On("PopulateQA", mock.Anything, "proj-1", opts).Return(nil).Once()
	require.NoError(t, NewChainer(client, opts, 0).PopulateQA(t.Context(), "proj-1"))

	failing := mocks.NewMockClient(t)
	failing.On("PopulateQA", mock.Anything, "proj-1", opts).Return(errors.New("qa down")).Once()
	assert.EqualError(t, NewChainer(failing, opts, 0).PopulateQA(t.Context(), "proj-1"), "qa down")
}
