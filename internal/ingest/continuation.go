package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/rfp-ingest/internal/model"
	"github.com/sells-group/rfp-ingest/pkg/proposal"
)

const buildingSectionsPercent = 90

// AnalysisOutcome is the successful result of either the async or the
// fallback path.
type AnalysisOutcome struct {
	Path    model.AnalysisPath
	Trigger model.FallbackTrigger
	Result  *proposal.AnalysisResult
}

// SectionBuilder builds proposal sections from an analyzed document.
type SectionBuilder interface {
	AutoBuildSections(ctx context.Context, documentID string, sectionIDs []string, generateContent bool) error
}

// Continuation is the shared work after analysis succeeds: build the
// selected sections, then chain Q&A population.
type Continuation struct {
	builder         SectionBuilder
	chainer         *Chainer
	generateContent bool
	timeout         time.Duration
}

// NewContinuation creates a Continuation.
func NewContinuation(builder SectionBuilder, chainer *Chainer, generateContent bool, timeout time.Duration) *Continuation {
	return &Continuation{
		builder:         builder,
		chainer:         chainer,
		generateContent: generateContent,
		timeout:         timeout,
	}
}

// run drives the file from BuildingSections to Done. It reports whether a
// section build call succeeded. An empty selection skips the build call and
// still completes the file.
func (c *Continuation) run(ctx context.Context, projectID string, m *fileMachine, outcome AnalysisOutcome, onProgress ProgressFunc) (bool, error) {
	task := m.task
	if err := m.to(model.FileStateBuildingSections); err != nil {
		return false, err
	}
	if onProgress != nil {
		onProgress(model.PhaseBuildingSections, buildingSectionsPercent)
	}

	built := false
	ids := outcome.Result.SelectedSectionIDs()
	if len(ids) > 0 {
		bctx, cancel := withTimeout(ctx, c.timeout)
		err := c.builder.AutoBuildSections(bctx, task.DocumentID, ids, c.generateContent)
		cancel()
		if err != nil {
			return false, stageErr(ErrBuildSections, err)
		}
		task.SectionsBuilt = len(ids)
		built = true
	} else {
		zap.L().Info("no sections selected, skipping section build",
			zap.String("document_id", task.DocumentID),
		)
	}

	if err := m.to(model.FileStatePopulatingQA); err != nil {
		return built, err
	}
	if c.chainer != nil {
		if err := c.chainer.PopulateQA(ctx, projectID); err != nil {
			task.QAError = err.Error()
		}
	}

	return built, m.succeed()
}
