package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rfp-ingest/internal/model"
	"github.com/sells-group/rfp-ingest/pkg/proposal"
)

// fallbackPercent is the display percent shown while the synchronous
// analysis runs.
const fallbackPercent = 50

// Analyzer runs a blocking, synchronous document analysis.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, documentID string) (*proposal.AnalysisResult, error)
}

// Fallback runs one synchronous analysis for a document whose async path
// timed out or could not be started.
type Fallback struct {
	client  Analyzer
	timeout time.Duration
}

// NewFallback creates a Fallback. A zero timeout leaves the call bounded only
// by ctx.
func NewFallback(client Analyzer, timeout time.Duration) *Fallback {
	return &Fallback{client: client, timeout: timeout}
}

// Run calls AnalyzeDocument once. There is no polling and no retry.
func (f *Fallback) Run(ctx context.Context, documentID string, trigger model.FallbackTrigger, onProgress ProgressFunc) (*proposal.AnalysisResult, error) {
	zap.L().Info("running synchronous analysis fallback",
		zap.String("document_id", documentID),
		zap.String("trigger", string(trigger)),
	)
	if onProgress != nil {
		onProgress(model.PhaseDocumentAnalysis, fallbackPercent)
	}

	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()

	res, err := f.client.AnalyzeDocument(ctx, documentID)
	if err != nil {
		return nil, stageErr(ErrFallback, err)
	}
	if res == nil {
		return nil, stageErr(ErrFallback, eris.Errorf("analyze %s: empty result", documentID))
	}
	return res, nil
}
