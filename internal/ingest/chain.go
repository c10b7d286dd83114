package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/rfp-ingest/pkg/proposal"
)

// QAPopulator creates and injects Q&A content for a project.
type QAPopulator interface {
	PopulateQA(ctx context.Context, projectID string, opts proposal.PopulateQAOptions) error
}

// Chainer runs the best-effort follow-up work after a file's sections are
// built.
type Chainer struct {
	client  QAPopulator
	opts    proposal.PopulateQAOptions
	timeout time.Duration
}

// NewChainer creates a Chainer.
func NewChainer(client QAPopulator, opts proposal.PopulateQAOptions, timeout time.Duration) *Chainer {
	return &Chainer{client: client, opts: opts, timeout: timeout}
}

// PopulateQA asks the backend to populate Q&A for the project. Failures are
// logged and returned for recording only; they never change a file outcome.
func (c *Chainer) PopulateQA(ctx context.Context, projectID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.PopulateQA(ctx, projectID, c.opts); err != nil {
		zap.L().Warn("q&a population failed",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
