package ingest

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rfp-ingest/internal/model"
	"github.com/sells-group/rfp-ingest/internal/resilience"
	"github.com/sells-group/rfp-ingest/pkg/proposal"
)

// Submission identifies the backend document and async job for a file.
// JobID is empty when the upload succeeded but the job could not be started.
type Submission struct {
	DocumentID string
	JobID      string
}

// SubmitterConfig configures upload and job-start calls.
type SubmitterConfig struct {
	Analysis       proposal.AnalysisOptions
	RequestTimeout time.Duration
	Retry          resilience.RetryConfig
}

// Submitter uploads a document and starts its async analysis job.
type Submitter struct {
	client  proposal.Client
	cfg     SubmitterConfig
	breaker *resilience.CircuitBreaker
	open    func(path string) (io.ReadCloser, error)
	stat    func(path string) (os.FileInfo, error)
}

// NewSubmitter creates a Submitter. A nil breaker disables the job-start
// circuit breaker.
func NewSubmitter(client proposal.Client, cfg SubmitterConfig, breaker *resilience.CircuitBreaker) *Submitter {
	return &Submitter{
		client:  client,
		cfg:     cfg,
		breaker: breaker,
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
		stat: os.Stat,
	}
}

// Submit uploads file to the project and starts async analysis.
//
// An upload failure returns an error matching ErrUpload. A job-start failure
// after a successful upload returns the Submission with DocumentID set and an
// error matching ErrSubmission, so the caller can fall back to synchronous
// analysis of the uploaded document.
func (s *Submitter) Submit(ctx context.Context, projectID string, file model.FileRef) (Submission, error) {
	docID, err := s.upload(ctx, projectID, file)
	if err != nil {
		return Submission{}, stageErr(ErrUpload, err)
	}

	jobID, err := s.start(ctx, docID)
	if err != nil {
		return Submission{DocumentID: docID}, stageErr(ErrSubmission, err)
	}
	return Submission{DocumentID: docID, JobID: jobID}, nil
}

func (s *Submitter) upload(ctx context.Context, projectID string, file model.FileRef) (string, error) {
	if _, err := s.stat(file.Path); err != nil {
		return "", eris.Wrapf(err, "stat %s", file.Path)
	}

	retry := s.cfg.Retry
	retry.OnRetry = resilience.RetryLogger("upload_document", file.Name)

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		f, err := s.open(file.Path)
		if err != nil {
			return "", eris.Wrapf(err, "open %s", file.Path)
		}
		defer f.Close()

		ctx, cancel := withTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()

		resp, err := s.client.UploadDocument(ctx, projectID, file.Name, f)
		if err != nil {
			return "", err
		}
		if resp == nil || resp.DocumentID == "" {
			return "", eris.Errorf("upload %s: empty document id", file.Name)
		}
		return resp.DocumentID, nil
	})
}

func (s *Submitter) start(ctx context.Context, documentID string) (string, error) {
	call := func(ctx context.Context) (string, error) {
		ctx, cancel := withTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()

		resp, err := s.client.StartAsyncAnalysis(ctx, documentID, s.cfg.Analysis)
		if err != nil {
			return "", err
		}
		if resp == nil || resp.JobID == "" {
			return "", eris.Errorf("start analysis %s: empty job id", documentID)
		}
		return resp.JobID, nil
	}

	if s.breaker == nil {
		return call(ctx)
	}
	return resilience.ExecuteVal(ctx, s.breaker, call)
}
