// Package ingest drives uploaded RFP documents through the proposal backend's
// analysis pipeline: submit, poll, fall back, build sections and populate Q&A.
package ingest

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rfp-ingest/internal/config"
	"github.com/sells-group/rfp-ingest/internal/model"
	"github.com/sells-group/rfp-ingest/internal/resilience"
	"github.com/sells-group/rfp-ingest/pkg/proposal"
)

const (
	uploadingPercent = 5
	parsingPercent   = 10
	completePercent  = 100

	projectIDPlaceholder = "{project_id}"
	startCircuitName     = "start_async_analysis"
)

// Options configures an Ingestor.
type Options struct {
	Analysis        proposal.AnalysisOptions
	GenerateContent bool
	QA              proposal.PopulateQAOptions
	RequestTimeout  time.Duration
	FallbackTimeout time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
	CompletionDelay time.Duration
	NavigatePath    string
	Retry           resilience.RetryConfig
	Circuit         resilience.CircuitBreakerConfig
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Analysis:        proposal.AnalysisOptions{Tone: "professional", Length: "medium"},
		GenerateContent: true,
		QA:              proposal.PopulateQAOptions{CreateQASection: true, InjectIntoSections: true},
		RequestTimeout:  30 * time.Second,
		FallbackTimeout: 5 * time.Minute,
		PollInterval:    defaultPollInterval,
		PollMaxAttempts: defaultPollMaxAttempts,
		CompletionDelay: 1500 * time.Millisecond,
		NavigatePath:    "/projects/" + projectIDPlaceholder + "/proposal",
		Retry:           resilience.DefaultRetryConfig(),
		Circuit:         resilience.FromCircuitConfig(startCircuitName, config.CircuitConfig{}),
	}
}

// OptionsFromConfig builds Options from loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Analysis:        proposal.AnalysisOptions{Tone: cfg.Ingest.Tone, Length: cfg.Ingest.Length},
		GenerateContent: cfg.Ingest.GenerateContent,
		QA: proposal.PopulateQAOptions{
			CreateQASection:    cfg.Ingest.CreateQASection,
			InjectIntoSections: cfg.Ingest.InjectIntoSections,
		},
		RequestTimeout:  cfg.Backend.RequestTimeout(),
		FallbackTimeout: cfg.Backend.FallbackTimeout(),
		PollInterval:    time.Duration(cfg.Poll.IntervalMs) * time.Millisecond,
		PollMaxAttempts: cfg.Poll.MaxAttempts,
		CompletionDelay: time.Duration(cfg.Ingest.CompletionDelayMs) * time.Millisecond,
		NavigatePath:    cfg.Ingest.NavigatePath,
		Retry:           resilience.FromRetryConfig(cfg.Retry),
		Circuit:         resilience.FromCircuitConfig(startCircuitName, cfg.Circuit),
	}
}

// Ingestor runs upload batches. It holds no per-batch state, so one Ingestor
// may run several batches concurrently; each Run processes its own files
// strictly in order on the calling goroutine.
type Ingestor struct {
	client       proposal.Client
	opts         Options
	submitter    *Submitter
	poller       *Poller
	fallback     *Fallback
	continuation *Continuation
	observers    Observers

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

// NewIngestor wires the pipeline components around client.
func NewIngestor(client proposal.Client, opts Options, observers ...Observer) *Ingestor {
	breaker := resilience.NewCircuitBreaker(opts.Circuit)
	chainer := NewChainer(client, opts.QA, opts.RequestTimeout)

	return &Ingestor{
		client: client,
		opts:   opts,
		submitter: NewSubmitter(client, SubmitterConfig{
			Analysis:       opts.Analysis,
			RequestTimeout: opts.RequestTimeout,
			Retry:          opts.Retry,
		}, breaker),
		poller: NewPoller(client,
			WithPollInterval(opts.PollInterval),
			WithMaxAttempts(opts.PollMaxAttempts),
			WithFetchTimeout(opts.RequestTimeout),
		),
		fallback:     NewFallback(client, opts.FallbackTimeout),
		continuation: NewContinuation(client, chainer, opts.GenerateContent, opts.RequestTimeout),
		observers:    Observers(observers),
		now:          time.Now,
		newID:        uuid.NewString,
		sleep:        sleepCtx,
	}
}

// NewBatch creates a batch for files without running it. Callers that need
// the batch ID up front (the HTTP API) use NewBatch followed by Process.
func (ing *Ingestor) NewBatch(projectID string, files []model.FileRef) *model.UploadBatch {
	now := ing.now()
	b := &model.UploadBatch{
		ID:        ing.newID(),
		ProjectID: projectID,
		Phase:     model.PhaseUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, f := range files {
		b.Files = append(b.Files, &model.FileTask{
			ID:      ing.newID(),
			BatchID: b.ID,
			Index:   i,
			Total:   len(files),
			File:    f,
		})
	}
	return b
}

// Run creates and processes a batch for files.
func (ing *Ingestor) Run(ctx context.Context, projectID string, files []model.FileRef) (*model.UploadBatch, error) {
	b := ing.NewBatch(projectID, files)
	return b, ing.Process(ctx, b)
}

// Process runs every file of b in order. A failing file never stops the
// batch. The returned error is non-nil only for a batch-level abort (invalid
// input or cancellation), in which case b ends in PhaseError and the
// remaining files are left unprocessed.
func (ing *Ingestor) Process(ctx context.Context, b *model.UploadBatch) error {
	r := &batchRun{ing: ing, batch: b, log: zap.L().With(zap.String("batch_id", b.ID))}
	ing.observers.OnStart(*b)

	if err := validateBatch(b); err != nil {
		return r.abort(err)
	}

	for _, task := range b.Files {
		if err := ctx.Err(); err != nil {
			return r.abort(err)
		}
		if err := r.processFile(ctx, task); err != nil {
			return r.abort(err)
		}
	}

	return r.complete(ctx)
}

func validateBatch(b *model.UploadBatch) error {
	var problems []string
	if strings.TrimSpace(b.ProjectID) == "" {
		problems = append(problems, "project id is required")
	}
	if len(b.Files) == 0 {
		problems = append(problems, "at least one file is required")
	}
	for _, t := range b.Files {
		if t.File.Path == "" {
			problems = append(problems, fmt.Sprintf("file %d has no path", t.Index+1))
		}
	}
	if len(problems) > 0 {
		return eris.Errorf("invalid batch: %s", strings.Join(problems, "; "))
	}
	return nil
}

// batchRun holds the mutable state of one Process call.
type batchRun struct {
	ing   *Ingestor
	batch *model.UploadBatch
	log   *zap.Logger
}

func (r *batchRun) emit(phase model.Phase, percent int, task *model.FileTask) {
	b := r.batch
	b.Phase = phase
	b.Percent = percent
	b.UpdatedAt = r.ing.now()

	p := model.Progress{
		BatchID:   b.ID,
		Phase:     phase,
		Percent:   percent,
		FileTotal: len(b.Files),
	}
	if task != nil {
		b.CurrentFileLabel = task.Label()
		task.Phase = phase
		task.Percent = percent
		p.CurrentFileLabel = b.CurrentFileLabel
		p.FileIndex = task.Index
	}
	r.ing.observers.OnProgress(p)
}

// processFile runs one file behind a failure boundary. Any error or panic
// fails only that file. The returned error is a batch-level abort.
func (r *batchRun) processFile(ctx context.Context, task *model.FileTask) (abortErr error) {
	m := newFileMachine(task, r.ing.now)
	log := r.log.With(zap.String("file", task.File.Name), zap.Int("index", task.Index))

	defer func() {
		if p := recover(); p != nil {
			log.Error("panic while processing file",
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			m.fail(eris.Errorf("panic: %v", p))
		}
		r.finishFile(task)
	}()

	err := r.runFile(ctx, m)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		m.fail(ctx.Err())
		return ctx.Err()
	}

	log.Error("file failed", zap.String("state", string(task.State)), zap.Error(err))
	m.fail(err)
	return nil
}

func (r *batchRun) finishFile(task *model.FileTask) {
	switch task.Outcome {
	case model.OutcomeSuccess:
		r.batch.Succeeded++
	case model.OutcomeFailure:
		r.batch.Failed++
	}
	r.ing.observers.OnFileDone(*task)
}

func (r *batchRun) runFile(ctx context.Context, m *fileMachine) error {
	ing := r.ing
	task := m.task
	progress := func(phase model.Phase, percent int) { r.emit(phase, percent, task) }

	progress(model.PhaseUploading, uploadingPercent)

	sub, err := ing.submitter.Submit(ctx, r.batch.ProjectID, task.File)
	task.DocumentID = sub.DocumentID
	task.JobID = sub.JobID
	if err != nil && (!IsFallbackTrigger(err) || ctx.Err() != nil) {
		return err
	}

	if err := m.to(model.FileStateParsing); err != nil {
		return err
	}
	progress(model.PhaseParsing, parsingPercent)

	var outcome AnalysisOutcome
	if err != nil {
		r.log.Warn("async submission failed, falling back",
			zap.String("file", task.File.Name),
			zap.String("document_id", task.DocumentID),
			zap.Error(err),
		)
		if err := m.to(model.FileStateAsyncSubmitError); err != nil {
			return err
		}
		outcome, err = r.runFallback(ctx, m, model.TriggerSubmitError, progress)
		if err != nil {
			return err
		}
	} else {
		outcome, err = r.runAsync(ctx, m, progress)
		if err != nil {
			return err
		}
	}

	task.Path = outcome.Path
	built, err := ing.continuation.run(ctx, r.batch.ProjectID, m, outcome, progress)
	if err != nil {
		return err
	}
	if built {
		r.batch.ShouldNavigate = true
	}
	return nil
}

func (r *batchRun) runAsync(ctx context.Context, m *fileMachine, progress ProgressFunc) (AnalysisOutcome, error) {
	task := m.task
	if err := m.to(model.FileStateAsyncSubmitted); err != nil {
		return AnalysisOutcome{}, err
	}
	if err := m.to(model.FileStatePolling); err != nil {
		return AnalysisOutcome{}, err
	}

	res, err := r.ing.poller.PollUntilTerminal(ctx, task.JobID, progress)
	task.PollAttempts = res.Attempts
	if err != nil {
		return AnalysisOutcome{}, err
	}

	switch res.Kind {
	case PollSuccess:
		result, err := r.asyncResult(ctx, task.DocumentID, res.Status)
		if err != nil {
			return AnalysisOutcome{}, err
		}
		return AnalysisOutcome{Path: model.PathAsync, Result: result}, nil
	case PollFailure:
		if err := m.to(model.FileStateJobFailure); err != nil {
			return AnalysisOutcome{}, err
		}
		return AnalysisOutcome{}, stageErr(ErrJobFailed, eris.New(res.Reason))
	default:
		r.log.Warn("analysis job timed out, falling back",
			zap.String("file", task.File.Name),
			zap.String("job_id", task.JobID),
			zap.Int("attempts", res.Attempts),
		)
		if err := m.to(model.FileStateTimeout); err != nil {
			return AnalysisOutcome{}, err
		}
		return r.runFallback(ctx, m, model.TriggerTimeout, progress)
	}
}

// asyncResult prefers the result embedded in the final job status and
// otherwise fetches the stored analysis.
func (r *batchRun) asyncResult(ctx context.Context, documentID string, status *proposal.JobStatus) (*proposal.AnalysisResult, error) {
	if status != nil && status.Result != nil {
		return status.Result, nil
	}
	ctx, cancel := withTimeout(ctx, r.ing.opts.RequestTimeout)
	defer cancel()
	res, err := r.ing.client.GetAnalysis(ctx, documentID)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch analysis %s", documentID)
	}
	if res == nil {
		return nil, eris.Errorf("fetch analysis %s: empty result", documentID)
	}
	return res, nil
}

func (r *batchRun) runFallback(ctx context.Context, m *fileMachine, trigger model.FallbackTrigger, progress ProgressFunc) (AnalysisOutcome, error) {
	task := m.task
	task.Path = model.PathFallback
	task.FallbackTrigger = trigger
	if err := m.to(model.FileStateFallbackRunning); err != nil {
		return AnalysisOutcome{}, err
	}

	res, err := r.ing.fallback.Run(ctx, task.DocumentID, trigger, progress)
	if err != nil {
		return AnalysisOutcome{}, err
	}
	return AnalysisOutcome{Path: model.PathFallback, Trigger: trigger, Result: res}, nil
}

func (r *batchRun) complete(ctx context.Context) error {
	b := r.batch
	r.emit(model.PhaseComplete, completePercent, nil)

	// Every file has finished, so a cancelled delay only ends the hold early.
	if err := r.ing.sleep(ctx, r.ing.opts.CompletionDelay); err != nil {
		r.log.Debug("completion delay cut short", zap.Error(err))
	}

	b.Outcome = model.OutcomeComplete
	if b.ShouldNavigate {
		b.NavigateTarget = strings.ReplaceAll(r.ing.opts.NavigatePath, projectIDPlaceholder, b.ProjectID)
	}
	b.UpdatedAt = r.ing.now()

	r.log.Info("batch complete",
		zap.Int("succeeded", b.Succeeded),
		zap.Int("failed", b.Failed),
		zap.Bool("navigate", b.ShouldNavigate),
	)
	r.ing.observers.OnTerminal(model.Terminal{
		BatchID:        b.ID,
		Outcome:        model.OutcomeComplete,
		NavigateTarget: b.NavigateTarget,
		Succeeded:      b.Succeeded,
		Failed:         b.Failed,
	})
	return nil
}

// abort ends the batch in PhaseError.
func (r *batchRun) abort(cause error) error {
	b := r.batch
	err := stageErr(ErrBatch, cause)

	b.Outcome = model.OutcomeError
	b.Error = err.Error()
	b.ShouldNavigate = false
	b.NavigateTarget = ""
	r.emit(model.PhaseError, b.Percent, nil)

	r.log.Error("batch aborted",
		zap.Int("succeeded", b.Succeeded),
		zap.Int("failed", b.Failed),
		zap.Error(cause),
	)
	r.ing.observers.OnTerminal(model.Terminal{
		BatchID:   b.ID,
		Outcome:   model.OutcomeError,
		Succeeded: b.Succeeded,
		Failed:    b.Failed,
		Error:     b.Error,
	})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
