package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rfp-ingest/internal/model"
	"github.com/sells-group/rfp-ingest/pkg/proposal"
)

const (
	defaultPollInterval    = time.Second
	defaultPollMaxAttempts = 180

	// The async job's own percent is squeezed into this display window.
	pollPercentFloor = 15
	pollPercentCeil  = 85
	pollPercentScale = 0.70

	defaultFailureReason = "analysis job failed"
)

// PollKind is the terminal result of polling one job.
type PollKind int

const (
	PollSuccess PollKind = iota
	PollFailure
	PollTimeout
)

func (k PollKind) String() string {
	switch k {
	case PollSuccess:
		return "success"
	case PollFailure:
		return "failure"
	case PollTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// PollResult is returned by PollUntilTerminal.
type PollResult struct {
	Kind     PollKind
	Reason   string
	Status   *proposal.JobStatus
	Attempts int
}

// ProgressFunc receives per-file display progress.
type ProgressFunc func(phase model.Phase, percent int)

// StatusFetcher is the subset of proposal.Client used for polling.
type StatusFetcher interface {
	GetJobStatus(ctx context.Context, jobID string) (*proposal.JobStatus, error)
}

// PollOption configures a Poller.
type PollOption func(*Poller)

// WithPollInterval overrides the sleep between status fetches.
func WithPollInterval(d time.Duration) PollOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts overrides the number of status fetches before timing out.
func WithMaxAttempts(n int) PollOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithFetchTimeout bounds each individual status request.
func WithFetchTimeout(d time.Duration) PollOption {
	return func(p *Poller) {
		p.fetchTimeout = d
	}
}

// Poller polls an async analysis job at a fixed interval under a bounded
// attempt budget.
type Poller struct {
	client       StatusFetcher
	interval     time.Duration
	maxAttempts  int
	fetchTimeout time.Duration
}

// NewPoller creates a Poller with a 1s interval and 180 attempts.
func NewPoller(client StatusFetcher, opts ...PollOption) *Poller {
	p := &Poller{
		client:      client,
		interval:    defaultPollInterval,
		maxAttempts: defaultPollMaxAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Budget returns the worst-case time spent polling one job.
func (p *Poller) Budget() time.Duration {
	return time.Duration(p.maxAttempts) * p.interval
}

// PollUntilTerminal sleeps, fetches the job status and branches on it until
// the job succeeds, fails, or the attempt budget runs out. Fetch errors are
// logged and retried on the next tick. The only returned error is context
// cancellation.
func (p *Poller) PollUntilTerminal(ctx context.Context, jobID string, onProgress ProgressFunc) (PollResult, error) {
	log := zap.L().With(zap.String("job_id", jobID))

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return PollResult{Attempts: attempt - 1}, eris.Wrap(err, fmt.Sprintf("poll job %s", jobID))
		}
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return PollResult{Attempts: attempt - 1}, eris.Wrap(ctx.Err(), fmt.Sprintf("poll job %s", jobID))
		case <-timer.C:
		}

		status, err := p.fetch(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return PollResult{Attempts: attempt}, eris.Wrap(ctx.Err(), fmt.Sprintf("poll job %s", jobID))
			}
			log.Warn("job status fetch failed, will retry",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		switch status.Status {
		case proposal.JobSuccess:
			return PollResult{Kind: PollSuccess, Status: status, Attempts: attempt}, nil
		case proposal.JobFailure:
			reason := status.Error
			if reason == "" {
				reason = defaultFailureReason
			}
			return PollResult{Kind: PollFailure, Reason: reason, Status: status, Attempts: attempt}, nil
		case proposal.JobProgress:
			if status.Progress != nil && onProgress != nil {
				onProgress(MapStepToPhase(status.Progress.Step), DisplayPercent(status.Progress.Percent))
			}
		}
	}

	log.Warn("job polling budget exhausted",
		zap.Int("max_attempts", p.maxAttempts),
		zap.Duration("interval", p.interval),
	)
	return PollResult{Kind: PollTimeout, Attempts: p.maxAttempts}, nil
}

func (p *Poller) fetch(ctx context.Context, jobID string) (*proposal.JobStatus, error) {
	ctx, cancel := withTimeout(ctx, p.fetchTimeout)
	defer cancel()
	status, err := p.client.GetJobStatus(ctx, jobID)
	if err == nil && status == nil {
		return nil, eris.New("empty job status")
	}
	return status, err
}

// DisplayPercent maps a job's own 0-100 percent into the [15, 85] display
// window: clamp(15 + p*0.7, 15, 85).
func DisplayPercent(p float64) int {
	if math.IsNaN(p) {
		return pollPercentFloor
	}
	v := pollPercentFloor + p*pollPercentScale
	v = math.Max(pollPercentFloor, math.Min(pollPercentCeil, v))
	return int(math.Round(v))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
