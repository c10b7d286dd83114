// Package monitoring computes batch health over a lookback window and raises
// webhook alerts when thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rfp-ingest/internal/model"
	"github.com/sells-group/rfp-ingest/internal/store"
)

const collectLimit = 10000

// Snapshot holds a point-in-time view of batch health.
type Snapshot struct {
	BatchesTotal    int     `json:"batches_total"`
	BatchesComplete int     `json:"batches_complete"`
	BatchesError    int     `json:"batches_error"`
	BatchesRunning  int     `json:"batches_running"`
	BatchesStuck    int     `json:"batches_stuck"`
	BatchErrorRate  float64 `json:"batch_error_rate"`

	FilesSucceeded  int     `json:"files_succeeded"`
	FilesFailed     int     `json:"files_failed"`
	FileFailureRate float64 `json:"file_failure_rate"`

	AvgDurationSecs float64 `json:"avg_duration_secs"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// BatchLister is the part of store.Store the collector reads.
type BatchLister interface {
	ListBatches(ctx context.Context, filter store.BatchFilter) ([]model.UploadBatch, error)
}

// Collector gathers snapshots from the batch store.
type Collector struct {
	lister     BatchLister
	stuckAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. A running batch not updated for
// stuckAfter counts as stuck; zero disables the check.
func NewCollector(lister BatchLister, stuckAfter time.Duration) *Collector {
	return &Collector{lister: lister, stuckAfter: stuckAfter, now: time.Now}
}

// Collect gathers a snapshot of batches created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	batches, err := c.lister.ListBatches(ctx, store.BatchFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list batches")
	}

	snap.BatchesTotal = len(batches)
	var totalDur time.Duration
	for _, b := range batches {
		snap.FilesSucceeded += b.Succeeded
		snap.FilesFailed += b.Failed

		switch b.Outcome {
		case model.OutcomeComplete:
			snap.BatchesComplete++
			totalDur += b.UpdatedAt.Sub(b.CreatedAt)
		case model.OutcomeError:
			snap.BatchesError++
		default:
			snap.BatchesRunning++
			if c.stuckAfter > 0 && now.Sub(b.UpdatedAt) > c.stuckAfter {
				snap.BatchesStuck++
			}
		}
	}

	if finished := snap.BatchesComplete + snap.BatchesError; finished > 0 {
		snap.BatchErrorRate = float64(snap.BatchesError) / float64(finished)
	}
	if files := snap.FilesSucceeded + snap.FilesFailed; files > 0 {
		snap.FileFailureRate = float64(snap.FilesFailed) / float64(files)
	}
	if snap.BatchesComplete > 0 {
		snap.AvgDurationSecs = totalDur.Seconds() / float64(snap.BatchesComplete)
	}

	return snap, nil
}
